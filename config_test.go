package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/estateflow/router"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "memory", config.Database.Driver)
	assert.Equal(t, "0.0.0.0:9443", config.GRPC.Address)
	assert.Equal(t, []string{"reviewer-1"}, config.Workflows.Reviewers)
	assert.False(t, config.Gateway.Enabled)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "estateflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
router:
  mode: direct
database:
  driver: postgres
  dsn: postgres://estateflow@localhost/estateflow
gateway:
  enabled: true
  client:
    address: acquirer:8583
    terminal_id: TERM0001
workflows:
  reviewers: [alice, bob]
  inventory:
    PHOTO-PACK: 10
`), 0o644))

	config, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, router.ModeDirect, config.Router.Mode)
	assert.Equal(t, "postgres", config.Database.Driver)
	assert.Equal(t, "postgres://estateflow@localhost/estateflow", config.Database.DSN)
	assert.True(t, config.Gateway.Enabled)
	assert.Equal(t, "acquirer:8583", config.Gateway.Client.Address)
	assert.Equal(t, []string{"alice", "bob"}, config.Workflows.Reviewers)
	assert.Equal(t, 10, config.Workflows.Inventory["PHOTO-PACK"])
	// untouched sections keep their defaults
	assert.Equal(t, "0.0.0.0:9090", config.Metrics.Address)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: mysql\n"), 0o644))
	_, err = loadConfig(path)
	assert.ErrorContains(t, err, "unknown database driver")
}

func TestApplyEnv(t *testing.T) {
	config := defaultConfig()
	env := map[string]string{
		"ESTATEFLOW_DATABASE_DSN": " postgres://db/estateflow ",
		"TEMPORAL_ADDRESS":        "temporal:7233",
		"TEMPORAL_NAMESPACE":      "listings",
		"ESTATEFLOW_MODE":         router.ModeDurable,
	}
	applyEnv(&config, func(k string) string { return env[k] })

	assert.Equal(t, "postgres", config.Database.Driver)
	assert.Equal(t, "postgres://db/estateflow", config.Database.DSN)
	assert.True(t, config.Temporal.Enabled)
	assert.Equal(t, "temporal:7233", config.Temporal.HostPort)
	assert.Equal(t, "listings", config.Temporal.Namespace)
	assert.Equal(t, router.ModeDurable, config.Router.Mode)
}
