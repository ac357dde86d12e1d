package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/TFMV/estateflow/chaos"
	"github.com/TFMV/estateflow/gateway"
	"github.com/TFMV/estateflow/logger"
	"github.com/TFMV/estateflow/pgstore"
	"github.com/TFMV/estateflow/redisindex"
	"github.com/TFMV/estateflow/router"
	"github.com/TFMV/estateflow/span"
	"github.com/TFMV/estateflow/workflow"
)

// DatabaseConfig selects the store behind the collaborators
type DatabaseConfig struct {
	// Driver is "memory" or "postgres"
	Driver         string `yaml:"driver"`
	pgstore.Config `yaml:",inline"`
}

// GatewayConfig holds the payment gateway client and the sandbox acquirer
type GatewayConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Client  gateway.Config        `yaml:"client"`
	Sandbox gateway.SandboxConfig `yaml:"sandbox"`
}

// MetricsConfig holds the Prometheus endpoint
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// GRPCConfig holds the orchestration API listener
type GRPCConfig struct {
	Address string `yaml:"address"`
}

// WorkflowsConfig holds settings the activities read
type WorkflowsConfig struct {
	// Reviewers are notified when a review case opens
	Reviewers []string `yaml:"reviewers"`

	// OutboxDir switches notifications from the log to a JSON-lines outbox
	OutboxDir string `yaml:"outbox_dir"`

	// Inventory seeds stock levels; SKUs already in the database keep theirs
	Inventory map[string]int `yaml:"inventory"`
}

// AppConfig holds the complete application configuration
type AppConfig struct {
	Logging   logger.Config           `yaml:"logging"`
	Router    router.Config           `yaml:"router"`
	Temporal  workflow.TemporalConfig `yaml:"temporal"`
	Database  DatabaseConfig          `yaml:"database"`
	Spanner   span.Config             `yaml:"spanner"`
	Redis     redisindex.Config       `yaml:"redis"`
	Gateway   GatewayConfig           `yaml:"gateway"`
	Chaos     chaos.Config            `yaml:"chaos"`
	Metrics   MetricsConfig           `yaml:"metrics"`
	GRPC      GRPCConfig              `yaml:"grpc"`
	Workflows WorkflowsConfig         `yaml:"workflows"`
}

// defaultConfig returns a configuration that runs fully in memory
func defaultConfig() AppConfig {
	return AppConfig{
		Logging:  logger.DefaultConfig(),
		Router:   router.DefaultConfig(),
		Temporal: workflow.DefaultConfig(),
		Database: DatabaseConfig{Driver: "memory", Config: pgstore.DefaultConfig()},
		Gateway: GatewayConfig{
			Client:  gateway.DefaultConfig(),
			Sandbox: gateway.DefaultSandboxConfig(),
		},
		Metrics: MetricsConfig{Address: "0.0.0.0:9090"},
		GRPC:    GRPCConfig{Address: "0.0.0.0:9443"},
		Workflows: WorkflowsConfig{
			Reviewers: []string{"reviewer-1"},
		},
	}
}

// loadConfig reads the YAML file over the defaults, then applies environment
// overrides. An empty path skips the file.
func loadConfig(path string) (*AppConfig, error) {
	config := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&config, os.Getenv)

	switch config.Database.Driver {
	case "memory", "postgres":
	default:
		return nil, fmt.Errorf("unknown database driver %q", config.Database.Driver)
	}
	return &config, nil
}

// applyEnv overrides secrets and addresses from the environment
func applyEnv(config *AppConfig, getenv func(string) string) {
	if dsn := strings.TrimSpace(getenv("ESTATEFLOW_DATABASE_DSN")); dsn != "" {
		config.Database.DSN = dsn
		config.Database.Driver = "postgres"
	}
	if addr := strings.TrimSpace(getenv("TEMPORAL_ADDRESS")); addr != "" {
		config.Temporal.HostPort = addr
		config.Temporal.Enabled = true
	}
	if ns := strings.TrimSpace(getenv("TEMPORAL_NAMESPACE")); ns != "" {
		config.Temporal.Namespace = ns
	}
	if mode := strings.TrimSpace(getenv("ESTATEFLOW_MODE")); mode != "" {
		config.Router.Mode = mode
	}
}
