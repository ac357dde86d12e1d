package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	l, err := New(Config{Mode: "production", Level: "warn"})
	require.NoError(t, err)
	require.NotNil(t, l)

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestLogger_RedactsSensitiveKeys(t *testing.T) {
	l, logs := NewObserved()

	l.Info("charging", "card_number", "4111111111111111", "api_token", "abc", "order_id", "o-1")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "411111******1111", fields["card_number"])
	assert.Equal(t, "[REDACTED]", fields["api_token"])
	assert.Equal(t, "o-1", fields["order_id"])
}

func TestLogger_With(t *testing.T) {
	l, logs := NewObserved()

	l.With("run_id", "r-1").Warn("slow activity", "activity", "FetchDraft")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "r-1", entries[0].ContextMap()["run_id"])
	assert.Equal(t, "FetchDraft", entries[0].ContextMap()["activity"])
}

func TestMaskPAN(t *testing.T) {
	assert.Equal(t, "411111******1111", MaskPAN("4111111111111111"))
	assert.Equal(t, "12345", MaskPAN("12345"))
}
