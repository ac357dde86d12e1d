package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/estateflow/domain"
	"github.com/TFMV/estateflow/logger"
)

func TestOutboxNotifier(t *testing.T) {
	n, err := NewOutboxNotifier(t.TempDir())
	require.NoError(t, err)
	n.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }

	ctx := context.Background()
	require.NoError(t, n.NotifyUser(ctx, "u1", "Your property listing was published", "done"))
	require.NoError(t, n.NotifyUser(ctx, "u2", "Review needed", "case 7"))
	assert.True(t, strings.HasSuffix(n.CurrentFile(), "outbox-2026-03-14.jsonl"))

	raw, err := os.ReadFile(n.CurrentFile())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)

	var first map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "u1", first["user_id"])
	assert.Equal(t, "2026-03-14T09:30:00Z", first["timestamp"])
}

func TestLogNotifierAndFulfillment(t *testing.T) {
	l, logs := logger.NewObserved()
	ctx := context.Background()

	require.NoError(t, NewLogNotifier(l).NotifyUser(ctx, "u1", "hello", "body"))
	require.NoError(t, NewLogFulfillment(l).Trigger(ctx, "ord-1"))

	assert.Equal(t, 1, logs.FilterMessage("Notification").Len())
	assert.Equal(t, 1, logs.FilterMessage("Fulfillment triggered").Len())
}

func TestSimpleQualityScorer(t *testing.T) {
	s := NewSimpleQualityScorer()
	ctx := context.Background()

	complete := &domain.Entity{
		Kind:        domain.DraftTypeProperty,
		DisplayName: "Lake View Flat",
		Attributes: map[string]interface{}{
			"description": strings.Repeat("Sunny two bedroom flat facing the lake. ", 3),
			"latitude":    18.56,
			"longitude":   73.77,
			"amenities":   []interface{}{"lift", "parking", "gym"},
			"price":       32000.0,
		},
	}
	score, reason, err := s.Score(ctx, complete)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
	assert.Equal(t, "complete listing", reason)

	thin := &domain.Entity{Kind: domain.DraftTypePg, DisplayName: "PG", Attributes: map[string]interface{}{}}
	score, reason, err = s.Score(ctx, thin)
	require.NoError(t, err)
	assert.Equal(t, 0.2, score)
	assert.Contains(t, reason, "no price")

	spam := &domain.Entity{
		Kind:        domain.DraftTypeProject,
		DisplayName: "Skyline Towers",
		Attributes: map[string]interface{}{
			"description":   "Guaranteed returns on every unit",
			"startingPrice": 9500000.0,
		},
	}
	score, reason, err = s.Score(ctx, spam)
	require.NoError(t, err)
	assert.Equal(t, 0.1, score)
	assert.Contains(t, reason, "guaranteed returns")

	_, _, err = s.Score(ctx, nil)
	assert.Error(t, err)
}

func TestSearchDocument(t *testing.T) {
	e := &domain.Entity{
		Kind:               domain.DraftTypeProperty,
		ID:                 42,
		OwnerID:            "u1",
		DisplayName:        "Lake View Flat",
		VerificationStatus: domain.VerificationVerified,
		Attributes:         map[string]interface{}{"city": "Pune"},
	}
	doc := SearchDocument(e)
	assert.Equal(t, "Pune", doc["city"])
	assert.Equal(t, "PROPERTY", doc["kind"])
	assert.Equal(t, "property:42", EntityKey(e.Kind, e.ID))
}

func TestValidCardNumber(t *testing.T) {
	assert.True(t, validCardNumber("4111 1111 1111 1111"))
	assert.True(t, validCardNumber("5555555555554444"))
	assert.False(t, validCardNumber("4111111111111112"))
	assert.False(t, validCardNumber("4111-1111"))
	assert.False(t, validCardNumber(""))
}

func TestMultiIndex(t *testing.T) {
	ok := &recordingIndex{}
	broken := &recordingIndex{err: errors.New("index offline")}
	m := MultiIndex{broken, ok}

	err := m.Publish(context.Background(), "pg:7", map[string]interface{}{"kind": "PG"})
	assert.EqualError(t, err, "index offline")
	assert.True(t, ok.Has("pg:7"))

	require.NoError(t, MultiIndex{ok}.Remove(context.Background(), "pg:7"))
	assert.False(t, ok.Has("pg:7"))
}
