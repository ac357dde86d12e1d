package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgHostel_ApplyComputesStartingPrice(t *testing.T) {
	p, err := DecodePayload(DraftTypePg, []byte(`{"displayName":" Sunrise PG ","gender":"female","city":"Pune","roomCategories":[{"sharing":"double","price":7000},{"sharing":"single","price":0},{"sharing":"triple","price":5500}]}`))
	require.NoError(t, err)

	m := &PgHostel{}
	m.Apply(p)
	assert.Equal(t, "Sunrise PG", m.DisplayName)
	assert.Equal(t, 5500.0, m.StartingPrice)

	e := ToEntity(m)
	assert.Equal(t, DraftTypePg, e.Kind)
	assert.Equal(t, 3, e.Attributes["roomTypes"])
}

func TestApply_IgnoresOtherVariants(t *testing.T) {
	m := &Property{}
	m.DisplayName = "kept"
	m.Apply(Payload{Kind: DraftTypeDeveloper, Developer: &DeveloperPayload{DisplayName: "other"}})
	assert.Equal(t, "kept", m.DisplayName)
}

func TestNewModel(t *testing.T) {
	for _, kind := range DraftTypes {
		m := NewModel(kind)
		require.NotNil(t, m, kind)
		assert.Equal(t, kind, m.Kind())
	}
	assert.Nil(t, NewModel("CASTLE"))
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("approve")
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, d)

	d, err = ParseDecision("Rejected")
	require.NoError(t, err)
	assert.Equal(t, DecisionRejected, d)

	_, err = ParseDecision("maybe")
	assert.Error(t, err)
	assert.False(t, DecisionPending.Terminal())
}
