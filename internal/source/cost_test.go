package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiscale/pulse/internal/record"
)

func TestDeriveCost(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	cost, ok := DeriveCost(now, "acme", "runpod", "pod-7f3a", 0.5, now.Add(-2*time.Hour))
	require.True(t, ok)

	assert.Equal(t, "acme", cost.CustomerID)
	assert.Equal(t, "runpod", cost.Provider)
	assert.Equal(t, "pod-7f3a", cost.InstanceID)
	assert.Equal(t, record.CostCompute, cost.CostType)
	assert.Equal(t, "USD", cost.Currency)
	assert.Equal(t, now, cost.Timestamp)
	// 0.5/hour for two hours.
	assert.Equal(t, 1.0, cost.Amount)
}

func TestDeriveCostRounding(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	// 2.49/hour for 100 seconds = 0.069166... rounds to 4 decimals.
	cost, ok := DeriveCost(now, "acme", "runpod", "", 2.49, now.Add(-100*time.Second))
	require.True(t, ok)
	assert.Equal(t, 0.0692, cost.Amount)
}

func TestDeriveCostNoRate(t *testing.T) {
	now := time.Now()

	_, ok := DeriveCost(now, "acme", "runpod", "", 0, now.Add(-time.Hour))
	assert.False(t, ok, "zero rate means cost collection is not configured")

	_, ok = DeriveCost(now, "acme", "runpod", "", -1, now.Add(-time.Hour))
	assert.False(t, ok)
}

func TestDeriveCostClampsElapsed(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	// Start time in the future clamps to zero elapsed.
	cost, ok := DeriveCost(now, "acme", "runpod", "", 1.0, now.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, 0.0, cost.Amount)

	// Zero start time also clamps rather than producing decades of cost.
	cost, ok = DeriveCost(now, "acme", "runpod", "", 1.0, time.Time{})
	require.True(t, ok)
	assert.Equal(t, 0.0, cost.Amount)
}
