package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MoodTreasury/internal/repository"
	"MoodTreasury/pkg/logger"
	"MoodTreasury/pkg/metrics"
)

func newTestGate(t *testing.T) (*Gate, *repository.MemoryStore) {
	t.Helper()
	return newTestGateWithLimits(t, Limits{
		MinTreasuryThreshold: 0.1,
		MaxDailySpendPercent: 100,
		MaxConsecutiveLosses: 3,
	})
}

func newTestGateWithLimits(t *testing.T, limits Limits) (*Gate, *repository.MemoryStore) {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	store := repository.NewMemoryStore()
	g := NewGate(store, l, metrics.Nop{}, limits)
	return g, store
}

func TestCanExecuteReserveFloor(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t)
	require.NoError(t, g.UpdateTreasuryBalance(ctx, 1000))

	// 950 would leave 50, below the 100 reserve
	v := g.CanExecute(ctx, 950)
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "reserve")

	// 850 leaves 150, above the reserve
	v = g.CanExecute(ctx, 850)
	assert.True(t, v.Allowed)
}

func TestCanExecuteDailyCap(t *testing.T) {
	ctx := context.Background()
	// 10% of balance 1000 caps the day at 100
	g, _ := newTestGateWithLimits(t, Limits{
		MinTreasuryThreshold: 0.1,
		MaxDailySpendPercent: 10,
		MaxConsecutiveLosses: 3,
	})
	require.NoError(t, g.UpdateTreasuryBalance(ctx, 1000))

	require.NoError(t, g.RecordSpend(ctx, 80))

	v := g.CanExecute(ctx, 30)
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "daily spend limit")

	v = g.CanExecute(ctx, 20)
	assert.True(t, v.Allowed)
}

func TestCanExecuteLossStreak(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t)
	require.NoError(t, g.UpdateTreasuryBalance(ctx, 10000))

	for i := 0; i < 3; i++ {
		require.NoError(t, g.RecordExecution(ctx, 0, false))
	}
	v := g.CanExecute(ctx, 10)
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "consecutive losses")

	// one success resets the streak
	require.NoError(t, g.RecordExecution(ctx, 0, true))
	v = g.CanExecute(ctx, 10)
	assert.True(t, v.Allowed)
}

func TestKillSwitchBlocksEverything(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t)
	require.NoError(t, g.UpdateTreasuryBalance(ctx, 10000))
	require.NoError(t, g.ActivateKillSwitch(ctx, "manual halt"))

	for _, amount := range []float64{0, 1, 100000} {
		v := g.CanExecute(ctx, amount)
		assert.False(t, v.Allowed)
		assert.Contains(t, v.Reason, "kill switch")
		assert.Contains(t, v.Reason, "manual halt")
	}

	require.NoError(t, g.DeactivateKillSwitch(ctx))
	v := g.CanExecute(ctx, 10)
	assert.True(t, v.Allowed)
}

func TestRecordSpendCountsFailuresToo(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t)
	require.NoError(t, g.UpdateTreasuryBalance(ctx, 1000))

	// attempted spends count against the budget regardless of outcome
	require.NoError(t, g.RecordSpend(ctx, 40))
	require.NoError(t, g.RecordExecution(ctx, 0, false))

	s, err := g.State(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, s.DailySpent, 1e-9)
	assert.Equal(t, 1, s.ConsecutiveLosses)
	assert.False(t, s.LastExecutionTime.IsZero())
}

func TestStateOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t)

	s, err := g.State(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.DailySpent)
	assert.Zero(t, s.ConsecutiveLosses)
	assert.False(t, s.KillSwitchActive)
}
