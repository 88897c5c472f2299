package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MoodTreasury/internal/domain/models"
	drepo "MoodTreasury/internal/domain/repository"
	"MoodTreasury/internal/repository"
	"MoodTreasury/internal/services/risk"
	"MoodTreasury/pkg/metrics"
)

// fakeChain scripts Submit and GetStatus responses per reference.
type fakeChain struct {
	submitErr error
	statuses  map[string]models.ExecutionStatus
	submits   int
}

func (f *fakeChain) Submit(_ context.Context, _ models.PolicyDecision) (string, error) {
	f.submits++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return fmt.Sprintf("ref-%d", f.submits), nil
}

func (f *fakeChain) GetStatus(_ context.Context, ref string) (models.ExecutionStatus, error) {
	s, ok := f.statuses[ref]
	if !ok {
		return models.ExecutionPending, nil
	}
	return s, nil
}

func (f *fakeChain) TreasuryBalance(context.Context) (float64, error) { return 0, nil }

func newTestTracker(t *testing.T, chain drepo.ChainClient) (*ExecutionTracker, *risk.Gate, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	gate := newTestRiskGate(t, store)
	tracker := NewExecutionTracker(chain, gate, store, repository.NoopPublisher{}, repository.NoopAudit{},
		newTestLogger(t), metrics.Nop{})
	return tracker, gate, store
}

func buybackDecision(size float64) models.PolicyDecision {
	return models.PolicyDecision{
		Action: models.ActionBuyback,
		Rule:   RuleBuyTheDip,
		Execution: &models.ExecutionParams{
			Size:        size,
			MaxSlippage: 0.01,
			DCAFactor:   0.5,
		},
	}
}

func TestDispatchCountsSpendAndTracks(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{statuses: map[string]models.ExecutionStatus{}}
	tracker, gate, _ := newTestTracker(t, chain)
	require.NoError(t, gate.UpdateTreasuryBalance(ctx, 10000))

	require.NoError(t, tracker.Dispatch(ctx, buybackDecision(75)))
	assert.Equal(t, 1, tracker.ActiveCount())

	state, err := gate.State(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 75.0, state.DailySpent, 1e-9)
	assert.Equal(t, 0, state.ConsecutiveLosses)
}

func TestDispatchSkipsNonExecutable(t *testing.T) {
	chain := &fakeChain{}
	tracker, _, _ := newTestTracker(t, chain)

	d := models.PolicyDecision{Action: models.ActionNoop, Reason: "no clear signal"}
	require.NoError(t, tracker.Dispatch(context.Background(), d))
	assert.Zero(t, chain.submits)
	assert.Zero(t, tracker.ActiveCount())
}

func TestDispatchSubmitFailureRecordsLoss(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{submitErr: errors.New("rpc unavailable")}
	tracker, gate, _ := newTestTracker(t, chain)
	require.NoError(t, gate.UpdateTreasuryBalance(ctx, 10000))

	err := tracker.Dispatch(ctx, buybackDecision(75))
	require.Error(t, err)
	assert.Zero(t, tracker.ActiveCount())

	state, serr := gate.State(ctx)
	require.NoError(t, serr)
	// the failed submit never spent anything but does count as a loss
	assert.Zero(t, state.DailySpent)
	assert.Equal(t, 1, state.ConsecutiveLosses)
}

func TestPollConfirmedResetsStreakAndRemoves(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{statuses: map[string]models.ExecutionStatus{}}
	tracker, gate, store := newTestTracker(t, chain)
	require.NoError(t, gate.UpdateTreasuryBalance(ctx, 10000))
	require.NoError(t, gate.RecordExecution(ctx, 0, false))

	require.NoError(t, tracker.Dispatch(ctx, buybackDecision(75)))
	chain.statuses["ref-1"] = models.ExecutionConfirmed
	require.NoError(t, tracker.Poll(ctx))

	assert.Zero(t, tracker.ActiveCount())

	var rec models.ExecutionRecord
	require.NoError(t, store.GetJSON(ctx, drepo.KeyExecLatest, &rec))
	assert.Equal(t, models.ExecutionConfirmed, rec.Status)
	assert.InDelta(t, 75.0, rec.AmountProcessed, 1e-9)

	state, err := gate.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, state.ConsecutiveLosses)
	// spend stays counted exactly once
	assert.InDelta(t, 75.0, state.DailySpent, 1e-9)
}

func TestPollFailedBumpsStreak(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{statuses: map[string]models.ExecutionStatus{}}
	tracker, gate, store := newTestTracker(t, chain)
	require.NoError(t, gate.UpdateTreasuryBalance(ctx, 10000))

	require.NoError(t, tracker.Dispatch(ctx, buybackDecision(75)))
	chain.statuses["ref-1"] = models.ExecutionFailed
	require.NoError(t, tracker.Poll(ctx))

	assert.Zero(t, tracker.ActiveCount())

	var rec models.ExecutionRecord
	require.NoError(t, store.GetJSON(ctx, drepo.KeyExecLatest, &rec))
	assert.Equal(t, models.ExecutionFailed, rec.Status)
	assert.NotEmpty(t, rec.Error)

	state, err := gate.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state.ConsecutiveLosses)
}

func TestPollPendingKeepsTracking(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{statuses: map[string]models.ExecutionStatus{}}
	tracker, gate, _ := newTestTracker(t, chain)
	require.NoError(t, gate.UpdateTreasuryBalance(ctx, 10000))

	require.NoError(t, tracker.Dispatch(ctx, buybackDecision(75)))
	require.NoError(t, tracker.Poll(ctx))
	require.NoError(t, tracker.Poll(ctx))

	assert.Equal(t, 1, tracker.ActiveCount())

	state, err := gate.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, state.ConsecutiveLosses)
}

func TestRepeatedTerminalPollsHaveNoEffect(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{statuses: map[string]models.ExecutionStatus{}}
	tracker, gate, _ := newTestTracker(t, chain)
	require.NoError(t, gate.UpdateTreasuryBalance(ctx, 10000))
	require.NoError(t, gate.RecordExecution(ctx, 0, false))

	require.NoError(t, tracker.Dispatch(ctx, buybackDecision(75)))
	chain.statuses["ref-1"] = models.ExecutionFailed
	require.NoError(t, tracker.Poll(ctx))
	require.NoError(t, tracker.Poll(ctx))
	require.NoError(t, tracker.Poll(ctx))

	state, err := gate.State(ctx)
	require.NoError(t, err)
	// one failure applied once, not once per poll
	assert.Equal(t, 2, state.ConsecutiveLosses)
}

func TestRestoreResumesActiveSet(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{statuses: map[string]models.ExecutionStatus{}}
	tracker, gate, store := newTestTracker(t, chain)
	require.NoError(t, gate.UpdateTreasuryBalance(ctx, 10000))
	require.NoError(t, tracker.Dispatch(ctx, buybackDecision(75)))

	resumed := NewExecutionTracker(chain, gate, store, repository.NoopPublisher{}, repository.NoopAudit{},
		newTestLogger(t), metrics.Nop{})
	require.NoError(t, resumed.Restore(ctx))
	assert.Equal(t, 1, resumed.ActiveCount())

	chain.statuses["ref-1"] = models.ExecutionConfirmed
	require.NoError(t, resumed.Poll(ctx))
	assert.Zero(t, resumed.ActiveCount())
}
