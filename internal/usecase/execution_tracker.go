package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MoodTreasury/internal/domain/models"
	drepo "MoodTreasury/internal/domain/repository"
	"MoodTreasury/internal/services/risk"
	xlogger "MoodTreasury/pkg/logger"
)

// stalePendingWarnAfter is only a log threshold. A pending execution is
// never expired or resubmitted, only polled.
const stalePendingWarnAfter = 30 * time.Minute

// ExecutionTracker follows dispatched actions to a terminal outcome:
// dispatched -> pending -> confirmed | failed. Terminal records leave the
// active set but stay in the append-only history. Failures feed the risk
// gate's loss counter.
type ExecutionTracker struct {
	chain   drepo.ChainClient
	gate    *risk.Gate
	store   drepo.DurableStore
	pub     drepo.ArtifactPublisher
	audit   drepo.AuditArchive
	log     *xlogger.Logger
	metrics drepo.Metrics

	mu     sync.Mutex
	active map[string]*models.ExecutionRecord
	now    func() time.Time
}

// NewExecutionTracker creates an execution tracker.
func NewExecutionTracker(
	chain drepo.ChainClient,
	gate *risk.Gate,
	store drepo.DurableStore,
	pub drepo.ArtifactPublisher,
	audit drepo.AuditArchive,
	log *xlogger.Logger,
	metrics drepo.Metrics,
) *ExecutionTracker {
	return &ExecutionTracker{
		chain:   chain,
		gate:    gate,
		store:   store,
		pub:     pub,
		audit:   audit,
		log:     log,
		metrics: metrics,
		active:  make(map[string]*models.ExecutionRecord),
		now:     time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (t *ExecutionTracker) SetNowFunc(now func() time.Time) { t.now = now }

// ActiveCount returns the number of executions still being tracked.
func (t *ExecutionTracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Restore reloads the mirrored active set so polling resumes after a
// restart. Best effort: losing the mirror leaves orphaned pending
// references untracked.
func (t *ExecutionTracker) Restore(ctx context.Context) error {
	var mirror map[string]*models.ExecutionRecord
	if err := t.store.GetJSON(ctx, drepo.KeyExecActive, &mirror); err != nil {
		if errors.Is(err, drepo.ErrNotFound) {
			return nil
		}
		t.log.Warn("active execution set unreadable, starting empty", xlogger.Error(err))
		return nil
	}
	t.mu.Lock()
	t.active = mirror
	if t.active == nil {
		t.active = make(map[string]*models.ExecutionRecord)
	}
	n := len(t.active)
	t.mu.Unlock()
	if n > 0 {
		t.log.Info("resumed tracking pending executions", xlogger.Int("count", n))
	}
	return nil
}

// Dispatch submits an executable decision to the chain collaborator and
// begins tracking it. The spend is counted against the daily budget at
// dispatch time, before the outcome is known.
func (t *ExecutionTracker) Dispatch(ctx context.Context, decision models.PolicyDecision) error {
	if !decision.Executable() {
		return nil
	}

	size := 0.0
	if decision.Execution != nil {
		size = decision.Execution.Size
	}

	rec := &models.ExecutionRecord{
		Decision:     decision,
		Status:       models.ExecutionPending,
		DispatchedAt: t.now().UTC(),
		UpdatedAt:    t.now().UTC(),
	}

	ref, err := t.chain.Submit(ctx, decision)
	if err != nil {
		rec.Status = models.ExecutionFailed
		rec.Error = err.Error()
		t.metrics.RecordExecutionOutcome(string(models.ExecutionFailed))
		t.metrics.RecordError("dispatch")
		if rerr := t.gate.RecordExecution(ctx, 0, false); rerr != nil {
			t.log.Error("record dispatch failure", xlogger.Error(rerr))
		}
		t.persistRecord(ctx, rec)
		return fmt.Errorf("submit %s: %w", decision.Action, err)
	}

	rec.Reference = ref
	if err := t.gate.RecordSpend(ctx, size); err != nil {
		t.log.Error("record spend at dispatch", xlogger.Error(err))
		t.metrics.RecordError("record_spend")
	}

	t.mu.Lock()
	t.active[ref] = rec
	t.mu.Unlock()
	t.persistRecord(ctx, rec)
	t.mirrorActive(ctx)

	t.log.Info("action dispatched",
		xlogger.String("action", string(decision.Action)),
		xlogger.String("reference", ref),
	)
	return nil
}

// Poll queries the status of every active reference and applies terminal
// transitions. Pending references stay tracked without a timeout.
func (t *ExecutionTracker) Poll(ctx context.Context) error {
	t.mu.Lock()
	refs := make([]string, 0, len(t.active))
	for ref := range t.active {
		refs = append(refs, ref)
	}
	t.mu.Unlock()

	changed := false
	for _, ref := range refs {
		status, err := t.chain.GetStatus(ctx, ref)
		if err != nil {
			t.log.Warn("status poll failed", xlogger.String("reference", ref), xlogger.Error(err))
			t.metrics.RecordError("poll")
			continue
		}
		if t.applyStatus(ctx, ref, status) {
			changed = true
		}
	}
	if changed {
		t.mirrorActive(ctx)
	}
	return nil
}

// applyStatus transitions one tracked record. Returns true when the record
// reached a terminal status and left the active set.
func (t *ExecutionTracker) applyStatus(ctx context.Context, ref string, status models.ExecutionStatus) bool {
	t.mu.Lock()
	rec, ok := t.active[ref]
	if !ok {
		// already terminal and removed, repeated polls have no effect
		t.mu.Unlock()
		return false
	}
	if !status.Terminal() {
		age := t.now().Sub(rec.DispatchedAt)
		t.mu.Unlock()
		if age > stalePendingWarnAfter {
			t.log.Warn("execution pending for a long time",
				xlogger.String("reference", ref),
				xlogger.Duration("age", age),
			)
		}
		return false
	}
	delete(t.active, ref)
	t.mu.Unlock()

	rec.Status = status
	rec.UpdatedAt = t.now().UTC()

	switch status {
	case models.ExecutionConfirmed:
		if rec.Decision.Execution != nil {
			rec.AmountProcessed = rec.Decision.Execution.Size
		}
		// spend was already counted at dispatch, only the streak resets here
		if err := t.gate.RecordExecution(ctx, 0, true); err != nil {
			t.log.Error("record confirmed execution", xlogger.Error(err))
		}
	case models.ExecutionFailed:
		rec.Error = "execution failed on chain"
		if err := t.gate.RecordExecution(ctx, 0, false); err != nil {
			t.log.Error("record failed execution", xlogger.Error(err))
		}
	}

	t.metrics.RecordExecutionOutcome(string(status))
	t.persistRecord(ctx, rec)
	t.log.Info("execution finished",
		xlogger.String("reference", ref),
		xlogger.String("status", string(status)),
	)
	return true
}

// persistRecord writes the latest snapshot, the append-only history entry,
// the audit row, and the published artifact. All best effort.
func (t *ExecutionTracker) persistRecord(ctx context.Context, rec *models.ExecutionRecord) {
	if err := t.store.SetJSON(ctx, drepo.KeyExecLatest, rec, 0); err != nil {
		t.log.Error("persist latest execution", xlogger.Error(err))
	}
	if err := t.store.AppendHistory(ctx, drepo.KeyExecHistory, rec.UpdatedAt, rec, drepo.ExecRetention); err != nil {
		t.log.Error("append execution history", xlogger.Error(err))
	}
	if err := t.audit.ArchiveExecution(ctx, *rec); err != nil {
		t.log.Warn("archive execution", xlogger.Error(err))
	}
	if err := t.pub.Publish(ctx, drepo.ArtifactExecution, rec); err != nil {
		t.log.Warn("publish execution artifact", xlogger.Error(err))
	}
}

func (t *ExecutionTracker) mirrorActive(ctx context.Context) {
	t.mu.Lock()
	snapshot := make(map[string]*models.ExecutionRecord, len(t.active))
	for ref, rec := range t.active {
		snapshot[ref] = rec
	}
	t.mu.Unlock()

	if err := t.store.SetJSON(ctx, drepo.KeyExecActive, snapshot, 0); err != nil {
		t.log.Error("mirror active execution set", xlogger.Error(err))
	}
}
