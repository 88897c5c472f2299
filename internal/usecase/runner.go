package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MoodTreasury/internal/domain/models"
	drepo "MoodTreasury/internal/domain/repository"
	"MoodTreasury/internal/services/risk"
	xlogger "MoodTreasury/pkg/logger"
)

// Clock abstracts time for the periodic loops so tests can tick
// deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// LoopConfig paces the periodic tasks.
type LoopConfig struct {
	DecisionInterval time.Duration
	DecisionBackoff  time.Duration
	TreasuryInterval time.Duration
	PollInterval     time.Duration
}

// Runner drives the three periodic tasks of the core: the decision cycle,
// the treasury balance refresh, and the pending-execution poll. Each task
// isolates its own failures and continues after a backoff; none blocks
// another. Stop is cooperative, checked between iterations only.
type Runner struct {
	cfg       LoopConfig
	sentiment drepo.SentimentSource
	market    drepo.MarketDataSource
	treasury  drepo.TreasuryObserver
	agg       *MoodAggregator
	engine    *DecisionEngine
	tracker   *ExecutionTracker
	gate      *risk.Gate
	store     drepo.DurableStore
	pub       drepo.ArtifactPublisher
	audit     drepo.AuditArchive
	log       *xlogger.Logger
	metrics   drepo.Metrics
	clock     Clock

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRunner wires the periodic task runner.
func NewRunner(
	cfg LoopConfig,
	sentiment drepo.SentimentSource,
	market drepo.MarketDataSource,
	treasury drepo.TreasuryObserver,
	agg *MoodAggregator,
	engine *DecisionEngine,
	tracker *ExecutionTracker,
	gate *risk.Gate,
	store drepo.DurableStore,
	pub drepo.ArtifactPublisher,
	audit drepo.AuditArchive,
	log *xlogger.Logger,
	metrics drepo.Metrics,
) *Runner {
	return &Runner{
		cfg:       cfg,
		sentiment: sentiment,
		market:    market,
		treasury:  treasury,
		agg:       agg,
		engine:    engine,
		tracker:   tracker,
		gate:      gate,
		store:     store,
		pub:       pub,
		audit:     audit,
		log:       log,
		metrics:   metrics,
		clock:     SystemClock{},
	}
}

// SetClock overrides the clock, for tests.
func (r *Runner) SetClock(c Clock) { r.clock = c }

// Start restores durable state and launches the three loops.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.agg.Restore(ctx); err != nil {
		return err
	}
	if err := r.engine.Restore(ctx); err != nil {
		return err
	}
	if err := r.tracker.Restore(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(3)
	go r.loop(loopCtx, "decision", r.cfg.DecisionInterval, r.cfg.DecisionBackoff, r.decisionCycle)
	go r.loop(loopCtx, "treasury", r.cfg.TreasuryInterval, r.cfg.TreasuryInterval, r.treasuryCycle)
	go r.loop(loopCtx, "poll", r.cfg.PollInterval, r.cfg.PollInterval, r.pollCycle)

	r.log.Info("runner started",
		xlogger.Duration("decision_interval", r.cfg.DecisionInterval),
		xlogger.Duration("treasury_interval", r.cfg.TreasuryInterval),
		xlogger.Duration("poll_interval", r.cfg.PollInterval),
	)
	return nil
}

// Stop signals the loops and waits for in-flight iterations to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("runner stopped")
}

// loop runs fn every interval, switching to backoff after a failed
// iteration. The stop signal is checked only between iterations; an
// in-flight iteration runs to completion.
func (r *Runner) loop(ctx context.Context, name string, interval, backoff time.Duration, fn func(context.Context) error) {
	defer r.wg.Done()
	for {
		delay := interval
		start := r.clock.Now()
		if err := fn(context.WithoutCancel(ctx)); err != nil {
			r.log.Error("loop iteration failed", xlogger.String("loop", name), xlogger.Error(err))
			r.metrics.RecordError(name)
			delay = backoff
		}
		r.metrics.RecordLoopIteration(name, r.clock.Now().Sub(start).Seconds())

		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(delay):
		}
	}
}

// decisionCycle fetches sentiment and market concurrently, aggregates,
// decides, and dispatches executable decisions.
func (r *Runner) decisionCycle(ctx context.Context) error {
	var (
		samples   []models.SentimentSample
		market    models.MarketSignal
		sampleErr error
		marketErr error
		wg        sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		samples, sampleErr = r.sentiment.FetchBatch(ctx)
	}()
	go func() {
		defer wg.Done()
		market, marketErr = r.market.Snapshot(ctx)
	}()
	wg.Wait()

	if sampleErr != nil {
		// degrade to an empty batch: aggregation becomes a no-op and the
		// decision falls through on stale trend state
		r.log.Warn("sentiment fetch failed, using empty batch", xlogger.Error(sampleErr))
		r.metrics.RecordError("sentiment_fetch")
		samples = nil
	}
	if marketErr != nil {
		return fmt.Errorf("market snapshot: %w", marketErr)
	}

	mood := r.agg.Aggregate(ctx, samples)
	r.publishMood(ctx, mood)

	decision := r.engine.MakeDecision(ctx, mood, market)
	r.publishDecision(ctx, decision)

	if decision.Executable() {
		if err := r.tracker.Dispatch(ctx, decision); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
	}
	return nil
}

// treasuryCycle refreshes the observed treasury balance and publishes the
// current risk snapshot.
func (r *Runner) treasuryCycle(ctx context.Context) error {
	balance, err := r.treasury.TreasuryBalance(ctx)
	if err != nil {
		return fmt.Errorf("observe treasury: %w", err)
	}
	if err := r.gate.UpdateTreasuryBalance(ctx, balance); err != nil {
		return err
	}

	state, err := r.gate.State(ctx)
	if err != nil {
		return fmt.Errorf("risk state: %w", err)
	}
	if err := r.store.SetJSON(ctx, drepo.KeyRiskState, state, 0); err != nil {
		r.log.Error("persist risk state", xlogger.Error(err))
	}
	if err := r.pub.Publish(ctx, drepo.ArtifactRiskState, state); err != nil {
		r.log.Warn("publish risk state", xlogger.Error(err))
	}
	return nil
}

func (r *Runner) pollCycle(ctx context.Context) error {
	return r.tracker.Poll(ctx)
}

func (r *Runner) publishMood(ctx context.Context, mood models.AggregatedMood) {
	if mood.Volume == 0 {
		return // empty batches leave no trace
	}
	if err := r.store.SetJSON(ctx, drepo.KeyMoodLatest, mood, 0); err != nil {
		r.log.Error("persist latest mood", xlogger.Error(err))
	}
	if err := r.store.AppendHistory(ctx, drepo.KeyMoodHistory, mood.Timestamp, mood, drepo.MoodRetention); err != nil {
		r.log.Error("append mood history", xlogger.Error(err))
	}
	if err := r.pub.Publish(ctx, drepo.ArtifactMood, mood); err != nil {
		r.log.Warn("publish mood artifact", xlogger.Error(err))
	}
}

func (r *Runner) publishDecision(ctx context.Context, d models.PolicyDecision) {
	if err := r.store.SetJSON(ctx, drepo.KeyDecisionLatest, d, 0); err != nil {
		r.log.Error("persist latest decision", xlogger.Error(err))
	}
	if err := r.store.AppendHistory(ctx, drepo.KeyDecisionHistory, d.Timestamp, d, drepo.DecisionRetention); err != nil {
		r.log.Error("append decision history", xlogger.Error(err))
	}
	if err := r.audit.ArchiveDecision(ctx, d); err != nil {
		r.log.Warn("archive decision", xlogger.Error(err))
	}
	if err := r.pub.Publish(ctx, drepo.ArtifactDecision, d); err != nil {
		r.log.Warn("publish decision artifact", xlogger.Error(err))
	}
}
