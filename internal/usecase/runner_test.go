package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MoodTreasury/internal/domain/models"
	drepo "MoodTreasury/internal/domain/repository"
	"MoodTreasury/internal/repository"
	"MoodTreasury/pkg/metrics"
)

// fakeLoopClock never fires After, so every loop runs exactly one
// iteration and then parks until Stop.
type fakeLoopClock struct {
	mu     sync.Mutex
	now    time.Time
	afters []time.Duration
}

func newFakeLoopClock() *fakeLoopClock {
	return &fakeLoopClock{now: time.Date(2024, 10, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeLoopClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeLoopClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.afters = append(c.afters, d)
	c.mu.Unlock()
	return make(chan time.Time)
}

func (c *fakeLoopClock) waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.afters))
	copy(out, c.afters)
	return out
}

type fakeSentiment struct {
	batch []models.SentimentSample
	err   error
}

func (f *fakeSentiment) FetchBatch(context.Context) ([]models.SentimentSample, error) {
	return f.batch, f.err
}

type fakeMarket struct {
	sig models.MarketSignal
	err error
}

func (f *fakeMarket) Snapshot(context.Context) (models.MarketSignal, error) {
	return f.sig, f.err
}

type fakeTreasury struct {
	balance float64
}

func (f *fakeTreasury) TreasuryBalance(context.Context) (float64, error) { return f.balance, nil }

type recordingPublisher struct {
	mu    sync.Mutex
	kinds []string
}

func (p *recordingPublisher) Publish(_ context.Context, kind string, _ interface{}) error {
	p.mu.Lock()
	p.kinds = append(p.kinds, kind)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) seen(kind string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range p.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func newTestRunner(t *testing.T, sentiment drepo.SentimentSource, market drepo.MarketDataSource) (*Runner, *repository.MemoryStore, *recordingPublisher, *fakeLoopClock) {
	t.Helper()
	store := repository.NewMemoryStore()
	gate := newTestRiskGate(t, store)
	log := newTestLogger(t)

	agg := NewMoodAggregator(store, log, metrics.Nop{}, AggregatorConfig{
		HistoryCap:   1000,
		ShortWindow:  5,
		MediumWindow: 15,
		LongWindow:   60,
	})
	engine := NewDecisionEngine(gate, store, log, metrics.Nop{}, testEngineConfig())
	chain := &fakeChain{statuses: map[string]models.ExecutionStatus{}}
	tracker := NewExecutionTracker(chain, gate, store, repository.NoopPublisher{}, repository.NoopAudit{}, log, metrics.Nop{})
	pub := &recordingPublisher{}

	cfg := LoopConfig{
		DecisionInterval: time.Hour,
		DecisionBackoff:  time.Minute,
		TreasuryInterval: time.Hour,
		PollInterval:     time.Hour,
	}
	r := NewRunner(cfg, sentiment, market, &fakeTreasury{balance: 10000},
		agg, engine, tracker, gate, store, pub, repository.NoopAudit{}, log, metrics.Nop{})

	clock := newFakeLoopClock()
	r.SetClock(clock)
	return r, store, pub, clock
}

func TestRunnerSingleCycle(t *testing.T) {
	sentiment := &fakeSentiment{batch: []models.SentimentSample{
		sample(0.4, 1.0, 1.0, models.TopicOwnAsset),
		sample(-0.2, 0.8, 1.0, models.TopicMarket),
	}}
	market := &fakeMarket{sig: models.MarketSignal{Price: 1.0, Momentum: 0.01, Liquidity: 50000}}
	r, store, pub, _ := newTestRunner(t, sentiment, market)

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool {
		var mood models.AggregatedMood
		var decision models.PolicyDecision
		var state models.RiskState
		return store.GetJSON(context.Background(), drepo.KeyMoodLatest, &mood) == nil &&
			store.GetJSON(context.Background(), drepo.KeyDecisionLatest, &decision) == nil &&
			store.GetJSON(context.Background(), drepo.KeyRiskState, &state) == nil
	}, time.Second, 5*time.Millisecond)
	r.Stop()

	assert.True(t, pub.seen(drepo.ArtifactMood))
	assert.True(t, pub.seen(drepo.ArtifactDecision))
	assert.True(t, pub.seen(drepo.ArtifactRiskState))

	var mood models.AggregatedMood
	require.NoError(t, store.GetJSON(context.Background(), drepo.KeyMoodLatest, &mood))
	assert.Equal(t, 2, mood.Volume)
}

func TestRunnerSentimentFailureStillDecides(t *testing.T) {
	sentiment := &fakeSentiment{err: errors.New("feed down")}
	market := &fakeMarket{sig: models.MarketSignal{Price: 1.0, Liquidity: 50000}}
	r, store, pub, _ := newTestRunner(t, sentiment, market)

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool {
		var decision models.PolicyDecision
		return store.GetJSON(context.Background(), drepo.KeyDecisionLatest, &decision) == nil
	}, time.Second, 5*time.Millisecond)
	r.Stop()

	// the empty batch aggregates to nothing, so no mood was persisted
	var mood models.AggregatedMood
	assert.ErrorIs(t, store.GetJSON(context.Background(), drepo.KeyMoodLatest, &mood), drepo.ErrNotFound)
	assert.False(t, pub.seen(drepo.ArtifactMood))
	assert.True(t, pub.seen(drepo.ArtifactDecision))
}

func TestRunnerMarketFailureBacksOff(t *testing.T) {
	sentiment := &fakeSentiment{}
	market := &fakeMarket{err: errors.New("stream stale")}
	r, store, _, clock := newTestRunner(t, sentiment, market)

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool {
		for _, d := range clock.waits() {
			if d == time.Minute {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	r.Stop()

	var decision models.PolicyDecision
	assert.ErrorIs(t, store.GetJSON(context.Background(), drepo.KeyDecisionLatest, &decision), drepo.ErrNotFound)
}
