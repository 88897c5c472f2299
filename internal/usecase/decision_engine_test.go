package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MoodTreasury/internal/domain/models"
	"MoodTreasury/internal/repository"
	"MoodTreasury/pkg/metrics"
)

func testEngineConfig() EngineConfig {
	return EngineConfig{
		HypeThreshold:    1.5,
		FudThreshold:     -1.5,
		MomentumPositive: 0,
		MomentumNegative: 0,
		BuybackK1:        0.01,
		DCAFactor:        0.5,
		MaxSlippage:      0.01,
		LiquidityFloor:   10000,
		PairHistoryCap:   100,
	}
}

func newTestEngine(t *testing.T) (*DecisionEngine, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	gate := newTestRiskGate(t, store)
	engine := NewDecisionEngine(gate, store, newTestLogger(t), metrics.Nop{}, testEngineConfig())
	return engine, store
}

func moodWith(z, ema15, ema60 float64) models.AggregatedMood {
	return models.AggregatedMood{Volume: 1, ZScore: z, EMA15: ema15, EMA60: ema60}
}

func TestHoldDuringHype(t *testing.T) {
	engine, _ := newTestEngine(t)

	d := engine.MakeDecision(context.Background(),
		moodWith(2.0, 0, 0),
		models.MarketSignal{Momentum: 0.01},
	)

	assert.Equal(t, models.ActionHodl, d.Action)
	assert.Equal(t, RuleHoldDuringHype, d.Rule)
	assert.Nil(t, d.Execution)
}

func TestBuyTheDipSizing(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	gate := newTestRiskGate(t, store)
	require.NoError(t, gate.UpdateTreasuryBalance(ctx, 10000))

	d := engine.MakeDecision(ctx,
		moodWith(-1.5, 0, 0),
		models.MarketSignal{Momentum: -0.01},
	)

	assert.Equal(t, models.ActionBuyback, d.Action)
	assert.Equal(t, RuleBuyTheDip, d.Rule)
	require.NotNil(t, d.Execution)
	// k1 * |z| * balance * dca = 0.01 * 1.5 * 10000 * 0.5
	assert.InDelta(t, 75.0, d.Execution.Size, 1e-9)
	assert.InDelta(t, 0.01, d.Execution.MaxSlippage, 1e-9)
	assert.InDelta(t, 0.5, d.Execution.DCAFactor, 1e-9)
	assert.True(t, d.Executable())
}

func TestBuyTheDipDowngradesOnRiskRejection(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)
	gate := newTestRiskGate(t, store)
	require.NoError(t, gate.UpdateTreasuryBalance(ctx, 10000))
	require.NoError(t, gate.ActivateKillSwitch(ctx, "manual halt"))

	d := engine.MakeDecision(ctx,
		moodWith(-2.0, 0, 0),
		models.MarketSignal{Momentum: -0.01},
	)

	// the rule still matched, the gate turned it into a NOOP
	assert.Equal(t, models.ActionNoop, d.Action)
	assert.Equal(t, RuleBuyTheDip, d.Rule)
	assert.Contains(t, d.Reason, "kill switch")
	assert.Nil(t, d.Execution)
	assert.False(t, d.Executable())
}

func TestBearishCrossoverBurn(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	// fast above slow, then fast crosses below
	first := engine.MakeDecision(ctx, moodWith(0, 10, 8), models.MarketSignal{Liquidity: 20000})
	require.Equal(t, models.ActionNoop, first.Action)

	d := engine.MakeDecision(ctx, moodWith(0, 4, 8), models.MarketSignal{Liquidity: 20000})
	assert.Equal(t, models.ActionBurn, d.Action)
	assert.Equal(t, RuleBearishCrossBurn, d.Rule)
}

func TestEmptyMoodDoesNotPollutePairHistory(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	engine.MakeDecision(ctx, moodWith(0, 2, 4), models.MarketSignal{Liquidity: 20000})
	// a quiet cycle aggregates to a zeroed mood with no volume
	engine.MakeDecision(ctx, models.AggregatedMood{}, models.MarketSignal{Liquidity: 20000})
	d := engine.MakeDecision(ctx, moodWith(0, 3, 5), models.MarketSignal{Liquidity: 20000})

	// fast stayed below slow throughout, the empty mood must not fake a cross
	assert.NotEqual(t, models.ActionBurn, d.Action)
	assert.Equal(t, RuleDefault, d.Rule)
	assert.Equal(t, 2, engine.PairHistoryLen())
}

func TestBuyTheDipZeroSizeDowngrades(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	// no treasury balance observed yet, sizing collapses to zero

	d := engine.MakeDecision(ctx, moodWith(-2.0, 0, 0), models.MarketSignal{Momentum: -0.01})

	assert.Equal(t, models.ActionNoop, d.Action)
	assert.Equal(t, RuleBuyTheDip, d.Rule)
	assert.Contains(t, d.Reason, "sized to zero")
	assert.Nil(t, d.Execution)
	assert.False(t, d.Executable())
}

func TestBurnSuppressedByThinLiquidity(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	engine.MakeDecision(ctx, moodWith(0, 10, 8), models.MarketSignal{Liquidity: 5000})
	d := engine.MakeDecision(ctx, moodWith(0, 4, 8), models.MarketSignal{Liquidity: 5000})

	assert.Equal(t, models.ActionNoop, d.Action)
	assert.Equal(t, RuleDefault, d.Rule)
}

func TestDefaultRuleOnNeutralSignals(t *testing.T) {
	engine, _ := newTestEngine(t)

	d := engine.MakeDecision(context.Background(), moodWith(0, 1, 1), models.MarketSignal{})

	assert.Equal(t, models.ActionNoop, d.Action)
	assert.Equal(t, RuleDefault, d.Rule)
	assert.Equal(t, "no clear signal", d.Reason)
}

func TestPairHistorySurvivesRestore(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t)

	engine.MakeDecision(ctx, moodWith(0, 10, 8), models.MarketSignal{Liquidity: 20000})

	restored := NewDecisionEngine(newTestRiskGate(t, store), store, newTestLogger(t), metrics.Nop{}, testEngineConfig())
	require.NoError(t, restored.Restore(ctx))
	require.Equal(t, 1, restored.PairHistoryLen())

	// the crossover completes across the restart
	d := restored.MakeDecision(ctx, moodWith(0, 4, 8), models.MarketSignal{Liquidity: 20000})
	assert.Equal(t, models.ActionBurn, d.Action)
}
