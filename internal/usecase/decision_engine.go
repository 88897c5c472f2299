package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"MoodTreasury/internal/domain/models"
	drepo "MoodTreasury/internal/domain/repository"
	"MoodTreasury/internal/services/risk"
	"MoodTreasury/internal/services/stats"
	xlogger "MoodTreasury/pkg/logger"
)

// Rule names, recorded on each decision.
const (
	RuleHoldDuringHype   = "hold_during_hype"
	RuleBuyTheDip        = "buy_the_dip"
	RuleBearishCrossBurn = "bearish_crossover_burn"
	RuleDefault          = "default"
)

// EngineConfig tunes the decision rule thresholds.
type EngineConfig struct {
	HypeThreshold    float64
	FudThreshold     float64
	MomentumPositive float64
	MomentumNegative float64
	BuybackK1        float64
	DCAFactor        float64
	MaxSlippage      float64
	LiquidityFloor   float64
	PairHistoryCap   int
}

type emaPair struct {
	Fast float64 `json:"fast"` // ema15
	Slow float64 `json:"slow"` // ema60
}

type ruleContext struct {
	mood    models.AggregatedMood
	market  models.MarketSignal
	cross   stats.CrossDirection
	balance float64
}

// rule is one entry in the ordered policy list. The first rule whose
// predicate matches builds the decision; later rules are unreachable.
type rule struct {
	name    string
	matches func(rc ruleContext) bool
	build   func(ctx context.Context, rc ruleContext) models.PolicyDecision
}

// DecisionEngine converts an aggregated mood and a market snapshot into a
// PolicyDecision by evaluating an ordered rule list, consulting the risk
// gate for spend-sized actions. Its only cross-call state is the durable
// (ema15, ema60) pair history feeding crossover detection.
type DecisionEngine struct {
	gate    *risk.Gate
	store   drepo.DurableStore
	log     *xlogger.Logger
	metrics drepo.Metrics
	cfg     EngineConfig

	pairs []emaPair
	rules []rule
	now   func() time.Time
}

// NewDecisionEngine creates a decision engine.
func NewDecisionEngine(gate *risk.Gate, store drepo.DurableStore, log *xlogger.Logger, metrics drepo.Metrics, cfg EngineConfig) *DecisionEngine {
	if cfg.PairHistoryCap <= 0 {
		cfg.PairHistoryCap = 100
	}
	e := &DecisionEngine{
		gate:    gate,
		store:   store,
		log:     log,
		metrics: metrics,
		cfg:     cfg,
		now:     time.Now,
	}
	e.rules = []rule{
		{
			name: RuleHoldDuringHype,
			matches: func(rc ruleContext) bool {
				return rc.mood.ZScore >= cfg.HypeThreshold && rc.market.Momentum >= cfg.MomentumPositive
			},
			build: func(_ context.Context, rc ruleContext) models.PolicyDecision {
				return e.decision(rc, models.ActionHodl, RuleHoldDuringHype,
					fmt.Sprintf("sentiment spike (z=%.2f) with positive momentum, holding through hype", rc.mood.ZScore), nil)
			},
		},
		{
			name: RuleBuyTheDip,
			matches: func(rc ruleContext) bool {
				return rc.mood.ZScore <= cfg.FudThreshold && rc.market.Momentum <= cfg.MomentumNegative
			},
			build: e.buildBuyback,
		},
		{
			name: RuleBearishCrossBurn,
			matches: func(rc ruleContext) bool {
				return rc.cross == stats.CrossDown && rc.market.Liquidity > cfg.LiquidityFloor
			},
			build: func(_ context.Context, rc ruleContext) models.PolicyDecision {
				// Burn amount is a fixed fraction of holdings, sized by the
				// execution layer, not here.
				return e.decision(rc, models.ActionBurn, RuleBearishCrossBurn,
					"bearish ema15/ema60 crossover with sufficient liquidity", nil)
			},
		},
		{
			name:    RuleDefault,
			matches: func(ruleContext) bool { return true },
			build: func(_ context.Context, rc ruleContext) models.PolicyDecision {
				return e.decision(rc, models.ActionNoop, RuleDefault, "no clear signal", nil)
			},
		},
	}
	return e
}

// SetNowFunc overrides the clock, for tests.
func (e *DecisionEngine) SetNowFunc(now func() time.Time) { e.now = now }

// Restore loads the persisted ema pair history. Missing or corrupt state
// starts from empty, which silently resets crossover detection.
func (e *DecisionEngine) Restore(ctx context.Context) error {
	var pairs []emaPair
	if err := e.store.GetJSON(ctx, drepo.KeyEnginePairs, &pairs); err != nil {
		if errors.Is(err, drepo.ErrNotFound) {
			e.log.Warn("no persisted ema pair history, crossover detection resets")
			return nil
		}
		e.log.Warn("ema pair history unreadable, crossover detection resets", xlogger.Error(err))
		return nil
	}
	if len(pairs) > e.cfg.PairHistoryCap {
		pairs = pairs[len(pairs)-e.cfg.PairHistoryCap:]
	}
	e.pairs = pairs
	return nil
}

// PairHistoryLen returns the current ema pair history length.
func (e *DecisionEngine) PairHistoryLen() int { return len(e.pairs) }

// MakeDecision evaluates the rule list top to bottom and returns the first
// match. The ema pair history advances on every non-empty mood, whichever
// rule fires, so crossover detection keeps continuity. An empty batch
// leaves the aggregator's EMAs untouched, so its zeroed mood must not enter
// the pair history: a zero pair would read as "fast at or above slow" and
// the next real mood below the slow line would register a phantom cross.
func (e *DecisionEngine) MakeDecision(ctx context.Context, mood models.AggregatedMood, market models.MarketSignal) models.PolicyDecision {
	if mood.Volume > 0 {
		e.pairs = append(e.pairs, emaPair{Fast: mood.EMA15, Slow: mood.EMA60})
		if len(e.pairs) > e.cfg.PairHistoryCap {
			e.pairs = e.pairs[1:]
		}
		e.savePairs(ctx)
	}

	fast := make([]float64, len(e.pairs))
	slow := make([]float64, len(e.pairs))
	for i, p := range e.pairs {
		fast[i] = p.Fast
		slow[i] = p.Slow
	}

	rc := ruleContext{
		mood:   mood,
		market: market,
		cross:  stats.Crossover(fast, slow),
	}
	if balance, err := e.gate.TreasuryBalance(ctx); err != nil {
		e.log.Error("treasury balance read failed, sizing from zero", xlogger.Error(err))
		e.metrics.RecordError("engine_balance")
	} else {
		rc.balance = balance
	}

	for _, r := range e.rules {
		if !r.matches(rc) {
			continue
		}
		d := r.build(ctx, rc)
		e.metrics.RecordDecision(string(d.Action))
		e.log.Info("decision made",
			xlogger.String("rule", d.Rule),
			xlogger.String("action", string(d.Action)),
			xlogger.String("reason", d.Reason),
		)
		return d
	}

	// unreachable, the default rule always matches
	return e.decision(rc, models.ActionNoop, RuleDefault, "no clear signal", nil)
}

// buildBuyback sizes a dip buy and gates it through the risk chain. A
// rejection downgrades the decision to NOOP carrying the rejection reason.
func (e *DecisionEngine) buildBuyback(ctx context.Context, rc ruleContext) models.PolicyDecision {
	size := e.cfg.BuybackK1 * math.Abs(rc.mood.ZScore) * rc.balance * e.cfg.DCAFactor
	if size <= 0 {
		// balance unobserved or z-score flat; nothing worth dispatching
		return e.decision(rc, models.ActionNoop, RuleBuyTheDip, "buyback sized to zero", nil)
	}

	verdict := e.gate.CanExecute(ctx, size)
	if !verdict.Allowed {
		return e.decision(rc, models.ActionNoop, RuleBuyTheDip, verdict.Reason, nil)
	}

	return e.decision(rc, models.ActionBuyback, RuleBuyTheDip,
		fmt.Sprintf("sentiment dip (z=%.2f) with negative momentum, buying %.2f", rc.mood.ZScore, size),
		&models.ExecutionParams{
			Size:        size,
			MaxSlippage: e.cfg.MaxSlippage,
			DCAFactor:   e.cfg.DCAFactor,
		})
}

func (e *DecisionEngine) decision(rc ruleContext, action models.Action, ruleName, reason string, params *models.ExecutionParams) models.PolicyDecision {
	return models.PolicyDecision{
		Timestamp: e.now().UTC(),
		Action:    action,
		Rule:      ruleName,
		Reason:    reason,
		Signals:   models.SignalsSnapshot{Mood: rc.mood, Market: rc.market},
		Execution: params,
	}
}

func (e *DecisionEngine) savePairs(ctx context.Context) {
	if err := e.store.SetJSON(ctx, drepo.KeyEnginePairs, e.pairs, 0); err != nil {
		e.log.Error("persist ema pair history failed", xlogger.Error(err))
		e.metrics.RecordError("engine_state")
	}
}
