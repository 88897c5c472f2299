package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MoodTreasury/internal/domain/models"
	drepo "MoodTreasury/internal/domain/repository"
	xlogger "MoodTreasury/pkg/logger"
)

// Check identifiers, used for rejection metrics.
const (
	CheckKillSwitch   = "kill_switch"
	CheckReserveFloor = "reserve_floor"
	CheckDailyCap     = "daily_cap"
	CheckLossStreak   = "loss_streak"
	CheckStoreErr     = "store_unavailable"
)

// Limits are the static risk constraints.
type Limits struct {
	MinTreasuryThreshold float64 // fraction of balance that must remain after a spend
	MaxDailySpendPercent float64 // percent of balance spendable per calendar day
	MaxConsecutiveLosses int
}

type killSwitch struct {
	Active bool      `json:"active"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Gate validates proposed spends against treasury, daily-budget, and
// loss-streak constraints backed by durable counters.
//
// CanExecute followed by RecordSpend is not transactional against the store;
// the deployment must guarantee a single live decision process.
type Gate struct {
	store   drepo.DurableStore
	log     *xlogger.Logger
	metrics drepo.Metrics
	limits  Limits
	now     func() time.Time
}

// NewGate creates a risk gate over the durable store.
func NewGate(store drepo.DurableStore, log *xlogger.Logger, metrics drepo.Metrics, limits Limits) *Gate {
	return &Gate{store: store, log: log, metrics: metrics, limits: limits, now: time.Now}
}

// SetNowFunc overrides the clock, for tests.
func (g *Gate) SetNowFunc(now func() time.Time) { g.now = now }

// CanExecute evaluates the ordered check chain against a proposed spend. The
// first failing check determines the reason. Store failures degrade to a
// rejection rather than an error; a rejection is a decision outcome, never a
// thrown condition.
func (g *Gate) CanExecute(ctx context.Context, amount float64) models.RiskVerdict {
	ks, err := g.killSwitchState(ctx)
	if err != nil {
		return g.unavailable("kill switch state", err)
	}
	if ks.Active {
		g.metrics.RecordRiskRejection(CheckKillSwitch)
		return models.RiskVerdict{Reason: fmt.Sprintf("kill switch active: %s", ks.Reason)}
	}

	// Balance is re-read for every check: the treasury monitor may have
	// refreshed it between checks within this call.
	balance, err := g.treasuryBalance(ctx)
	if err != nil {
		return g.unavailable("treasury balance", err)
	}
	minReserve := balance * g.limits.MinTreasuryThreshold
	if balance-amount < minReserve {
		g.metrics.RecordRiskRejection(CheckReserveFloor)
		return models.RiskVerdict{Reason: fmt.Sprintf(
			"would breach reserve floor: %.2f left after spend, minimum reserve %.2f", balance-amount, minReserve)}
	}

	spent, err := g.dailySpent(ctx)
	if err != nil {
		return g.unavailable("daily spend", err)
	}
	balance, err = g.treasuryBalance(ctx)
	if err != nil {
		return g.unavailable("treasury balance", err)
	}
	limit := balance * g.limits.MaxDailySpendPercent / 100
	if spent+amount > limit {
		g.metrics.RecordRiskRejection(CheckDailyCap)
		return models.RiskVerdict{Reason: fmt.Sprintf(
			"daily spend limit: %.2f spent + %.2f requested exceeds %.2f", spent, amount, limit)}
	}

	losses, err := g.consecutiveLosses(ctx)
	if err != nil {
		return g.unavailable("loss counter", err)
	}
	if losses >= g.limits.MaxConsecutiveLosses {
		g.metrics.RecordRiskRejection(CheckLossStreak)
		return models.RiskVerdict{Reason: fmt.Sprintf("max consecutive losses reached: %d", losses)}
	}

	return models.RiskVerdict{Allowed: true}
}

// RecordSpend counts an attempted spend against the current day's budget at
// dispatch time, before the outcome is known.
func (g *Gate) RecordSpend(ctx context.Context, amount float64) error {
	if amount != 0 {
		key := drepo.DailySpendKey(g.now())
		if _, err := g.store.IncrByFloat(ctx, key, amount, drepo.DailySpendTTL); err != nil {
			return fmt.Errorf("record spend: %w", err)
		}
	}
	if err := g.store.SetJSON(ctx, drepo.KeyRiskLastExec, g.now(), 0); err != nil {
		return fmt.Errorf("record spend time: %w", err)
	}
	return nil
}

// RecordExecution registers a terminal outcome. The amount, if nonzero, is
// added to the daily spend (callers that already counted the spend at
// dispatch pass 0). Success resets the loss streak to zero; failure
// increments it by one.
func (g *Gate) RecordExecution(ctx context.Context, amount float64, success bool) error {
	if amount != 0 {
		key := drepo.DailySpendKey(g.now())
		if _, err := g.store.IncrByFloat(ctx, key, amount, drepo.DailySpendTTL); err != nil {
			return fmt.Errorf("record execution spend: %w", err)
		}
	}

	if success {
		if err := g.store.SetJSON(ctx, drepo.KeyRiskLosses, 0, 0); err != nil {
			return fmt.Errorf("reset loss counter: %w", err)
		}
	} else {
		losses, err := g.consecutiveLosses(ctx)
		if err != nil {
			return fmt.Errorf("read loss counter: %w", err)
		}
		if err := g.store.SetJSON(ctx, drepo.KeyRiskLosses, losses+1, 0); err != nil {
			return fmt.Errorf("bump loss counter: %w", err)
		}
	}

	if err := g.store.SetJSON(ctx, drepo.KeyRiskLastExec, g.now(), 0); err != nil {
		return fmt.Errorf("record execution time: %w", err)
	}
	return nil
}

// ActivateKillSwitch halts every spend-gated action. Idempotent.
func (g *Gate) ActivateKillSwitch(ctx context.Context, reason string) error {
	g.log.Warn("kill switch activated", xlogger.String("reason", reason))
	return g.store.SetJSON(ctx, drepo.KeyRiskKillSwitch, killSwitch{Active: true, Reason: reason, At: g.now()}, 0)
}

// DeactivateKillSwitch re-enables spend-gated actions. Idempotent.
func (g *Gate) DeactivateKillSwitch(ctx context.Context) error {
	g.log.Info("kill switch deactivated")
	return g.store.SetJSON(ctx, drepo.KeyRiskKillSwitch, killSwitch{Active: false, At: g.now()}, 0)
}

// UpdateTreasuryBalance refreshes the observed treasury balance.
func (g *Gate) UpdateTreasuryBalance(ctx context.Context, balance float64) error {
	if err := g.store.SetJSON(ctx, drepo.KeyRiskBalance, balance, 0); err != nil {
		return fmt.Errorf("update treasury balance: %w", err)
	}
	g.metrics.RecordTreasuryBalance(balance)
	return nil
}

// TreasuryBalance returns the last observed treasury balance, 0 when none
// was ever recorded.
func (g *Gate) TreasuryBalance(ctx context.Context) (float64, error) {
	return g.treasuryBalance(ctx)
}

// State assembles the current risk snapshot from durable counters.
func (g *Gate) State(ctx context.Context) (models.RiskState, error) {
	var s models.RiskState
	var err error

	if s.TreasuryBalance, err = g.treasuryBalance(ctx); err != nil {
		return s, err
	}
	if s.DailySpent, err = g.dailySpent(ctx); err != nil {
		return s, err
	}
	if s.ConsecutiveLosses, err = g.consecutiveLosses(ctx); err != nil {
		return s, err
	}
	ks, err := g.killSwitchState(ctx)
	if err != nil {
		return s, err
	}
	s.KillSwitchActive = ks.Active
	s.KillSwitchReason = ks.Reason

	var last time.Time
	if err := g.store.GetJSON(ctx, drepo.KeyRiskLastExec, &last); err != nil && !errors.Is(err, drepo.ErrNotFound) {
		return s, err
	}
	s.LastExecutionTime = last
	return s, nil
}

func (g *Gate) unavailable(what string, err error) models.RiskVerdict {
	g.log.Error("risk check degraded to rejection", xlogger.String("read", what), xlogger.Error(err))
	g.metrics.RecordError("risk_store")
	g.metrics.RecordRiskRejection(CheckStoreErr)
	return models.RiskVerdict{Reason: "risk state unavailable"}
}

func (g *Gate) killSwitchState(ctx context.Context) (killSwitch, error) {
	var ks killSwitch
	if err := g.store.GetJSON(ctx, drepo.KeyRiskKillSwitch, &ks); err != nil {
		if errors.Is(err, drepo.ErrNotFound) {
			return killSwitch{}, nil
		}
		return ks, err
	}
	return ks, nil
}

func (g *Gate) treasuryBalance(ctx context.Context) (float64, error) {
	var v float64
	if err := g.store.GetJSON(ctx, drepo.KeyRiskBalance, &v); err != nil {
		if errors.Is(err, drepo.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

func (g *Gate) dailySpent(ctx context.Context) (float64, error) {
	var v float64
	if err := g.store.GetJSON(ctx, drepo.DailySpendKey(g.now()), &v); err != nil {
		if errors.Is(err, drepo.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

func (g *Gate) consecutiveLosses(ctx context.Context) (int, error) {
	var v int
	if err := g.store.GetJSON(ctx, drepo.KeyRiskLosses, &v); err != nil {
		if errors.Is(err, drepo.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}
