package repository

import "time"

// Store key layout. Every durable record the core writes lives under one of
// these keys; the redis implementation prefixes them per deployment.
const (
	KeyMoodLatest      = "mood:latest"
	KeyMoodState       = "mood:state"
	KeyMoodHistory     = "history:mood"
	KeyDecisionLatest  = "decision:latest"
	KeyDecisionHistory = "history:decision"
	KeyEnginePairs     = "engine:ema_pairs"
	KeyExecLatest      = "execution:latest"
	KeyExecHistory     = "history:execution"
	KeyExecActive      = "execution:active"
	KeyRiskLosses      = "risk:consecutive_losses"
	KeyRiskKillSwitch  = "risk:kill_switch"
	KeyRiskBalance     = "risk:treasury_balance"
	KeyRiskLastExec    = "risk:last_execution"
	KeyRiskState       = "risk:state"
)

// History retention windows. Redis keeps the bounded tail; the ClickHouse
// archive keeps everything older.
const (
	MoodRetention     = 7 * 24 * time.Hour
	DecisionRetention = 30 * 24 * time.Hour
	ExecRetention     = 30 * 24 * time.Hour

	// DailySpendTTL expires a day's spend counter once the day is over.
	DailySpendTTL = 24 * time.Hour
)

// DailySpendKey returns the spend counter key for the calendar day of t.
func DailySpendKey(t time.Time) string {
	return "risk:daily_spent:" + t.UTC().Format("2006-01-02")
}
