package models

import "time"

// RiskVerdict is the outcome of a spend check. A rejection is a first-class
// result, not an error.
type RiskVerdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// RiskState is the durable risk posture snapshot. DailySpent covers the
// current calendar day only; ConsecutiveLosses resets to zero on a
// successful execution and never otherwise decreases.
type RiskState struct {
	DailySpent        float64   `json:"dailySpent"`
	ConsecutiveLosses int       `json:"consecutiveLosses"`
	LastExecutionTime time.Time `json:"lastExecutionTime"`
	TreasuryBalance   float64   `json:"treasuryBalance"`
	KillSwitchActive  bool      `json:"killSwitchActive"`
	KillSwitchReason  string    `json:"killSwitchReason,omitempty"`
}
