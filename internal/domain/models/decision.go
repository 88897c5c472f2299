package models

import "time"

// Action is the outcome of one decision cycle.
type Action string

const (
	ActionHodl    Action = "HODL"
	ActionBuyback Action = "BUYBACK"
	ActionBurn    Action = "BURN"
	ActionNoop    Action = "NOOP"
)

// ExecutionParams sizes a spend-gated action. DCAFactor is the fraction of
// the computed position deployed per cycle.
type ExecutionParams struct {
	Size        float64 `json:"size"`
	MaxSlippage float64 `json:"maxSlippage"`
	DCAFactor   float64 `json:"dcaFactor"`
}

// SignalsSnapshot freezes the inputs a decision was computed from.
type SignalsSnapshot struct {
	Mood   AggregatedMood `json:"mood"`
	Market MarketSignal   `json:"market"`
}

// PolicyDecision is one decision-cycle output. Persisted as "latest" plus an
// append-only timestamped history.
type PolicyDecision struct {
	Timestamp time.Time        `json:"timestamp"`
	Action    Action           `json:"action"`
	Rule      string           `json:"rule,omitempty"`
	Reason    string           `json:"reason"`
	Signals   SignalsSnapshot  `json:"signals"`
	Execution *ExecutionParams `json:"execution,omitempty"`
}

// Executable reports whether the decision needs dispatching to the chain.
func (d PolicyDecision) Executable() bool {
	return d.Action == ActionBuyback || d.Action == ActionBurn
}
