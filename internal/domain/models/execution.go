package models

import "time"

// ExecutionStatus is the lifecycle state of a dispatched action.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionConfirmed ExecutionStatus = "confirmed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status ends tracking.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionConfirmed || s == ExecutionFailed
}

// ExecutionRecord follows one dispatched action to a terminal outcome. It
// transitions exactly once to confirmed or failed, then leaves the active
// tracking set while remaining in the append-only history.
type ExecutionRecord struct {
	Decision        PolicyDecision  `json:"decision"`
	Reference       string          `json:"reference,omitempty"`
	Status          ExecutionStatus `json:"status"`
	AmountProcessed float64         `json:"amountProcessed,omitempty"`
	Error           string          `json:"error,omitempty"`
	DispatchedAt    time.Time       `json:"dispatchedAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}
