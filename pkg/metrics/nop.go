package metrics

// Nop discards all measurements. Useful in tests and tools.
type Nop struct{}

func (Nop) RecordDecision(string)               {}
func (Nop) RecordRiskRejection(string)          {}
func (Nop) RecordExecutionOutcome(string)       {}
func (Nop) RecordLoopIteration(string, float64) {}
func (Nop) RecordError(string)                  {}
func (Nop) RecordTreasuryBalance(float64)       {}
func (Nop) RecordMood(float64, float64)         {}
