package repository

import (
	"context"
	"errors"
	"time"

	"MoodTreasury/internal/domain/models"
)

// ErrNotFound is returned by DurableStore reads for absent keys.
var ErrNotFound = errors.New("store: key not found")

// SentimentSource yields one finite batch of scored samples per call.
type SentimentSource interface {
	FetchBatch(ctx context.Context) ([]models.SentimentSample, error)
}

// MarketDataSource yields one market snapshot per call.
type MarketDataSource interface {
	Snapshot(ctx context.Context) (models.MarketSignal, error)
}

// ChainClient dispatches sized actions and reports their status. The core
// never sees chain-specific payloads, only opaque references.
type ChainClient interface {
	Submit(ctx context.Context, decision models.PolicyDecision) (reference string, err error)
	GetStatus(ctx context.Context, reference string) (models.ExecutionStatus, error)
}

// TreasuryObserver reports the current treasury balance. The balance is
// observed, never computed, by this core.
type TreasuryObserver interface {
	TreasuryBalance(ctx context.Context) (float64, error)
}

// DurableStore is the shared key-value contract every component persists
// through. Counters, "latest" snapshots, and time-indexed histories all live
// here; the engine assumes a single writer process.
type DurableStore interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	IncrByFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error)
	Delete(ctx context.Context, keys ...string) error
	AppendHistory(ctx context.Context, key string, at time.Time, value interface{}, retention time.Duration) error
	RangeHistory(ctx context.Context, key string, from, to time.Time, limit int) ([][]byte, error)
	Health(ctx context.Context) error
	Close() error
}

// Artifact kinds handed to ArtifactPublisher.
const (
	ArtifactMood      = "mood"
	ArtifactDecision  = "decision"
	ArtifactExecution = "execution"
	ArtifactRiskState = "risk_state"
)

// ArtifactPublisher fans "latest" artifacts out to downstream consumers
// (dashboards, audits). Publishing is best effort.
type ArtifactPublisher interface {
	Publish(ctx context.Context, kind string, value interface{}) error
	Close() error
}

// AuditArchive keeps the long-tail record of decisions and execution
// outcomes beyond the bounded store histories.
type AuditArchive interface {
	ArchiveDecision(ctx context.Context, d models.PolicyDecision) error
	ArchiveExecution(ctx context.Context, r models.ExecutionRecord) error
	Close() error
}

// Metrics records operational measurements.
type Metrics interface {
	RecordDecision(action string)
	RecordRiskRejection(check string)
	RecordExecutionOutcome(status string)
	RecordLoopIteration(loop string, seconds float64)
	RecordError(kind string)
	RecordTreasuryBalance(balance float64)
	RecordMood(raw, z float64)
}
