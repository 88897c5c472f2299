package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"MoodTreasury/internal/domain/models"
	drepo "MoodTreasury/internal/domain/repository"
	pkgch "MoodTreasury/pkg/clickhouse"
	applogger "MoodTreasury/pkg/logger"
)

// CHAudit implements AuditArchive backed by ClickHouse. Redis keeps the
// bounded-retention histories; this archive keeps the long tail for offline
// dashboards and audits.
type CHAudit struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

// NewCHAudit creates a ClickHouse audit archive.
func NewCHAudit(ch *pkgch.Client, database string) *CHAudit {
	return &CHAudit{db: ch.DB(), database: database}
}

// SetLogger injects a structured logger.
func (a *CHAudit) SetLogger(l *applogger.Logger) { a.l = l }

// AuditSchema returns the idempotent DDL for the archive tables.
func AuditSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.decisions (
			ts DateTime64(3),
			action LowCardinality(String),
			rule LowCardinality(String),
			reason String,
			raw_score Float64,
			z_score Float64,
			size Float64,
			snapshot String
		) ENGINE=MergeTree ORDER BY ts`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.executions (
			ts DateTime64(3),
			reference String,
			action LowCardinality(String),
			status LowCardinality(String),
			amount Float64,
			error String
		) ENGINE=MergeTree ORDER BY ts`, database),
	}
}

func (a *CHAudit) ArchiveDecision(ctx context.Context, d models.PolicyDecision) error {
	snapshot, err := json.Marshal(d.Signals)
	if err != nil {
		return fmt.Errorf("marshal signals snapshot: %w", err)
	}
	size := 0.0
	if d.Execution != nil {
		size = d.Execution.Size
	}

	q := fmt.Sprintf("INSERT INTO %s.decisions (ts, action, rule, reason, raw_score, z_score, size, snapshot) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", a.database)
	if _, err := a.db.ExecContext(ctx, q,
		d.Timestamp,
		string(d.Action),
		d.Rule,
		d.Reason,
		d.Signals.Mood.RawScore,
		d.Signals.Mood.ZScore,
		size,
		string(snapshot),
	); err != nil {
		if a.l != nil {
			a.l.Error("clickhouse decision insert error", applogger.Error(err))
		}
		return fmt.Errorf("archive decision: %w", err)
	}
	return nil
}

func (a *CHAudit) ArchiveExecution(ctx context.Context, r models.ExecutionRecord) error {
	q := fmt.Sprintf("INSERT INTO %s.executions (ts, reference, action, status, amount, error) VALUES (?, ?, ?, ?, ?, ?)", a.database)
	if _, err := a.db.ExecContext(ctx, q,
		r.UpdatedAt,
		r.Reference,
		string(r.Decision.Action),
		string(r.Status),
		r.AmountProcessed,
		r.Error,
	); err != nil {
		if a.l != nil {
			a.l.Error("clickhouse execution insert error", applogger.Error(err))
		}
		return fmt.Errorf("archive execution: %w", err)
	}
	return nil
}

func (a *CHAudit) Close() error {
	return nil // connection pool managed by pkg client
}

// NoopAudit drops archive writes; used when ClickHouse is disabled.
type NoopAudit struct{}

func (NoopAudit) ArchiveDecision(context.Context, models.PolicyDecision) error   { return nil }
func (NoopAudit) ArchiveExecution(context.Context, models.ExecutionRecord) error { return nil }
func (NoopAudit) Close() error                                                   { return nil }

var _ drepo.AuditArchive = (*CHAudit)(nil)
var _ drepo.AuditArchive = NoopAudit{}
