package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SigFlow/internal/domain/models"
	"SigFlow/internal/domain/repository"
)

// ClickHouseMetricsArchive mirrors metrics snapshots into ClickHouse for
// long-range analytics. The in-memory MetricsStore stays authoritative for
// trend/anomaly windows; this archive is write-only from the collector's
// point of view and failures here are monitoring-only.
type ClickHouseMetricsArchive struct {
	db    *sql.DB
	table string
}

// NewClickHouseMetricsArchive creates the archive over an open pool.
func NewClickHouseMetricsArchive(db *sql.DB, table string) repository.MetricsArchive {
	return &ClickHouseMetricsArchive{db: db, table: table}
}

// Schema returns idempotent DDL for the archive table.
func Schema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ts DateTime,
			webhooks_per_minute Float64,
			avg_processing_ms Float64,
			error_rate Float64,
			queue_depth UInt32,
			memory_usage Float64,
			cpu_usage Float64,
			db_connections UInt16,
			signals_processed UInt32,
			trades_executed UInt32,
			decisions_approved UInt32,
			decisions_rejected UInt32
		) ENGINE=MergeTree ORDER BY ts`, table),
	}
}

func (a *ClickHouseMetricsArchive) Archive(ctx context.Context, m *models.SystemMetrics) error {
	q := fmt.Sprintf(`INSERT INTO %s
		(ts, webhooks_per_minute, avg_processing_ms, error_rate, queue_depth,
		 memory_usage, cpu_usage, db_connections, signals_processed,
		 trades_executed, decisions_approved, decisions_rejected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, a.table)
	_, err := a.db.ExecContext(ctx, q,
		m.Timestamp.Truncate(time.Second),
		m.WebhooksPerMinute,
		m.AvgProcessingMS,
		m.ErrorRate,
		uint32(m.QueueDepth),
		m.MemoryUsage,
		m.CPUUsage,
		uint16(m.DBConnections),
		uint32(m.SignalsProcessed),
		uint32(m.TradesExecuted),
		uint32(m.DecisionsApproved),
		uint32(m.DecisionsRejected),
	)
	return err
}

// NoopArchive is used when ClickHouse is not configured.
type NoopArchive struct{}

func (NoopArchive) Archive(context.Context, *models.SystemMetrics) error { return nil }
