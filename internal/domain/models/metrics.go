package models

import "time"

// SystemMetrics is one immutable snapshot of system and business counters.
// Snapshots form an append-only time series; rows are never mutated.
type SystemMetrics struct {
	ID                string    `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	WebhooksPerMinute float64   `json:"webhooks_per_minute"`
	AvgProcessingMS   float64   `json:"avg_processing_ms"`
	ErrorRate         float64   `json:"error_rate"` // failed/total over 5m window
	QueueDepth        int       `json:"queue_depth"`
	MemoryUsage       float64   `json:"memory_usage"` // heap in-use ratio, 0..1
	CPUUsage          float64   `json:"cpu_usage"`    // 0..1, 100ms sample
	DBConnections     int       `json:"db_connections"`
	SignalsProcessed  int       `json:"signals_processed"` // trailing hour
	TradesExecuted    int       `json:"trades_executed"`
	DecisionsApproved int       `json:"decisions_approved"`
	DecisionsRejected int       `json:"decisions_rejected"`
}

// Trend directions.
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// MetricTrend compares the first and second half averages of one metric
// over a range.
type MetricTrend struct {
	Metric     string  `json:"metric"`
	FirstHalf  float64 `json:"first_half_avg"`
	SecondHalf float64 `json:"second_half_avg"`
	ChangePct  float64 `json:"change_pct"`
	Direction  string  `json:"direction"`
}

// Anomaly severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// MetricAnomaly is one snapshot value whose deviation from the windowed mean
// exceeds the z-score threshold.
type MetricAnomaly struct {
	Metric    string    `json:"metric"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"std_dev"`
	ZScore    float64   `json:"z_score"`
	Severity  string    `json:"severity"`
}

// AnomalyReport aggregates detected anomalies over a lookback window.
type AnomalyReport struct {
	Anomalies []MetricAnomaly `json:"anomalies"`
	Summary   AnomalySummary  `json:"summary"`
}

// AnomalySummary counts anomalies and names affected metrics.
type AnomalySummary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	Metrics    []string       `json:"metrics"`
	Snapshots  int            `json:"snapshots"`
}
