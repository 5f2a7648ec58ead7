package models

import "time"

// Alert severities.
const (
	AlertInfo     = "info"
	AlertWarning  = "warning"
	AlertError    = "error"
	AlertCritical = "critical"
)

// Alert categories emitted by the evaluator.
const (
	AlertCategoryProcessingTime      = "processing_time"
	AlertCategoryErrorRate           = "error_rate"
	AlertCategoryQueueDepth          = "queue_depth"
	AlertCategoryMemory              = "memory"
	AlertCategoryCPU                 = "cpu"
	AlertCategoryConsecutiveFailures = "consecutive_failures"
)

// SystemAlert is created when a threshold is crossed. Acknowledge and resolve
// are one-way flag flips; redundant transitions are idempotent.
type SystemAlert struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Severity       string    `json:"severity"`
	Message        string    `json:"message"`
	Category       string    `json:"category"`
	Acknowledged   bool      `json:"acknowledged"`
	Resolved       bool      `json:"resolved"`
	AcknowledgedBy string    `json:"acknowledged_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AlertFilter narrows alert queries.
type AlertFilter struct {
	Severity     string
	Category     string
	Unresolved   bool
	CreatedAfter time.Time
	Limit        int
	Offset       int
}
