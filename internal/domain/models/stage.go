package models

import "time"

// Pipeline stage names, in fixed processing order.
const (
	StageReceived  = "received"
	StageEnriching = "enriching"
	StageDeciding  = "deciding"
	StageExecuting = "executing"
	StageCompleted = "completed"
)

// StageOrder is the fixed ordered stage set. Pipeline status derivation and
// completion estimates depend on this order.
var StageOrder = []string{
	StageReceived,
	StageEnriching,
	StageDeciding,
	StageExecuting,
	StageCompleted,
}

// Stage row statuses.
const (
	StageInProgress = "in_progress"
	StageStatusDone = "completed"
	StageStatusFail = "failed"
)

// ValidStage reports whether name is a member of the fixed stage set.
func ValidStage(name string) bool {
	for _, s := range StageOrder {
		if s == name {
			return true
		}
	}
	return false
}

// StageIndex returns the position of a stage in the fixed order, or -1.
func StageIndex(name string) int {
	for i, s := range StageOrder {
		if s == name {
			return i
		}
	}
	return -1
}

// ProcessingStage records the lifecycle of one named stage for one signal.
// At most one row exists per (signalID, stage); duplicates are conflicts.
type ProcessingStage struct {
	ID           string                 `json:"id"`
	SignalID     string                 `json:"signal_id"`
	Stage        string                 `json:"stage"`
	Status       string                 `json:"status"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	DurationMS   *int64                 `json:"duration_ms,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// PipelineStatus is the derived aggregate lifecycle view of one signal,
// computed from all of its recorded stages.
type PipelineStatus struct {
	SignalID            string            `json:"signal_id"`
	Status              string            `json:"status"` // in_progress | completed | failed
	CurrentStage        string            `json:"current_stage"`
	Stages              []ProcessingStage `json:"stages"`
	ErrorMessage        string            `json:"error_message,omitempty"`
	EstimatedCompletion *time.Time        `json:"estimated_completion,omitempty"`
}
