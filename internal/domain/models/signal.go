package models

import "time"

// Signal statuses as stored. A signal that exhausts its pipeline retries is
// marked rejected and dropped from the queue.
const (
	SignalStatusPending    = "pending"
	SignalStatusProcessing = "processing"
	SignalStatusCompleted  = "completed"
	SignalStatusRejected   = "rejected"
)

// Instrument types carried by inbound signals.
const (
	InstrumentStock  = "stock"
	InstrumentCall   = "call"
	InstrumentPut    = "put"
	InstrumentFuture = "future"
)

// Signal is an inbound trading opportunity event entering the pipeline.
type Signal struct {
	ID             string    `json:"id"`
	Ticker         string    `json:"ticker"`
	Action         string    `json:"action"` // "buy" | "sell"
	InstrumentType string    `json:"instrument_type"`
	EntryPrice     float64   `json:"entry_price"`
	PositionSize   float64   `json:"position_size"` // notional, quote currency
	Status         string    `json:"status"`
	Source         string    `json:"source,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EnrichmentResult is the output of the external enrichment collaborator.
type EnrichmentResult struct {
	SignalID    string                 `json:"signal_id"`
	DataQuality float64                `json:"data_quality"` // 0..1
	Data        map[string]interface{} `json:"data,omitempty"`
	EnrichedAt  time.Time              `json:"enriched_at"`
}

// Decision outcomes produced by the decision collaborator.
const (
	DecisionTrade  = "TRADE"
	DecisionReject = "REJECT"
	DecisionWait   = "WAIT"
)

// Decision is the enrichment-informed verdict for a signal.
type Decision struct {
	ID         string    `json:"id"`
	SignalID   string    `json:"signal_id"`
	Decision   string    `json:"decision"`   // TRADE | REJECT | WAIT
	Confidence float64   `json:"confidence"` // 0..1
	Quantity   int64     `json:"quantity,omitempty"`
	Strike     float64   `json:"strike,omitempty"`
	Expiration time.Time `json:"expiration,omitempty"`
	Reasoning  string    `json:"reasoning,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RuleSet is the active decision rule configuration passed through to the
// decision collaborator. Opaque to the pipeline.
type RuleSet struct {
	Name  string                 `json:"name"`
	Rules map[string]interface{} `json:"rules,omitempty"`
}
