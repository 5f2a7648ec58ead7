package models

// Requests for the monitoring HTTP endpoints. Defined in domain for consistency and reuse.

type ListWebhooksRequest struct {
	From           string `query:"from" json:"from"`
	To             string `query:"to" json:"to"`
	Status         string `query:"status" json:"status" validate:"omitempty,oneof=success failed rejected"`
	SourceIP       string `query:"ip" json:"ip"`
	SignalID       string `query:"signal_id" json:"signal_id"`
	MinPayloadSize int    `query:"min_size" json:"min_size" validate:"gte=0"`
	MinDurationMS  int64  `query:"min_duration_ms" json:"min_duration_ms" validate:"gte=0"`
	Limit          int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
	Offset         int    `query:"offset" json:"offset" validate:"gte=0"`
}

type UpdateWebhookRequest struct {
	SignalID     *string `json:"signal_id,omitempty"`
	Status       *string `json:"status,omitempty" validate:"omitempty,oneof=success failed rejected"`
	ProcessingMS *int64  `json:"processing_ms,omitempty" validate:"omitempty,gte=0"`
	ErrorMessage *string `json:"error_message,omitempty"`
	ErrorStack   *string `json:"error_stack,omitempty"`
}

type TrendsRequest struct {
	Hours int `query:"hours" json:"hours" default:"1" validate:"gte=1,lte=168"`
}

type AnomaliesRequest struct {
	Hours int `query:"hours" json:"hours" default:"24" validate:"gte=1,lte=168"`
}

type ListAlertsRequest struct {
	Severity   string `query:"severity" json:"severity" validate:"omitempty,oneof=info warning error critical"`
	Category   string `query:"category" json:"category"`
	Unresolved bool   `query:"unresolved" json:"unresolved"`
	Limit      int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
	Offset     int    `query:"offset" json:"offset" validate:"gte=0"`
}

type AckAlertRequest struct {
	By string `json:"by" validate:"required"`
}

type IngestSignalRequest struct {
	Ticker         string  `json:"ticker" validate:"required"`
	Action         string  `json:"action" validate:"required,oneof=buy sell"`
	InstrumentType string  `json:"instrument_type" default:"stock" validate:"oneof=stock call put future"`
	EntryPrice     float64 `json:"entry_price" validate:"gt=0"`
	PositionSize   float64 `json:"position_size" validate:"gt=0"`
	Source         string  `json:"source"`
	Signature      string  `json:"signature"`
}

type StartStageRequest struct {
	SignalID string                 `json:"signal_id" validate:"required"`
	Stage    string                 `json:"stage" validate:"required"`
	Status   string                 `json:"status" validate:"omitempty,oneof=in_progress completed failed"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type CompleteStageRequest struct {
	Status       string                 `json:"status" validate:"required,oneof=completed failed"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}
