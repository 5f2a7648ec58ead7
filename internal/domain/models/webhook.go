package models

import "time"

// Webhook request terminal statuses.
const (
	WebhookStatusSuccess  = "success"
	WebhookStatusFailed   = "failed"
	WebhookStatusRejected = "rejected"
)

// WebhookRequest is one recorded inbound request. Identity is immutable once
// created; the row is updated at most once more, when the originating signal
// and final processing outcome are known.
type WebhookRequest struct {
	ID             string                 `json:"id"`
	SourceIP       string                 `json:"source_ip"`
	UserAgent      string                 `json:"user_agent,omitempty"`
	Headers        map[string]string      `json:"headers,omitempty"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	PayloadSize    int                    `json:"payload_size"`
	Signature      string                 `json:"signature,omitempty"`
	ProcessingMS   int64                  `json:"processing_ms"`
	Status         string                 `json:"status"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	ErrorStack     string                 `json:"error_stack,omitempty"`
	SignalID       string                 `json:"signal_id,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// WebhookUpdate carries the one allowed follow-up mutation of a request row.
// Nil fields are left untouched.
type WebhookUpdate struct {
	SignalID     *string
	Status       *string
	ProcessingMS *int64
	ErrorMessage *string
	ErrorStack   *string
}

// WebhookFilter narrows webhook request queries. Zero values mean "no filter".
type WebhookFilter struct {
	From           time.Time
	To             time.Time
	Status         string
	SourceIP       string
	SignalID       string
	MinPayloadSize int
	MinDurationMS  int64
	Limit          int
	Offset         int
}
