package broadcast

import (
	"context"
	"time"
)

// Broadcast channels and event names used by the pipeline. Subscribers key
// off these; keep them stable.
const (
	ChannelStages   = "stages"
	ChannelMetrics  = "metrics"
	ChannelAlerts   = "alerts"
	ChannelWebhooks = "webhooks"

	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventSnapshot       = "metrics_snapshot"
	EventAlertRaised    = "alert_raised"
	EventAlertUpdated   = "alert_updated"
	EventWebhookStored  = "webhook_recorded"
)

// Envelope is the wire shape of every broadcast message.
type Envelope struct {
	Channel   string      `json:"channel"`
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NoopSink satisfies the Broadcaster contract when broadcasting is
// unconfigured.
type NoopSink struct{}

func (NoopSink) Publish(context.Context, string, string, interface{}) error { return nil }

// Fanout publishes to several sinks; the first error is returned but every
// sink is attempted. The emitter treats errors as log-only anyway.
type Fanout struct {
	Sinks []interface {
		Publish(ctx context.Context, channel, event string, payload interface{}) error
	}
}

func (f *Fanout) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	var first error
	for _, s := range f.Sinks {
		if err := s.Publish(ctx, channel, event, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}
