package repository

import (
	"context"
	"time"

	"SigFlow/internal/domain/models"
)

// SignalStore is the read/write contract for signals. The pipeline only
// touches signals through this interface; schema is owned elsewhere.
type SignalStore interface {
	CreateSignal(ctx context.Context, s *models.Signal) error
	GetSignal(ctx context.Context, id string) (*models.Signal, error)
	UpdateSignalStatus(ctx context.Context, id, status string) error
	CountSignalsSince(ctx context.Context, since time.Time) (int, error)
}

// WebhookStore records inbound requests and serves filtered queries.
type WebhookStore interface {
	CreateWebhook(ctx context.Context, w *models.WebhookRequest) error
	GetWebhook(ctx context.Context, id string) (*models.WebhookRequest, error)
	UpdateWebhook(ctx context.Context, id string, upd *models.WebhookUpdate) (*models.WebhookRequest, error)
	QueryWebhooks(ctx context.Context, f *models.WebhookFilter) ([]*models.WebhookRequest, int64, error)
	CountWebhooksSince(ctx context.Context, since time.Time, status string) (int, error)
	AvgProcessingSince(ctx context.Context, since time.Time) (float64, error)
}

// StageStore persists processing stage rows.
type StageStore interface {
	CreateStage(ctx context.Context, s *models.ProcessingStage) error
	GetStage(ctx context.Context, id string) (*models.ProcessingStage, error)
	GetStageBySignal(ctx context.Context, signalID, stage string) (*models.ProcessingStage, error)
	UpdateStage(ctx context.Context, s *models.ProcessingStage) error
	ListStagesBySignal(ctx context.Context, signalID string) ([]*models.ProcessingStage, error)
	CountStagesByStatus(ctx context.Context, status string) (int, error)
}

// MetricsStore holds the append-only snapshot series.
type MetricsStore interface {
	AppendSnapshot(ctx context.Context, m *models.SystemMetrics) error
	LatestSnapshot(ctx context.Context) (*models.SystemMetrics, error)
	SnapshotsSince(ctx context.Context, since time.Time) ([]*models.SystemMetrics, error)
}

// MetricsArchive is an optional secondary sink for snapshots (analytics
// store). Archive failures are monitoring-only and must be swallowed.
type MetricsArchive interface {
	Archive(ctx context.Context, m *models.SystemMetrics) error
}

// AlertStore persists system alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, a *models.SystemAlert) error
	GetAlert(ctx context.Context, id string) (*models.SystemAlert, error)
	UpdateAlert(ctx context.Context, a *models.SystemAlert) error
	QueryAlerts(ctx context.Context, f *models.AlertFilter) ([]*models.SystemAlert, int64, error)
	LatestAlertByCategory(ctx context.Context, category string) (*models.SystemAlert, error)
}

// DecisionStore persists decisions.
type DecisionStore interface {
	CreateDecision(ctx context.Context, d *models.Decision) error
	GetDecisionBySignal(ctx context.Context, signalID string) (*models.Decision, error)
	CountDecisionsSince(ctx context.Context, since time.Time, outcome string) (int, error)
}

// TradeStore persists one trade row per broker outcome.
type TradeStore interface {
	CreateTrade(ctx context.Context, t *models.TradeRecord) error
	ListTradesBySignal(ctx context.Context, signalID string) ([]*models.TradeRecord, error)
	CountTradesSince(ctx context.Context, since time.Time) (int, error)
}

// EnrichmentStore persists enrichment results for the deciding step re-read.
type EnrichmentStore interface {
	SaveEnrichment(ctx context.Context, e *models.EnrichmentResult) error
	GetEnrichment(ctx context.Context, signalID string) (*models.EnrichmentResult, error)
}

// Broadcaster is the fire-and-forget publish contract. Implementations must
// tolerate being a no-op when unconfigured; failures never propagate to the
// caller's control flow.
type Broadcaster interface {
	Publish(ctx context.Context, channel, event string, payload interface{}) error
}

// BrokerAdapter is an external order-execution endpoint.
type BrokerAdapter interface {
	Name() string
	PlaceOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResponse, error)
	GetOrderStatus(ctx context.Context, orderID string) (*models.OrderResponse, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetPositions(ctx context.Context) ([]models.Position, error)
	GetAccountInfo(ctx context.Context) (*models.AccountInfo, error)
}

// Enricher is the external enrichment collaborator.
type Enricher interface {
	Enrich(ctx context.Context, signalID string) (*models.EnrichmentResult, error)
}

// DecisionEngine is the external decision collaborator.
type DecisionEngine interface {
	Decide(ctx context.Context, signal *models.Signal, enriched *models.EnrichmentResult, rules *models.RuleSet) (*models.Decision, error)
}

// Notifier is the escalation channel for stale unacknowledged alerts.
type Notifier interface {
	Notify(ctx context.Context, a *models.SystemAlert) error
}

// EventPublisher emits pipeline facts (executed trades, dead-lettered
// signals) to the event stream.
type EventPublisher interface {
	PublishTradeExecuted(ctx context.Context, result *models.ExecutionResult, signalID string) error
	PublishSignalDeadLetter(ctx context.Context, signalID string, attempts int, reason string) error
	Close() error
}

// Metrics records operational counters. Backed by Prometheus in pkg/metrics.
type Metrics interface {
	RecordSignal(outcome string)
	RecordStageDuration(stage string, seconds float64)
	RecordBrokerOrder(broker, status string)
	SetQueueDepth(n int)
	RecordError(kind string)
	RecordBroadcast(channel string)
}
