package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SigFlow/internal/domain/models"
	domrepo "SigFlow/internal/domain/repository"
	mid "SigFlow/internal/middleware"
	"SigFlow/internal/service/broadcast"
	"SigFlow/pkg/cache"
	xhttp "SigFlow/pkg/http"
	applogger "SigFlow/pkg/logger"

	"github.com/google/uuid"
)

// AlertThresholds are the configured trip points for snapshot evaluation.
type AlertThresholds struct {
	ProcessingTimeMS    float64
	ErrorRate           float64
	QueueDepth          int
	MemoryUsage         float64
	CPUUsage            float64
	ConsecutiveFailures int
}

// DefaultThresholds returns the trip points used when config leaves them unset.
func DefaultThresholds() AlertThresholds {
	return AlertThresholds{
		ProcessingTimeMS:    5000,
		ErrorRate:           0.25,
		QueueDepth:          50,
		MemoryUsage:         0.90,
		CPUUsage:            0.85,
		ConsecutiveFailures: 5,
	}
}

// AlertEvaluator turns metric snapshots and stage/webhook failure events into
// alerts. Evaluation itself is threshold comparison; the only held state is
// the per-source consecutive-failure counter and the suppression cache.
type AlertEvaluator struct {
	alerts      domrepo.AlertStore
	suppression cache.Service
	notifier    domrepo.Notifier
	emitter     *mid.MonitorEmitter
	metrics     domrepo.Metrics
	l           *applogger.Logger

	thresholds      AlertThresholds
	suppressWindow  time.Duration
	escalateWindow  time.Duration

	mu          sync.Mutex
	consecutive map[string]int
}

// EvaluatorOption configures the evaluator.
type EvaluatorOption func(*AlertEvaluator)

// WithThresholds overrides the default trip points.
func WithThresholds(t AlertThresholds) EvaluatorOption {
	return func(e *AlertEvaluator) { e.thresholds = t }
}

// WithSuppressionWindow sets how long a category stays quiet after firing.
func WithSuppressionWindow(d time.Duration) EvaluatorOption {
	return func(e *AlertEvaluator) {
		if d > 0 {
			e.suppressWindow = d
		}
	}
}

// WithEscalationWindow sets how old an unacknowledged alert may get before
// it is pushed through the notifier.
func WithEscalationWindow(d time.Duration) EvaluatorOption {
	return func(e *AlertEvaluator) {
		if d > 0 {
			e.escalateWindow = d
		}
	}
}

// NewAlertEvaluator creates the evaluator.
func NewAlertEvaluator(
	alerts domrepo.AlertStore,
	suppression cache.Service,
	notifier domrepo.Notifier,
	emitter *mid.MonitorEmitter,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	opts ...EvaluatorOption,
) *AlertEvaluator {
	e := &AlertEvaluator{
		alerts:         alerts,
		suppression:    suppression,
		notifier:       notifier,
		emitter:        emitter,
		metrics:        metrics,
		l:              l,
		thresholds:     DefaultThresholds(),
		suppressWindow: 5 * time.Minute,
		escalateWindow: 15 * time.Minute,
		consecutive:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateSnapshot compares one metrics snapshot against the thresholds and
// raises alerts for every crossed one, subject to category suppression.
func (e *AlertEvaluator) EvaluateSnapshot(ctx context.Context, snap *models.SystemMetrics) []*models.SystemAlert {
	if snap == nil {
		return nil
	}
	var raised []*models.SystemAlert
	add := func(a *models.SystemAlert) {
		if a != nil {
			raised = append(raised, a)
		}
	}

	if e.thresholds.ProcessingTimeMS > 0 && snap.AvgProcessingMS > e.thresholds.ProcessingTimeMS {
		add(e.raise(ctx, models.AlertWarning, models.AlertCategoryProcessingTime, "slow_processing",
			fmt.Sprintf("average processing time %.0fms exceeds %.0fms", snap.AvgProcessingMS, e.thresholds.ProcessingTimeMS)))
	}
	if e.thresholds.ErrorRate > 0 && snap.ErrorRate > e.thresholds.ErrorRate {
		add(e.raise(ctx, models.AlertError, models.AlertCategoryErrorRate, "high_error_rate",
			fmt.Sprintf("error rate %.1f%% exceeds %.1f%%", snap.ErrorRate*100, e.thresholds.ErrorRate*100)))
	}
	if e.thresholds.QueueDepth > 0 && snap.QueueDepth > e.thresholds.QueueDepth {
		add(e.raise(ctx, models.AlertWarning, models.AlertCategoryQueueDepth, "queue_backlog",
			fmt.Sprintf("queue depth %d exceeds %d", snap.QueueDepth, e.thresholds.QueueDepth)))
	}
	if e.thresholds.MemoryUsage > 0 && snap.MemoryUsage > e.thresholds.MemoryUsage {
		add(e.raise(ctx, models.AlertCritical, models.AlertCategoryMemory, "memory_pressure",
			fmt.Sprintf("heap usage %.0f%% exceeds %.0f%%", snap.MemoryUsage*100, e.thresholds.MemoryUsage*100)))
	}
	if e.thresholds.CPUUsage > 0 && snap.CPUUsage > e.thresholds.CPUUsage {
		add(e.raise(ctx, models.AlertCritical, models.AlertCategoryCPU, "cpu_pressure",
			fmt.Sprintf("cpu usage %.0f%% exceeds %.0f%%", snap.CPUUsage*100, e.thresholds.CPUUsage*100)))
	}
	return raised
}

// RecordFailure tracks one failure event for a source (e.g. a webhook source
// or pipeline step) and raises once the consecutive-failure ceiling is hit.
func (e *AlertEvaluator) RecordFailure(ctx context.Context, source string) *models.SystemAlert {
	e.mu.Lock()
	e.consecutive[source]++
	n := e.consecutive[source]
	e.mu.Unlock()

	if e.thresholds.ConsecutiveFailures <= 0 || n < e.thresholds.ConsecutiveFailures {
		return nil
	}
	return e.raise(ctx, models.AlertError, models.AlertCategoryConsecutiveFailures, "consecutive_failures",
		fmt.Sprintf("%d consecutive failures from %s", n, source))
}

// RecordSuccess resets the consecutive-failure counter for a source.
func (e *AlertEvaluator) RecordSuccess(source string) {
	e.mu.Lock()
	delete(e.consecutive, source)
	e.mu.Unlock()
}

// raise creates and broadcasts one alert unless its category is suppressed.
func (e *AlertEvaluator) raise(ctx context.Context, severity, category, alertType, message string) *models.SystemAlert {
	suppressKey := cache.GenerateKey("alert:suppress", category)
	if ok, err := e.suppression.Exists(ctx, suppressKey); err == nil && ok {
		return nil
	}

	a := &models.SystemAlert{
		ID:        uuid.NewString(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Category:  category,
		CreatedAt: time.Now(),
	}
	if err := e.alerts.CreateAlert(ctx, a); err != nil {
		e.metrics.RecordError("alert_create")
		if e.l != nil {
			e.l.Warn("alert create failed", applogger.Error(err))
		}
		return nil
	}
	if err := e.suppression.Set(ctx, suppressKey, "1", e.suppressWindow); err != nil && e.l != nil {
		e.l.Debug("alert suppression mark failed", applogger.Error(err))
	}

	e.emitter.Emit(broadcast.ChannelAlerts, broadcast.EventAlertRaised, a)
	if e.l != nil {
		e.l.Warn("alert raised",
			applogger.String("category", category),
			applogger.String("severity", severity),
			applogger.String("message", message),
		)
	}
	return a
}

// Acknowledge flips the acknowledged flag. Re-acknowledging is idempotent.
func (e *AlertEvaluator) Acknowledge(ctx context.Context, id, by string) (*models.SystemAlert, error) {
	a, err := e.alerts.GetAlert(ctx, id)
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return nil, xhttp.NotFoundErrorf("alert %s not found", id)
		}
		return nil, xhttp.DatabaseError(err)
	}
	if a.Acknowledged {
		return a, nil
	}
	a.Acknowledged = true
	a.AcknowledgedBy = by
	if err := e.alerts.UpdateAlert(ctx, a); err != nil {
		return nil, xhttp.DatabaseError(err)
	}
	e.emitter.Emit(broadcast.ChannelAlerts, broadcast.EventAlertUpdated, a)
	return a, nil
}

// Resolve flips the resolved flag. Re-resolving is idempotent.
func (e *AlertEvaluator) Resolve(ctx context.Context, id string) (*models.SystemAlert, error) {
	a, err := e.alerts.GetAlert(ctx, id)
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return nil, xhttp.NotFoundErrorf("alert %s not found", id)
		}
		return nil, xhttp.DatabaseError(err)
	}
	if a.Resolved {
		return a, nil
	}
	a.Resolved = true
	if err := e.alerts.UpdateAlert(ctx, a); err != nil {
		return nil, xhttp.DatabaseError(err)
	}
	e.emitter.Emit(broadcast.ChannelAlerts, broadcast.EventAlertUpdated, a)
	return a, nil
}

// Query serves the filtered alert listing.
func (e *AlertEvaluator) Query(ctx context.Context, f *models.AlertFilter) ([]*models.SystemAlert, int64, error) {
	rows, total, err := e.alerts.QueryAlerts(ctx, f)
	if err != nil {
		return nil, 0, xhttp.DatabaseError(err)
	}
	return rows, total, nil
}

// EscalateStale pushes unacknowledged, unresolved alerts older than the
// escalation window through the notifier. Notifier failures are logged only.
func (e *AlertEvaluator) EscalateStale(ctx context.Context) int {
	cutoff := time.Now().Add(-e.escalateWindow)
	rows, _, err := e.alerts.QueryAlerts(ctx, &models.AlertFilter{Unresolved: true})
	if err != nil {
		e.metrics.RecordError("alert_escalate")
		return 0
	}
	escalated := 0
	for _, a := range rows {
		if a.Acknowledged || a.CreatedAt.After(cutoff) {
			continue
		}
		if err := e.notifier.Notify(ctx, a); err != nil {
			e.metrics.RecordError("alert_notify")
			if e.l != nil {
				e.l.Warn("alert escalation failed", applogger.String("alert", a.ID), applogger.Error(err))
			}
			continue
		}
		escalated++
	}
	return escalated
}

// RunEscalation periodically escalates stale alerts until ctx is cancelled.
func (e *AlertEvaluator) RunEscalation(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.EscalateStale(ctx)
		}
	}
}

// LogNotifier is the default escalation channel when none is configured: it
// writes the escalation to the structured log.
type LogNotifier struct {
	L *applogger.Logger
}

func (n *LogNotifier) Notify(_ context.Context, a *models.SystemAlert) error {
	if n.L != nil {
		n.L.Error("alert escalated",
			applogger.String("alert", a.ID),
			applogger.String("category", a.Category),
			applogger.String("severity", a.Severity),
			applogger.String("message", a.Message),
		)
	}
	return nil
}
