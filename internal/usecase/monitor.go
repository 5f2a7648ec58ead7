package usecase

import (
	"context"
	"errors"
	"time"

	"SigFlow/internal/domain/models"
	domrepo "SigFlow/internal/domain/repository"
	mid "SigFlow/internal/middleware"
	"SigFlow/internal/service/broadcast"
	xhttp "SigFlow/pkg/http"
	applogger "SigFlow/pkg/logger"

	"github.com/google/uuid"
)

// Default per-stage duration estimate when a signal has no completed stages
// to average yet.
const defaultStageEstimateMS = 5000

// Monitor is the webhook/stage monitoring facade: stage lifecycle tracking,
// webhook request recording and queries, and derived pipeline views.
type Monitor struct {
	signals  domrepo.SignalStore
	webhooks domrepo.WebhookStore
	stages   domrepo.StageStore
	metrics  domrepo.Metrics
	emitter  *mid.MonitorEmitter
	l        *applogger.Logger
}

// NewMonitor creates the monitoring facade.
func NewMonitor(
	signals domrepo.SignalStore,
	webhooks domrepo.WebhookStore,
	stages domrepo.StageStore,
	metrics domrepo.Metrics,
	emitter *mid.MonitorEmitter,
	l *applogger.Logger,
) *Monitor {
	return &Monitor{
		signals:  signals,
		webhooks: webhooks,
		stages:   stages,
		metrics:  metrics,
		emitter:  emitter,
		l:        l,
	}
}

// StartStageInput is the validated input to StartProcessingStage.
type StartStageInput struct {
	SignalID string
	Stage    string
	Status   string // defaults to in_progress
	Metadata map[string]interface{}
}

// StartProcessingStage creates the stage row for (signalID, stage). A second
// start for the same pair is a conflict, not an update.
func (m *Monitor) StartProcessingStage(ctx context.Context, in *StartStageInput) (*models.ProcessingStage, error) {
	if in == nil || in.SignalID == "" {
		return nil, xhttp.BadRequestError("signal id is required")
	}
	if !models.ValidStage(in.Stage) {
		return nil, xhttp.BadRequestErrorf("unknown stage %q", in.Stage)
	}
	status := in.Status
	if status == "" {
		status = models.StageInProgress
	}
	if status != models.StageInProgress && status != models.StageStatusDone && status != models.StageStatusFail {
		return nil, xhttp.BadRequestErrorf("invalid stage status %q", status)
	}

	if _, err := m.stages.GetStageBySignal(ctx, in.SignalID, in.Stage); err == nil {
		return nil, xhttp.ConflictErrorf("stage %s already recorded for signal %s", in.Stage, in.SignalID)
	} else if !errors.Is(err, domrepo.ErrNotFound) {
		return nil, xhttp.DatabaseError(err)
	}

	row := &models.ProcessingStage{
		ID:        uuid.NewString(),
		SignalID:  in.SignalID,
		Stage:     in.Stage,
		Status:    status,
		StartedAt: time.Now(),
		Metadata:  in.Metadata,
	}
	if err := m.stages.CreateStage(ctx, row); err != nil {
		if errors.Is(err, domrepo.ErrConflict) {
			return nil, xhttp.ConflictErrorf("stage %s already recorded for signal %s", in.Stage, in.SignalID)
		}
		return nil, xhttp.DatabaseError(err)
	}

	m.emitter.Emit(broadcast.ChannelStages, broadcast.EventStageStarted, row)
	return row, nil
}

// CompleteProcessingStage transitions an in_progress stage to completed or
// failed, computing duration and shallow-merging metadata. Completing a stage
// twice is an invalid-state error, not a no-op.
func (m *Monitor) CompleteProcessingStage(ctx context.Context, id, status string, metadata map[string]interface{}, errorMessage string) (*models.ProcessingStage, error) {
	if status != models.StageStatusDone && status != models.StageStatusFail {
		return nil, xhttp.BadRequestErrorf("invalid completion status %q", status)
	}

	row, err := m.stages.GetStage(ctx, id)
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return nil, xhttp.NotFoundErrorf("stage %s not found", id)
		}
		return nil, xhttp.DatabaseError(err)
	}
	if row.Status != models.StageInProgress {
		return nil, xhttp.InvalidStateErrorf("stage %s is %s, expected %s", id, row.Status, models.StageInProgress)
	}

	now := time.Now()
	dur := now.Sub(row.StartedAt).Milliseconds()
	row.Status = status
	row.CompletedAt = &now
	row.DurationMS = &dur
	row.ErrorMessage = errorMessage
	if len(metadata) > 0 {
		if row.Metadata == nil {
			row.Metadata = make(map[string]interface{}, len(metadata))
		}
		for k, v := range metadata {
			row.Metadata[k] = v
		}
	}

	if err := m.stages.UpdateStage(ctx, row); err != nil {
		return nil, xhttp.DatabaseError(err)
	}

	m.metrics.RecordStageDuration(row.Stage, float64(dur)/1000.0)
	m.emitter.Emit(broadcast.ChannelStages, broadcast.EventStageCompleted, row)
	return row, nil
}

// GetPipelineStatus derives the aggregate lifecycle view of a signal from
// all of its recorded stages.
func (m *Monitor) GetPipelineStatus(ctx context.Context, signalID string) (*models.PipelineStatus, error) {
	if signalID == "" {
		return nil, xhttp.BadRequestError("signal id is required")
	}
	rows, err := m.stages.ListStagesBySignal(ctx, signalID)
	if err != nil {
		return nil, xhttp.DatabaseError(err)
	}
	if len(rows) == 0 {
		return nil, xhttp.NotFoundErrorf("no stages recorded for signal %s", signalID)
	}

	ps := &models.PipelineStatus{SignalID: signalID, Stages: make([]models.ProcessingStage, 0, len(rows))}
	var failed, inProgress *models.ProcessingStage
	for _, r := range rows {
		ps.Stages = append(ps.Stages, *r)
		switch r.Status {
		case models.StageStatusFail:
			if failed == nil {
				failed = r
			}
		case models.StageInProgress:
			if inProgress == nil {
				inProgress = r
			}
		}
	}

	switch {
	case failed != nil:
		ps.Status = models.StageStatusFail
		ps.CurrentStage = failed.Stage
		ps.ErrorMessage = failed.ErrorMessage
	case inProgress != nil:
		ps.Status = models.StageInProgress
		ps.CurrentStage = inProgress.Stage
		eta := estimateCompletion(rows, inProgress)
		ps.EstimatedCompletion = &eta
	default:
		ps.Status = models.StageStatusDone
		ps.CurrentStage = rows[len(rows)-1].Stage
	}
	return ps, nil
}

// estimateCompletion projects remaining work from the average duration of
// this signal's completed stages, defaulting when nothing completed yet.
func estimateCompletion(rows []*models.ProcessingStage, current *models.ProcessingStage) time.Time {
	var sum int64
	var n int64
	for _, r := range rows {
		if r.DurationMS != nil && r.Status == models.StageStatusDone {
			sum += *r.DurationMS
			n++
		}
	}
	avg := int64(defaultStageEstimateMS)
	if n > 0 {
		avg = sum / n
	}

	remaining := len(models.StageOrder) - models.StageIndex(current.Stage)
	if remaining < 1 {
		remaining = 1
	}
	return time.Now().Add(time.Duration(int64(remaining)*avg) * time.Millisecond)
}

// RecordWebhook persists one inbound request record. The ingress collaborator
// calls this once per request.
func (m *Monitor) RecordWebhook(ctx context.Context, w *models.WebhookRequest) (*models.WebhookRequest, error) {
	if w == nil || w.SourceIP == "" {
		return nil, xhttp.BadRequestError("source ip is required")
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = models.WebhookStatusSuccess
	}
	w.CreatedAt = time.Now()

	if err := m.webhooks.CreateWebhook(ctx, w); err != nil {
		if errors.Is(err, domrepo.ErrConflict) {
			return nil, xhttp.ConflictErrorf("webhook request %s already recorded", w.ID)
		}
		return nil, xhttp.DatabaseError(err)
	}

	m.emitter.Emit(broadcast.ChannelWebhooks, broadcast.EventWebhookStored, w)
	return w, nil
}

// GetWebhook fetches one request record.
func (m *Monitor) GetWebhook(ctx context.Context, id string) (*models.WebhookRequest, error) {
	w, err := m.webhooks.GetWebhook(ctx, id)
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return nil, xhttp.NotFoundErrorf("webhook request %s not found", id)
		}
		return nil, xhttp.DatabaseError(err)
	}
	return w, nil
}

// UpdateWebhook applies the one allowed follow-up mutation (signal linkage
// and final processing outcome).
func (m *Monitor) UpdateWebhook(ctx context.Context, id string, upd *models.WebhookUpdate) (*models.WebhookRequest, error) {
	w, err := m.webhooks.UpdateWebhook(ctx, id, upd)
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return nil, xhttp.NotFoundErrorf("webhook request %s not found", id)
		}
		return nil, xhttp.DatabaseError(err)
	}
	return w, nil
}

// QueryWebhooks serves the filtered, paginated request listing.
func (m *Monitor) QueryWebhooks(ctx context.Context, f *models.WebhookFilter) ([]*models.WebhookRequest, int64, error) {
	rows, total, err := m.webhooks.QueryWebhooks(ctx, f)
	if err != nil {
		return nil, 0, xhttp.DatabaseError(err)
	}
	return rows, total, nil
}

// ListStages returns all recorded stages for one signal, in arrival order.
func (m *Monitor) ListStages(ctx context.Context, signalID string) ([]*models.ProcessingStage, error) {
	rows, err := m.stages.ListStagesBySignal(ctx, signalID)
	if err != nil {
		return nil, xhttp.DatabaseError(err)
	}
	return rows, nil
}

// HealthView is the derived operational summary served at /health.
type HealthView struct {
	Status           string  `json:"status"` // ok | degraded
	ErrorRate5m      float64 `json:"error_rate_5m"`
	InProgressStages int     `json:"in_progress_stages"`
	Webhooks5m       int     `json:"webhooks_5m"`
}

// Health derives a quick health summary from recent webhook outcomes and the
// global stage backlog.
func (m *Monitor) Health(ctx context.Context) (*HealthView, error) {
	since := time.Now().Add(-5 * time.Minute)
	total, err := m.webhooks.CountWebhooksSince(ctx, since, "")
	if err != nil {
		return nil, xhttp.DatabaseError(err)
	}
	failed, err := m.webhooks.CountWebhooksSince(ctx, since, models.WebhookStatusFailed)
	if err != nil {
		return nil, xhttp.DatabaseError(err)
	}
	backlog, err := m.stages.CountStagesByStatus(ctx, models.StageInProgress)
	if err != nil {
		return nil, xhttp.DatabaseError(err)
	}

	v := &HealthView{Status: "ok", InProgressStages: backlog, Webhooks5m: total}
	if total > 0 {
		v.ErrorRate5m = float64(failed) / float64(total)
	}
	if v.ErrorRate5m > 0.5 || backlog > 100 {
		v.Status = "degraded"
	}
	return v, nil
}
