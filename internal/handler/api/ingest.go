package api

import (
	"encoding/json"
	"time"

	"SigFlow/internal/domain/models"
	domrepo "SigFlow/internal/domain/repository"
	"SigFlow/internal/usecase"
	xhttp "SigFlow/pkg/http"
	xlogger "SigFlow/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// IngestHandler is the webhook receiver: it records every inbound request,
// persists the signal, and hands it to the pipeline queue.
type IngestHandler struct {
	logger  *xlogger.Logger
	signals domrepo.SignalStore
	monitor *usecase.Monitor
	queue   *usecase.PipelineQueue
}

func NewIngestHandler(
	logger *xlogger.Logger,
	signals domrepo.SignalStore,
	monitor *usecase.Monitor,
	queue *usecase.PipelineQueue,
) *IngestHandler {
	return &IngestHandler{logger: logger, signals: signals, monitor: monitor, queue: queue}
}

func (h *IngestHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/signals", h.Ingest)
}

// Ingest handles one inbound signal webhook. The request record is written
// even when the payload is rejected, so the monitor sees every delivery.
func (h *IngestHandler) Ingest(c echo.Context) error {
	start := time.Now()

	req := &models.IngestSignalRequest{}
	verr := xhttp.ReadAndValidateRequest(c, req)

	record := &models.WebhookRequest{
		ID:        uuid.NewString(),
		SourceIP:  c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		Signature: req.Signature,
	}
	if b, err := json.Marshal(req); err == nil {
		record.PayloadSize = len(b)
		var payload map[string]interface{}
		if json.Unmarshal(b, &payload) == nil {
			record.Payload = payload
		}
	}

	if verr != nil {
		record.Status = models.WebhookStatusRejected
		record.ProcessingMS = time.Since(start).Milliseconds()
		if _, err := h.monitor.RecordWebhook(c.Request().Context(), record); err != nil {
			h.logger.Warn("webhook record failed", xlogger.Error(err))
		}
		return xhttp.BadRequestResponse(c, verr)
	}

	signal := &models.Signal{
		ID:             uuid.NewString(),
		Ticker:         req.Ticker,
		Action:         req.Action,
		InstrumentType: req.InstrumentType,
		EntryPrice:     req.EntryPrice,
		PositionSize:   req.PositionSize,
		Status:         models.SignalStatusPending,
		Source:         req.Source,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := h.signals.CreateSignal(c.Request().Context(), signal); err != nil {
		h.logger.Error("signal create failed", xlogger.Error(err))
		record.Status = models.WebhookStatusFailed
		record.ErrorMessage = err.Error()
		record.ProcessingMS = time.Since(start).Milliseconds()
		if _, rErr := h.monitor.RecordWebhook(c.Request().Context(), record); rErr != nil {
			h.logger.Warn("webhook record failed", xlogger.Error(rErr))
		}
		return xhttp.AppErrorResponse(c, xhttp.DatabaseError(err))
	}

	record.SignalID = signal.ID
	record.Status = models.WebhookStatusSuccess
	record.ProcessingMS = time.Since(start).Milliseconds()
	if _, err := h.monitor.RecordWebhook(c.Request().Context(), record); err != nil {
		h.logger.Warn("webhook record failed", xlogger.Error(err))
	}

	if err := h.queue.Enqueue(c.Request().Context(), signal.ID); err != nil {
		h.logger.Error("enqueue failed", xlogger.String("signal", signal.ID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	return xhttp.CreatedResponse(c, map[string]string{
		"signal_id":  signal.ID,
		"webhook_id": record.ID,
		"status":     signal.Status,
	})
}
