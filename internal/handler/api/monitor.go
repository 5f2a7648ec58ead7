package api

import (
	"time"

	"SigFlow/internal/domain/models"
	"SigFlow/internal/service/broadcast"
	"SigFlow/internal/service/ratelimit"
	"SigFlow/internal/usecase"
	xhttp "SigFlow/pkg/http"
	xlogger "SigFlow/pkg/logger"

	"github.com/labstack/echo/v4"
)

// MonitorHandler exposes the monitoring facade over Echo: webhook request
// queries, stage and pipeline views, queue state, metrics, and alerts.
type MonitorHandler struct {
	logger    *xlogger.Logger
	monitor   *usecase.Monitor
	collector *usecase.MetricsCollector
	evaluator *usecase.AlertEvaluator
	executor  *usecase.TradeExecutor
	queue     *usecase.PipelineQueue
	hub       *broadcast.Hub
	limiter   *ratelimit.Limiter
}

func NewMonitorHandler(
	logger *xlogger.Logger,
	monitor *usecase.Monitor,
	collector *usecase.MetricsCollector,
	evaluator *usecase.AlertEvaluator,
	executor *usecase.TradeExecutor,
	queue *usecase.PipelineQueue,
	hub *broadcast.Hub,
	limiter *ratelimit.Limiter,
) *MonitorHandler {
	return &MonitorHandler{
		logger:    logger,
		monitor:   monitor,
		collector: collector,
		evaluator: evaluator,
		executor:  executor,
		queue:     queue,
		hub:       hub,
		limiter:   limiter,
	}
}

func (h *MonitorHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/monitor", h.limiter.Middleware(20, 10))

	g.GET("/webhooks", h.ListWebhooks)
	g.GET("/webhooks/:id", h.GetWebhook)
	g.PATCH("/webhooks/:id", h.UpdateWebhook)

	g.POST("/stages", h.StartStage)
	g.POST("/stages/:id/complete", h.CompleteStage)
	g.GET("/signals/:id/stages", h.ListStages)
	g.GET("/signals/:id/pipeline", h.PipelineStatus)
	g.GET("/signals/:id/trades", h.ListTrades)

	g.GET("/queue", h.QueueStatus)

	g.GET("/metrics/latest", h.LatestMetrics)
	g.POST("/metrics/collect", h.CollectNow)
	g.GET("/metrics/trends", h.Trends)
	g.GET("/metrics/anomalies", h.Anomalies)

	g.GET("/alerts", h.ListAlerts)
	g.POST("/alerts/:id/acknowledge", h.AcknowledgeAlert)
	g.POST("/alerts/:id/resolve", h.ResolveAlert)

	g.GET("/health", h.Health)

	e.GET("/ws", h.hub.Serve)
}

func (h *MonitorHandler) ListWebhooks(c echo.Context) error {
	req := &models.ListWebhooksRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	f := &models.WebhookFilter{
		Status:         req.Status,
		SourceIP:       req.SourceIP,
		SignalID:       req.SignalID,
		MinPayloadSize: req.MinPayloadSize,
		MinDurationMS:  req.MinDurationMS,
		Limit:          req.Limit,
		Offset:         req.Offset,
	}
	if req.From != "" {
		t, ok := xhttp.ParseTime(req.From)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must be RFC3339 or unix seconds"))
		}
		f.From = t
	}
	if req.To != "" {
		t, ok := xhttp.ParseTime(req.To)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("to must be RFC3339 or unix seconds"))
		}
		f.To = t
	}

	rows, total, err := h.monitor.QueryWebhooks(c.Request().Context(), f)
	if err != nil {
		h.logger.Error("webhook query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, total)
}

func (h *MonitorHandler) GetWebhook(c echo.Context) error {
	w, err := h.monitor.GetWebhook(c.Request().Context(), c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, w)
}

func (h *MonitorHandler) UpdateWebhook(c echo.Context) error {
	req := &models.UpdateWebhookRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	w, err := h.monitor.UpdateWebhook(c.Request().Context(), c.Param("id"), &models.WebhookUpdate{
		SignalID:     req.SignalID,
		Status:       req.Status,
		ProcessingMS: req.ProcessingMS,
		ErrorMessage: req.ErrorMessage,
		ErrorStack:   req.ErrorStack,
	})
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, w)
}

func (h *MonitorHandler) StartStage(c echo.Context) error {
	req := &models.StartStageRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	row, err := h.monitor.StartProcessingStage(c.Request().Context(), &usecase.StartStageInput{
		SignalID: req.SignalID,
		Stage:    req.Stage,
		Status:   req.Status,
		Metadata: req.Metadata,
	})
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, row)
}

func (h *MonitorHandler) CompleteStage(c echo.Context) error {
	req := &models.CompleteStageRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	row, err := h.monitor.CompleteProcessingStage(c.Request().Context(), c.Param("id"), req.Status, req.Metadata, req.ErrorMessage)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, row)
}

func (h *MonitorHandler) ListStages(c echo.Context) error {
	rows, err := h.monitor.ListStages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, rows)
}

func (h *MonitorHandler) PipelineStatus(c echo.Context) error {
	ps, err := h.monitor.GetPipelineStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, ps)
}

func (h *MonitorHandler) ListTrades(c echo.Context) error {
	rows, err := h.executor.TradesBySignal(c.Request().Context(), c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, rows)
}

func (h *MonitorHandler) QueueStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.queue.Status())
}

func (h *MonitorHandler) LatestMetrics(c echo.Context) error {
	snap, err := h.collector.Latest(c.Request().Context())
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *MonitorHandler) CollectNow(c echo.Context) error {
	snap, err := h.collector.Collect(c.Request().Context())
	if err != nil {
		h.logger.Error("manual collect error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.evaluator.EvaluateSnapshot(c.Request().Context(), snap)
	return xhttp.SuccessResponse(c, snap)
}

func (h *MonitorHandler) Trends(c echo.Context) error {
	req := &models.TrendsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	trends, err := h.collector.CalculateTrends(c.Request().Context(), time.Duration(req.Hours)*time.Hour)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, trends)
}

func (h *MonitorHandler) Anomalies(c echo.Context) error {
	req := &models.AnomaliesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	report, err := h.collector.DetectAnomalies(c.Request().Context(), time.Duration(req.Hours)*time.Hour)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *MonitorHandler) ListAlerts(c echo.Context) error {
	req := &models.ListAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, total, err := h.evaluator.Query(c.Request().Context(), &models.AlertFilter{
		Severity:   req.Severity,
		Category:   req.Category,
		Unresolved: req.Unresolved,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, total)
}

func (h *MonitorHandler) AcknowledgeAlert(c echo.Context) error {
	req := &models.AckAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	a, err := h.evaluator.Acknowledge(c.Request().Context(), c.Param("id"), req.By)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, a)
}

func (h *MonitorHandler) ResolveAlert(c echo.Context) error {
	a, err := h.evaluator.Resolve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, a)
}

func (h *MonitorHandler) Health(c echo.Context) error {
	v, err := h.monitor.Health(c.Request().Context())
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, v)
}
