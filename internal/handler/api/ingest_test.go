package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"SigFlow/internal/domain/models"
	domrepo "SigFlow/internal/domain/repository"
	"SigFlow/internal/middleware"
	"SigFlow/internal/repository"
	"SigFlow/internal/service/broadcast"
	"SigFlow/internal/service/broker"
	"SigFlow/internal/services/analytics"
	"SigFlow/internal/usecase"
	xlogger "SigFlow/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

// noopMetrics keeps handler tests off the global Prometheus registry.
type noopMetrics struct{}

func (noopMetrics) RecordSignal(string)                 {}
func (noopMetrics) RecordStageDuration(string, float64) {}
func (noopMetrics) RecordBrokerOrder(string, string)    {}
func (noopMetrics) SetQueueDepth(int)                   {}
func (noopMetrics) RecordError(string)                  {}
func (noopMetrics) RecordBroadcast(string)              {}

func newIngestRig(t *testing.T) (*echo.Echo, *repository.MemoryStore) {
	t.Helper()
	l, err := xlogger.New(&xlogger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)

	store := repository.NewMemoryStore()
	m := noopMetrics{}
	emitter := middleware.NewMonitorEmitter(broadcast.NoopSink{}, m, l)
	monitor := usecase.NewMonitor(store, store, store, m, emitter, l)
	events := repository.NoopEventPublisher{}
	executor := usecase.NewTradeExecutor(
		[]domrepo.BrokerAdapter{broker.NewSimBroker("sim", 100_000)},
		store, events, m, l,
	)
	queue := usecase.NewPipelineQueue(
		store, store, store,
		&analytics.StaticEnricher{},
		&analytics.RuleDecisionEngine{},
		executor, monitor, events, m, l,
	)

	e := echo.New()
	NewIngestHandler(l, store, monitor, queue).RegisterRoutes(e)
	return e, store
}

func postSignal(e *echo.Echo, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/signals", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestIngestAcceptsValidSignal(t *testing.T) {
	e, store := newIngestRig(t)

	rec := postSignal(e, `{"ticker":"AAPL","action":"buy","entry_price":100,"position_size":1000,"source":"tradingview"}`)

	var envelope struct {
		Status int               `json:"status"`
		Data   map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, http.StatusCreated, envelope.Status)
	require.NotEmpty(t, envelope.Data["signal_id"])
	require.NotEmpty(t, envelope.Data["webhook_id"])
	require.Equal(t, models.SignalStatusPending, envelope.Data["status"])

	signal, err := store.GetSignal(context.Background(), envelope.Data["signal_id"])
	require.NoError(t, err)
	require.Equal(t, "AAPL", signal.Ticker)
	require.Equal(t, models.InstrumentStock, signal.InstrumentType)

	w, err := store.GetWebhook(context.Background(), envelope.Data["webhook_id"])
	require.NoError(t, err)
	require.Equal(t, models.WebhookStatusSuccess, w.Status)
	require.Equal(t, signal.ID, w.SignalID)
}

func TestIngestRejectsInvalidPayloadButRecordsRequest(t *testing.T) {
	e, store := newIngestRig(t)

	rec := postSignal(e, `{"action":"hold","entry_price":-5}`)

	var envelope struct {
		Status int `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, http.StatusBadRequest, envelope.Status)

	rows, total, err := store.QueryWebhooks(context.Background(), &models.WebhookFilter{Status: models.WebhookStatusRejected})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Empty(t, rows[0].SignalID)
}
