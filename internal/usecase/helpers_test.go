package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SigFlow/internal/domain/models"
	mid "SigFlow/internal/middleware"
	"SigFlow/internal/service/broadcast"
	xhttp "SigFlow/pkg/http"
	applogger "SigFlow/pkg/logger"

	"github.com/google/uuid"
)

func newTestLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

// recorderMetrics captures counter calls for assertions.
type recorderMetrics struct {
	mu      sync.Mutex
	signals map[string]int
	errors  map[string]int
	brokers map[string]int
	depth   int
}

func newRecorderMetrics() *recorderMetrics {
	return &recorderMetrics{
		signals: make(map[string]int),
		errors:  make(map[string]int),
		brokers: make(map[string]int),
	}
}

func (m *recorderMetrics) RecordSignal(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[outcome]++
}

func (m *recorderMetrics) RecordStageDuration(string, float64) {}

func (m *recorderMetrics) RecordBrokerOrder(broker, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brokers[broker+"/"+status]++
}

func (m *recorderMetrics) SetQueueDepth(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth = n
}

func (m *recorderMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *recorderMetrics) RecordBroadcast(string) {}

func (m *recorderMetrics) signalCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signals[outcome]
}

func newTestEmitter(m *recorderMetrics) *mid.MonitorEmitter {
	return mid.NewMonitorEmitter(broadcast.NoopSink{}, m, nil)
}

// fakeEvents records published pipeline events.
type fakeEvents struct {
	mu          sync.Mutex
	trades      []string
	deadLetters []deadLetterEvent
}

type deadLetterEvent struct {
	signalID string
	attempts int
	reason   string
}

func (f *fakeEvents) PublishTradeExecuted(_ context.Context, _ *models.ExecutionResult, signalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, signalID)
	return nil
}

func (f *fakeEvents) PublishSignalDeadLetter(_ context.Context, signalID string, attempts int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadLetters = append(f.deadLetters, deadLetterEvent{signalID: signalID, attempts: attempts, reason: reason})
	return nil
}

func (f *fakeEvents) Close() error { return nil }

func (f *fakeEvents) deadLettered() []deadLetterEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]deadLetterEvent, len(f.deadLetters))
	copy(out, f.deadLetters)
	return out
}

// fakeEnricher returns a canned result or a canned error, counting calls.
type fakeEnricher struct {
	mu      sync.Mutex
	calls   int
	err     error
	quality float64
}

func (f *fakeEnricher) Enrich(_ context.Context, signalID string) (*models.EnrichmentResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &models.EnrichmentResult{SignalID: signalID, DataQuality: f.quality, EnrichedAt: time.Now()}, nil
}

func (f *fakeEnricher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeEngine always returns the configured outcome.
type fakeEngine struct {
	outcome string
}

func (f *fakeEngine) Decide(_ context.Context, signal *models.Signal, _ *models.EnrichmentResult, _ *models.RuleSet) (*models.Decision, error) {
	return &models.Decision{
		ID:         uuid.NewString(),
		SignalID:   signal.ID,
		Decision:   f.outcome,
		Confidence: 0.9,
		CreatedAt:  time.Now(),
	}, nil
}

// fakeNotifier records escalated alerts.
type fakeNotifier struct {
	mu       sync.Mutex
	notified []string
	err      error
}

func (f *fakeNotifier) Notify(_ context.Context, a *models.SystemAlert) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, a.ID)
	return nil
}

func (f *fakeNotifier) notifiedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.notified))
	copy(out, f.notified)
	return out
}

// fakeArchive counts archived snapshots.
type fakeArchive struct {
	mu    sync.Mutex
	count int
	err   error
}

func (f *fakeArchive) Archive(context.Context, *models.SystemMetrics) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return nil
}

func (f *fakeArchive) archived() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func assertAppError(t *testing.T, err error, status int, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %d/%s, got nil", status, code)
	}
	var appErr *xhttp.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Status != status || appErr.Code != code {
		t.Fatalf("expected %d/%s, got %d/%s", status, code, appErr.Status, appErr.Code)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
