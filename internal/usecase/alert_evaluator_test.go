package usecase

import (
	"context"
	"net/http"
	"testing"
	"time"

	"SigFlow/internal/domain/models"
	"SigFlow/internal/repository"
	"SigFlow/pkg/cache"

	"github.com/google/uuid"
)

func newTestEvaluator(t *testing.T, store *repository.MemoryStore, notifier *fakeNotifier, opts ...EvaluatorOption) *AlertEvaluator {
	t.Helper()
	m := newRecorderMetrics()
	return NewAlertEvaluator(store, cache.NewMemoryCache(), notifier, newTestEmitter(m), m, newTestLogger(t), opts...)
}

func healthySnapshot() *models.SystemMetrics {
	return &models.SystemMetrics{
		ID:                uuid.NewString(),
		Timestamp:         time.Now(),
		WebhooksPerMinute: 10,
		AvgProcessingMS:   120,
		ErrorRate:         0.01,
		QueueDepth:        3,
		MemoryUsage:       0.4,
		CPUUsage:          0.2,
	}
}

func TestEvaluateSnapshotRaisesOnCrossedThresholds(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	e := newTestEvaluator(t, store, &fakeNotifier{})

	snap := healthySnapshot()
	snap.ErrorRate = 0.5
	snap.QueueDepth = 100

	raised := e.EvaluateSnapshot(ctx, snap)
	if len(raised) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(raised))
	}
	categories := map[string]bool{}
	for _, a := range raised {
		categories[a.Category] = true
	}
	if !categories[models.AlertCategoryErrorRate] || !categories[models.AlertCategoryQueueDepth] {
		t.Fatalf("unexpected categories %v", categories)
	}

	_, total, err := e.Query(ctx, &models.AlertFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 persisted alerts, got %d", total)
	}
}

func TestEvaluateSnapshotSuppressesRepeats(t *testing.T) {
	ctx := context.Background()
	e := newTestEvaluator(t, repository.NewMemoryStore(), &fakeNotifier{})

	snap := healthySnapshot()
	snap.MemoryUsage = 0.95

	if raised := e.EvaluateSnapshot(ctx, snap); len(raised) != 1 {
		t.Fatalf("expected first evaluation to raise, got %d", len(raised))
	}
	if raised := e.EvaluateSnapshot(ctx, snap); len(raised) != 0 {
		t.Fatalf("expected repeat within the suppression window to be silent, got %d", len(raised))
	}
}

func TestEvaluateSnapshotHealthy(t *testing.T) {
	e := newTestEvaluator(t, repository.NewMemoryStore(), &fakeNotifier{})
	if raised := e.EvaluateSnapshot(context.Background(), healthySnapshot()); len(raised) != 0 {
		t.Fatalf("expected no alerts for a healthy snapshot, got %d", len(raised))
	}
}

func TestConsecutiveFailuresCeiling(t *testing.T) {
	ctx := context.Background()
	e := newTestEvaluator(t, repository.NewMemoryStore(), &fakeNotifier{})

	for i := 0; i < 4; i++ {
		if a := e.RecordFailure(ctx, "tradingview"); a != nil {
			t.Fatalf("alert raised at failure %d, before the ceiling", i+1)
		}
	}
	a := e.RecordFailure(ctx, "tradingview")
	if a == nil {
		t.Fatal("expected alert at the fifth consecutive failure")
	}
	if a.Category != models.AlertCategoryConsecutiveFailures {
		t.Fatalf("unexpected category %s", a.Category)
	}

	e.RecordSuccess("tradingview")
	if a := e.RecordFailure(ctx, "tradingview"); a != nil {
		t.Fatal("success should reset the failure counter")
	}
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	e := newTestEvaluator(t, store, &fakeNotifier{})

	snap := healthySnapshot()
	snap.CPUUsage = 0.99
	raised := e.EvaluateSnapshot(ctx, snap)
	if len(raised) != 1 {
		t.Fatalf("expected one alert, got %d", len(raised))
	}

	a, err := e.Acknowledge(ctx, raised[0].ID, "ops")
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if !a.Acknowledged || a.AcknowledgedBy != "ops" {
		t.Fatalf("acknowledge not applied: %+v", a)
	}

	again, err := e.Acknowledge(ctx, raised[0].ID, "someone-else")
	if err != nil {
		t.Fatalf("re-acknowledge: %v", err)
	}
	if again.AcknowledgedBy != "ops" {
		t.Fatalf("re-acknowledge must not overwrite, got %s", again.AcknowledgedBy)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	e := newTestEvaluator(t, store, &fakeNotifier{})

	seed := &models.SystemAlert{ID: uuid.NewString(), Category: models.AlertCategoryCPU, Severity: models.AlertCritical, CreatedAt: time.Now()}
	if err := store.CreateAlert(ctx, seed); err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	a, err := e.Resolve(ctx, seed.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !a.Resolved {
		t.Fatal("alert not resolved")
	}
	if _, err := e.Resolve(ctx, seed.ID); err != nil {
		t.Fatalf("re-resolve should be a no-op, got %v", err)
	}
}

func TestResolveUnknownAlert(t *testing.T) {
	e := newTestEvaluator(t, repository.NewMemoryStore(), &fakeNotifier{})
	_, err := e.Resolve(context.Background(), "missing")
	assertAppError(t, err, http.StatusNotFound, "ERR_NOT_FOUND")
}

func TestEscalateStale(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	notifier := &fakeNotifier{}
	e := newTestEvaluator(t, store, notifier)

	stale := &models.SystemAlert{
		ID:        uuid.NewString(),
		Category:  models.AlertCategoryErrorRate,
		Severity:  models.AlertError,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	acked := &models.SystemAlert{
		ID:           uuid.NewString(),
		Category:     models.AlertCategoryQueueDepth,
		Severity:     models.AlertWarning,
		Acknowledged: true,
		CreatedAt:    time.Now().Add(-time.Hour),
	}
	fresh := &models.SystemAlert{
		ID:        uuid.NewString(),
		Category:  models.AlertCategoryCPU,
		Severity:  models.AlertCritical,
		CreatedAt: time.Now(),
	}
	for _, a := range []*models.SystemAlert{stale, acked, fresh} {
		if err := store.CreateAlert(ctx, a); err != nil {
			t.Fatalf("seed alert: %v", err)
		}
	}

	if n := e.EscalateStale(ctx); n != 1 {
		t.Fatalf("expected 1 escalation, got %d", n)
	}
	ids := notifier.notifiedIDs()
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Fatalf("expected only the stale unacknowledged alert, got %v", ids)
	}
}
