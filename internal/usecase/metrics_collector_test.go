package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"SigFlow/internal/domain/models"
	"SigFlow/internal/repository"
)

func newTestCollector(t *testing.T, store *repository.MemoryStore, archive *fakeArchive) *MetricsCollector {
	t.Helper()
	m := newRecorderMetrics()
	return NewMetricsCollector(
		store, store, store, store, store, store,
		archive, newTestEmitter(m), m, newTestLogger(t),
	)
}

func appendSnapshots(t *testing.T, store *repository.MemoryStore, values []float64, set func(*models.SystemMetrics, float64)) {
	t.Helper()
	base := time.Now().Add(-time.Duration(len(values)) * time.Minute)
	for i, v := range values {
		snap := &models.SystemMetrics{
			ID:        "snap",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		set(snap, v)
		if err := store.AppendSnapshot(context.Background(), snap); err != nil {
			t.Fatalf("append snapshot: %v", err)
		}
	}
}

func findTrend(t *testing.T, trends []models.MetricTrend, name string) models.MetricTrend {
	t.Helper()
	for _, tr := range trends {
		if tr.Metric == name {
			return tr
		}
	}
	t.Fatalf("trend %s not found in %v", name, trends)
	return models.MetricTrend{}
}

func TestClassifyTrend(t *testing.T) {
	cases := []struct {
		first, second float64
		direction     string
		changePct     float64
	}{
		{0, 5, models.TrendUp, 0},
		{0, 0, models.TrendStable, 0},
		{10, 12, models.TrendUp, 20},
		{10, 8.5, models.TrendDown, -15},
		{10, 10.5, models.TrendStable, 5},
	}
	for _, c := range cases {
		dir, pct := classifyTrend(c.first, c.second)
		if dir != c.direction {
			t.Fatalf("classifyTrend(%v, %v): expected %s, got %s", c.first, c.second, c.direction, dir)
		}
		if math.Abs(pct-c.changePct) > 1e-9 {
			t.Fatalf("classifyTrend(%v, %v): expected %v%%, got %v%%", c.first, c.second, c.changePct, pct)
		}
	}
}

func TestCalculateTrends(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	c := newTestCollector(t, store, &fakeArchive{})

	appendSnapshots(t, store, []float64{0.1, 0.1, 0.2, 0.2}, func(s *models.SystemMetrics, v float64) {
		s.ErrorRate = v
		s.AvgProcessingMS = 100
	})

	trends, err := c.CalculateTrends(ctx, time.Hour)
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	if len(trends) != len(trackedMetrics) {
		t.Fatalf("expected %d trends, got %d", len(trackedMetrics), len(trends))
	}

	er := findTrend(t, trends, "error_rate")
	if er.Direction != models.TrendUp {
		t.Fatalf("error_rate: expected up, got %s", er.Direction)
	}
	if math.Abs(er.ChangePct-100) > 1e-9 {
		t.Fatalf("error_rate: expected 100%% change, got %v", er.ChangePct)
	}

	proc := findTrend(t, trends, "avg_processing_ms")
	if proc.Direction != models.TrendStable {
		t.Fatalf("avg_processing_ms: expected stable, got %s", proc.Direction)
	}

	// Flat-zero series stays stable rather than dividing by zero.
	wh := findTrend(t, trends, "webhooks_per_minute")
	if wh.Direction != models.TrendStable {
		t.Fatalf("webhooks_per_minute: expected stable, got %s", wh.Direction)
	}
}

func TestCalculateTrendsNeedsTwoSnapshots(t *testing.T) {
	store := repository.NewMemoryStore()
	c := newTestCollector(t, store, &fakeArchive{})
	appendSnapshots(t, store, []float64{0.1}, func(s *models.SystemMetrics, v float64) { s.ErrorRate = v })

	trends, err := c.CalculateTrends(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	if len(trends) != 0 {
		t.Fatalf("expected empty trends, got %d", len(trends))
	}
}

func TestDetectAnomaliesRequiresHistory(t *testing.T) {
	store := repository.NewMemoryStore()
	c := newTestCollector(t, store, &fakeArchive{})

	values := make([]float64, 9)
	for i := range values {
		values[i] = float64(10 + i)
	}
	appendSnapshots(t, store, values, func(s *models.SystemMetrics, v float64) { s.QueueDepth = int(v) })

	report, err := c.DetectAnomalies(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("anomalies: %v", err)
	}
	if report.Summary.Total != 0 || len(report.Anomalies) != 0 {
		t.Fatalf("expected empty report below the history floor, got %+v", report.Summary)
	}
	if report.Summary.Snapshots != 9 {
		t.Fatalf("expected snapshot count 9, got %d", report.Summary.Snapshots)
	}
}

func TestDetectAnomaliesFlagsOutlier(t *testing.T) {
	store := repository.NewMemoryStore()
	c := newTestCollector(t, store, &fakeArchive{})

	// Eleven steady points and one spike: z = 3.32, graded high.
	values := []float64{10, 10, 10, 10, 10, 10, 50, 10, 10, 10, 10, 10}
	appendSnapshots(t, store, values, func(s *models.SystemMetrics, v float64) { s.QueueDepth = int(v) })

	report, err := c.DetectAnomalies(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("anomalies: %v", err)
	}
	if report.Summary.Total != 1 {
		t.Fatalf("expected one anomaly, got %d", report.Summary.Total)
	}
	a := report.Anomalies[0]
	if a.Metric != "queue_depth" {
		t.Fatalf("expected queue_depth flagged, got %s", a.Metric)
	}
	if a.Value != 50 {
		t.Fatalf("expected the spike flagged, got %v", a.Value)
	}
	if a.Severity != models.SeverityHigh {
		t.Fatalf("expected high severity for z=%v, got %s", a.ZScore, a.Severity)
	}
	if a.ZScore <= 3 {
		t.Fatalf("expected z above 3, got %v", a.ZScore)
	}
	if report.Summary.BySeverity[models.SeverityHigh] != 1 {
		t.Fatalf("unexpected severity summary %v", report.Summary.BySeverity)
	}
	if len(report.Summary.Metrics) != 1 || report.Summary.Metrics[0] != "queue_depth" {
		t.Fatalf("unexpected affected metrics %v", report.Summary.Metrics)
	}
}

func TestGradeSeverity(t *testing.T) {
	cases := []struct {
		z    float64
		want string
	}{
		{3.2, models.SeverityHigh},
		{-3.5, models.SeverityHigh},
		{2.7, models.SeverityMedium},
		{-2.6, models.SeverityMedium},
		{2.2, models.SeverityLow},
	}
	for _, c := range cases {
		if got := gradeSeverity(c.z); got != c.want {
			t.Fatalf("gradeSeverity(%v): expected %s, got %s", c.z, c.want, got)
		}
	}
}

func TestCollectSnapshot(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	archive := &fakeArchive{}
	c := newTestCollector(t, store, archive)

	now := time.Now()
	statuses := []string{models.WebhookStatusSuccess, models.WebhookStatusSuccess, models.WebhookStatusFailed}
	for i, status := range statuses {
		err := store.CreateWebhook(ctx, &models.WebhookRequest{
			ID:           "wh-" + status + string(rune('a'+i)),
			SourceIP:     "10.0.0.1",
			Status:       status,
			ProcessingMS: int64(100 * (i + 1)),
			CreatedAt:    now,
		})
		if err != nil {
			t.Fatalf("seed webhook: %v", err)
		}
	}
	err := store.CreateStage(ctx, &models.ProcessingStage{
		ID: "st-1", SignalID: "sig-1", Stage: models.StageEnriching,
		Status: models.StageInProgress, StartedAt: now,
	})
	if err != nil {
		t.Fatalf("seed stage: %v", err)
	}
	if err := store.CreateSignal(ctx, &models.Signal{ID: "sig-1", Ticker: "AAPL", CreatedAt: now}); err != nil {
		t.Fatalf("seed signal: %v", err)
	}
	err = store.CreateDecision(ctx, &models.Decision{
		ID: "dec-1", SignalID: "sig-1", Decision: models.DecisionTrade, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed decision: %v", err)
	}

	snap, err := c.Collect(ctx)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if snap.WebhooksPerMinute != 3 {
		t.Fatalf("expected 3 webhooks/minute, got %v", snap.WebhooksPerMinute)
	}
	if math.Abs(snap.ErrorRate-1.0/3.0) > 1e-9 {
		t.Fatalf("expected error rate 1/3, got %v", snap.ErrorRate)
	}
	if snap.AvgProcessingMS != 200 {
		t.Fatalf("expected avg processing 200ms, got %v", snap.AvgProcessingMS)
	}
	if snap.QueueDepth != 1 {
		t.Fatalf("expected queue depth 1, got %d", snap.QueueDepth)
	}
	if snap.SignalsProcessed != 1 || snap.DecisionsApproved != 1 {
		t.Fatalf("unexpected business counters %+v", snap)
	}

	latest, err := c.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != snap.ID {
		t.Fatalf("latest snapshot mismatch: %s vs %s", latest.ID, snap.ID)
	}
	if archive.archived() != 1 {
		t.Fatalf("expected one archived snapshot, got %d", archive.archived())
	}
}

func TestCollectToleratesArchiveFailure(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	c := newTestCollector(t, store, &fakeArchive{err: context.DeadlineExceeded})

	if _, err := c.Collect(ctx); err != nil {
		t.Fatalf("collect should survive archive failure: %v", err)
	}
	if _, err := c.Latest(ctx); err != nil {
		t.Fatalf("snapshot should still be stored: %v", err)
	}
}

func TestLatestWithoutSnapshots(t *testing.T) {
	c := newTestCollector(t, repository.NewMemoryStore(), &fakeArchive{})
	_, err := c.Latest(context.Background())
	if err == nil {
		t.Fatal("expected error with no snapshots collected")
	}
}
