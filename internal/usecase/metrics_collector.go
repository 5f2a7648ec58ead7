package usecase

import (
	"context"
	"math"
	"runtime"
	"sort"
	"syscall"
	"time"

	"SigFlow/internal/domain/models"
	domrepo "SigFlow/internal/domain/repository"
	mid "SigFlow/internal/middleware"
	"SigFlow/internal/service/broadcast"
	xhttp "SigFlow/pkg/http"
	applogger "SigFlow/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	cpuSampleWindow  = 100 * time.Millisecond
	trendThreshold   = 0.10 // relative change for up/down classification
	anomalyZScore    = 2.0
	anomalyZMedium   = 2.5
	anomalyZHigh     = 3.0
	minAnomalyPoints = 10
)

// trackedMetrics maps metric names to snapshot extractors for trend and
// anomaly analysis.
var trackedMetrics = map[string]func(*models.SystemMetrics) float64{
	"webhooks_per_minute": func(m *models.SystemMetrics) float64 { return m.WebhooksPerMinute },
	"avg_processing_ms":   func(m *models.SystemMetrics) float64 { return m.AvgProcessingMS },
	"error_rate":          func(m *models.SystemMetrics) float64 { return m.ErrorRate },
	"queue_depth":         func(m *models.SystemMetrics) float64 { return float64(m.QueueDepth) },
	"memory_usage":        func(m *models.SystemMetrics) float64 { return m.MemoryUsage },
	"cpu_usage":           func(m *models.SystemMetrics) float64 { return m.CPUUsage },
	"signals_processed":   func(m *models.SystemMetrics) float64 { return float64(m.SignalsProcessed) },
	"trades_executed":     func(m *models.SystemMetrics) float64 { return float64(m.TradesExecuted) },
}

// MetricsCollector periodically snapshots system and business counters and
// runs trend/anomaly analysis over the snapshot series. It shares the
// persistent store with the pipeline but no in-memory state.
type MetricsCollector struct {
	webhooks  domrepo.WebhookStore
	stages    domrepo.StageStore
	signals   domrepo.SignalStore
	trades    domrepo.TradeStore
	decisions domrepo.DecisionStore
	store     domrepo.MetricsStore
	archive   domrepo.MetricsArchive
	emitter   *mid.MonitorEmitter
	metrics   domrepo.Metrics
	l         *applogger.Logger
	interval  time.Duration
	dbConns   func() int
}

// CollectorOption configures the collector.
type CollectorOption func(*MetricsCollector)

// WithCollectInterval sets the snapshot interval for Run.
func WithCollectInterval(d time.Duration) CollectorOption {
	return func(c *MetricsCollector) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithDBConnections sets the callback reporting open store connections.
func WithDBConnections(fn func() int) CollectorOption {
	return func(c *MetricsCollector) { c.dbConns = fn }
}

// NewMetricsCollector creates the collector.
func NewMetricsCollector(
	webhooks domrepo.WebhookStore,
	stages domrepo.StageStore,
	signals domrepo.SignalStore,
	trades domrepo.TradeStore,
	decisions domrepo.DecisionStore,
	store domrepo.MetricsStore,
	archive domrepo.MetricsArchive,
	emitter *mid.MonitorEmitter,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	opts ...CollectorOption,
) *MetricsCollector {
	c := &MetricsCollector{
		webhooks:  webhooks,
		stages:    stages,
		signals:   signals,
		trades:    trades,
		decisions: decisions,
		store:     store,
		archive:   archive,
		emitter:   emitter,
		metrics:   metrics,
		l:         l,
		interval:  30 * time.Second,
		dbConns:   func() int { return 0 },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect gathers one snapshot. Counter reads run in parallel; any read
// failure aborts the snapshot with a CollectionError.
func (c *MetricsCollector) Collect(ctx context.Context) (*models.SystemMetrics, error) {
	now := time.Now()
	snap := &models.SystemMetrics{
		ID:            uuid.NewString(),
		Timestamp:     now,
		DBConnections: c.dbConns(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := c.webhooks.CountWebhooksSince(gctx, now.Add(-time.Minute), "")
		snap.WebhooksPerMinute = float64(n)
		return err
	})
	g.Go(func() error {
		avg, err := c.webhooks.AvgProcessingSince(gctx, now.Add(-5*time.Minute))
		snap.AvgProcessingMS = avg
		return err
	})
	g.Go(func() error {
		total, err := c.webhooks.CountWebhooksSince(gctx, now.Add(-5*time.Minute), "")
		if err != nil {
			return err
		}
		failed, err := c.webhooks.CountWebhooksSince(gctx, now.Add(-5*time.Minute), models.WebhookStatusFailed)
		if err != nil {
			return err
		}
		if total > 0 {
			snap.ErrorRate = float64(failed) / float64(total)
		}
		return nil
	})
	g.Go(func() error {
		n, err := c.stages.CountStagesByStatus(gctx, models.StageInProgress)
		snap.QueueDepth = n
		return err
	})
	g.Go(func() error {
		snap.MemoryUsage = heapRatio()
		snap.CPUUsage = sampleCPU()
		return nil
	})
	g.Go(func() error {
		hourAgo := now.Add(-time.Hour)
		n, err := c.signals.CountSignalsSince(gctx, hourAgo)
		if err != nil {
			return err
		}
		snap.SignalsProcessed = n
		if n, err = c.trades.CountTradesSince(gctx, hourAgo); err != nil {
			return err
		}
		snap.TradesExecuted = n
		if n, err = c.decisions.CountDecisionsSince(gctx, hourAgo, models.DecisionTrade); err != nil {
			return err
		}
		snap.DecisionsApproved = n
		if n, err = c.decisions.CountDecisionsSince(gctx, hourAgo, models.DecisionReject); err != nil {
			return err
		}
		snap.DecisionsRejected = n
		return nil
	})

	if err := g.Wait(); err != nil {
		c.metrics.RecordError("collect")
		return nil, xhttp.CollectionError(err)
	}

	if err := c.store.AppendSnapshot(ctx, snap); err != nil {
		c.metrics.RecordError("collect")
		return nil, xhttp.DatabaseError(err)
	}

	// Archive is a monitoring-only mirror; never fail collection over it.
	if err := c.archive.Archive(ctx, snap); err != nil {
		c.metrics.RecordError("metrics_archive")
		if c.l != nil {
			c.l.Warn("metrics archive failed", applogger.Error(err))
		}
	}

	c.emitter.Emit(broadcast.ChannelMetrics, broadcast.EventSnapshot, snap)
	return snap, nil
}

// Latest returns the most recent snapshot.
func (c *MetricsCollector) Latest(ctx context.Context) (*models.SystemMetrics, error) {
	snap, err := c.store.LatestSnapshot(ctx)
	if err != nil {
		return nil, xhttp.NotFoundError("no metrics collected yet")
	}
	return snap, nil
}

// CalculateTrends splits the snapshot series for the window into two halves
// by count and classifies each tracked metric as up/down/stable using a 10%
// relative-change threshold on the half averages.
func (c *MetricsCollector) CalculateTrends(ctx context.Context, window time.Duration) ([]models.MetricTrend, error) {
	snaps, err := c.store.SnapshotsSince(ctx, time.Now().Add(-window))
	if err != nil {
		return nil, xhttp.DatabaseError(err)
	}
	if len(snaps) < 2 {
		return []models.MetricTrend{}, nil
	}

	half := len(snaps) / 2
	first, second := snaps[:half], snaps[half:]

	names := sortedMetricNames()
	trends := make([]models.MetricTrend, 0, len(names))
	for _, name := range names {
		extract := trackedMetrics[name]
		t := models.MetricTrend{
			Metric:     name,
			FirstHalf:  meanOf(first, extract),
			SecondHalf: meanOf(second, extract),
		}
		t.Direction, t.ChangePct = classifyTrend(t.FirstHalf, t.SecondHalf)
		trends = append(trends, t)
	}
	return trends, nil
}

// classifyTrend applies the 10% threshold with a zero-baseline guard.
func classifyTrend(first, second float64) (string, float64) {
	if first == 0 {
		if second > 0 {
			return models.TrendUp, 0
		}
		return models.TrendStable, 0
	}
	change := (second - first) / first
	switch {
	case change <= -trendThreshold:
		return models.TrendDown, change * 100
	case change >= trendThreshold:
		return models.TrendUp, change * 100
	default:
		return models.TrendStable, change * 100
	}
}

// DetectAnomalies flags snapshot values whose z-score against the lookback
// window exceeds 2, graded by magnitude. Fewer than 10 snapshots yields an
// empty report rather than noisy statistics.
func (c *MetricsCollector) DetectAnomalies(ctx context.Context, lookback time.Duration) (*models.AnomalyReport, error) {
	snaps, err := c.store.SnapshotsSince(ctx, time.Now().Add(-lookback))
	if err != nil {
		return nil, xhttp.DatabaseError(err)
	}

	report := &models.AnomalyReport{
		Anomalies: []models.MetricAnomaly{},
		Summary: models.AnomalySummary{
			BySeverity: map[string]int{},
			Metrics:    []string{},
			Snapshots:  len(snaps),
		},
	}
	if len(snaps) < minAnomalyPoints {
		return report, nil
	}

	affected := map[string]struct{}{}
	for _, name := range sortedMetricNames() {
		extract := trackedMetrics[name]
		mean := meanOf(snaps, extract)
		sd := stddevOf(snaps, extract, mean)
		if sd == 0 {
			continue
		}
		for _, s := range snaps {
			z := (extract(s) - mean) / sd
			if math.Abs(z) <= anomalyZScore {
				continue
			}
			report.Anomalies = append(report.Anomalies, models.MetricAnomaly{
				Metric:    name,
				Timestamp: s.Timestamp,
				Value:     extract(s),
				Mean:      mean,
				StdDev:    sd,
				ZScore:    z,
				Severity:  gradeSeverity(z),
			})
			affected[name] = struct{}{}
		}
	}

	sort.SliceStable(report.Anomalies, func(i, j int) bool {
		a, b := report.Anomalies[i], report.Anomalies[j]
		ra, rb := severityRank(a.Severity), severityRank(b.Severity)
		if ra != rb {
			return ra > rb
		}
		return a.Timestamp.After(b.Timestamp)
	})

	report.Summary.Total = len(report.Anomalies)
	for _, a := range report.Anomalies {
		report.Summary.BySeverity[a.Severity]++
	}
	for name := range affected {
		report.Summary.Metrics = append(report.Summary.Metrics, name)
	}
	sort.Strings(report.Summary.Metrics)
	return report, nil
}

// Run collects on the configured interval until ctx is cancelled. Collection
// failures are logged and skipped; the loop never stops over one bad sample.
func (c *MetricsCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Collect(ctx); err != nil {
				if c.l != nil {
					c.l.Warn("metrics collection failed", applogger.Error(err))
				}
			}
		}
	}
}

func gradeSeverity(z float64) string {
	az := math.Abs(z)
	switch {
	case az > anomalyZHigh:
		return models.SeverityHigh
	case az > anomalyZMedium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func severityRank(s string) int {
	switch s {
	case models.SeverityHigh:
		return 3
	case models.SeverityMedium:
		return 2
	default:
		return 1
	}
}

func sortedMetricNames() []string {
	names := make([]string, 0, len(trackedMetrics))
	for name := range trackedMetrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func meanOf(snaps []*models.SystemMetrics, extract func(*models.SystemMetrics) float64) float64 {
	if len(snaps) == 0 {
		return 0
	}
	var sum float64
	for _, s := range snaps {
		sum += extract(s)
	}
	return sum / float64(len(snaps))
}

// stddevOf computes the population standard deviation.
func stddevOf(snaps []*models.SystemMetrics, extract func(*models.SystemMetrics) float64, mean float64) float64 {
	if len(snaps) == 0 {
		return 0
	}
	var sum float64
	for _, s := range snaps {
		d := extract(s) - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(snaps)))
}

// heapRatio reports heap in-use over heap reserved as the memory proxy.
func heapRatio() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapSys == 0 {
		return 0
	}
	return float64(ms.HeapAlloc) / float64(ms.HeapSys)
}

// sampleCPU measures process CPU time over a 100ms window, normalized by the
// number of logical CPUs.
func sampleCPU() float64 {
	var before, after syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &before); err != nil {
		return 0
	}
	time.Sleep(cpuSampleWindow)
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &after); err != nil {
		return 0
	}
	used := (after.Utime.Nano() - before.Utime.Nano()) + (after.Stime.Nano() - before.Stime.Nano())
	frac := float64(used) / (float64(cpuSampleWindow.Nanoseconds()) * float64(runtime.NumCPU()))
	if frac < 0 {
		return 0
	}
	if frac > 1 {
		return 1
	}
	return frac
}
