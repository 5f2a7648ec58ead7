package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "SigFlow/internal/domain/repository"
	mid "SigFlow/internal/middleware"
	"SigFlow/internal/usecase"
	pkgch "SigFlow/pkg/clickhouse"
	"SigFlow/pkg/config"
	xhttp "SigFlow/pkg/http"
	applogger "SigFlow/pkg/logger"
)

// App encapsulates the entire application lifecycle: queue worker, metrics
// collector, alert escalation, broadcast emitter, and the HTTP facade.
type App struct {
	cfg       *config.Config
	l         *applogger.Logger
	queue     *usecase.PipelineQueue
	collector *usecase.MetricsCollector
	evaluator *usecase.AlertEvaluator
	emitter   *mid.MonitorEmitter
	events    domrepo.EventPublisher
	chClient  *pkgch.Client
	server    *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	queue *usecase.PipelineQueue,
	collector *usecase.MetricsCollector,
	evaluator *usecase.AlertEvaluator,
	emitter *mid.MonitorEmitter,
	events domrepo.EventPublisher,
	chClient *pkgch.Client,
	server *xhttp.Server,
) *App {
	return &App{
		cfg:       cfg,
		l:         l,
		queue:     queue,
		collector: collector,
		evaluator: evaluator,
		emitter:   emitter,
		events:    events,
		chClient:  chClient,
		server:    server,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if pub, ok := a.events.(applogger.Publisher); ok && a.cfg.Kafka.Enabled {
		a.l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "sigflow.logs",
			Publisher:      pub,
		})
	}

	a.emitter.Start(ctx)
	a.queue.Start(ctx)

	go func() {
		a.collector.Run(ctx)
	}()
	a.l.Info("metrics collector started",
		applogger.Duration("interval", a.cfg.Collector.Interval),
	)

	escalateEvery := a.cfg.Alerts.EscalationInterval
	if escalateEvery <= 0 {
		escalateEvery = time.Minute
	}
	go a.evaluator.RunEscalation(ctx, escalateEvery)

	go a.evaluateLoop(ctx)

	if err := a.server.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("sigflow started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// evaluateLoop feeds fresh snapshots into the alert evaluator. It trails the
// collector by polling the latest snapshot at the collection interval.
func (a *App) evaluateLoop(ctx context.Context) {
	interval := a.cfg.Collector.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := a.collector.Latest(ctx)
			if err != nil {
				continue
			}
			a.evaluator.EvaluateSnapshot(ctx, snap)
		}
	}
}

// shutdown gracefully stops all services in reverse start order.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	a.queue.Stop()
	a.emitter.Stop()
	a.l.RemoveCollector()

	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.l.Warn("event publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
