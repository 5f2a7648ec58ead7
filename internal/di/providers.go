package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"SigFlow/internal/domain/models"
	"SigFlow/internal/domain/repository"
	"SigFlow/internal/handler/api"
	mid "SigFlow/internal/middleware"
	internalrepo "SigFlow/internal/repository"
	"SigFlow/internal/service/broadcast"
	"SigFlow/internal/service/broker"
	"SigFlow/internal/service/ratelimit"
	"SigFlow/internal/services/analytics"
	"SigFlow/internal/usecase"
	pkgcache "SigFlow/pkg/cache"
	pkgch "SigFlow/pkg/clickhouse"
	"SigFlow/pkg/config"
	xhttp "SigFlow/pkg/http"
	pkgkafka "SigFlow/pkg/kafka"
	applogger "SigFlow/pkg/logger"
	"SigFlow/pkg/metrics"
	"SigFlow/pkg/server"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "json"
	level := "info"
	if cfg.Environment == "development" {
		format = "console"
		level = "debug"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideMemoryStore creates the shared in-memory store.
func ProvideMemoryStore() *internalrepo.MemoryStore {
	return internalrepo.NewMemoryStore()
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database, archiveTable(cfg))); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

func archiveTable(cfg *config.Config) string {
	table := cfg.ClickHouse.Table
	if table == "" {
		table = "system_metrics"
	}
	return cfg.ClickHouse.Database + "." + table
}

// ProvideMetricsArchive creates the snapshot archive (ClickHouse or noop).
func ProvideMetricsArchive(cfg *config.Config, chClient *pkgch.Client) repository.MetricsArchive {
	if chClient == nil {
		return internalrepo.NoopArchive{}
	}
	return internalrepo.NewClickHouseMetricsArchive(chClient.DB(), archiveTable(cfg))
}

// ProvideEventPublisher creates the Kafka event publisher, or a noop when
// Kafka is disabled.
func ProvideEventPublisher(cfg *config.Config) (repository.EventPublisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NoopEventPublisher{}, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	tradeTopic := cfg.Kafka.TradeTopic
	if tradeTopic == "" {
		tradeTopic = "sigflow.trades"
	}
	dlqTopic := cfg.Kafka.DeadLetterTopic
	if dlqTopic == "" {
		dlqTopic = "sigflow.signals.dlq"
	}
	return internalrepo.NewKafkaEventPublisher(producer, tradeTopic, dlqTopic), nil
}

// ProvideCache creates the cache service used for alert suppression: layered
// memory+Redis when Redis is enabled, plain memory otherwise.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}

	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port: %w", err)
	}

	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(rc), nil
}

// ProvideHub creates the WebSocket broadcast hub.
func ProvideHub(l *applogger.Logger) *broadcast.Hub {
	return broadcast.NewHub(l)
}

// ProvideBroadcaster assembles the broadcast sink from config: the WebSocket
// hub, Redis pub/sub, both, or a noop.
func ProvideBroadcaster(cfg *config.Config, hub *broadcast.Hub) repository.Broadcaster {
	var sinks []repository.Broadcaster
	mode := cfg.Broadcast.Mode
	if mode == "" {
		mode = "ws"
	}
	if mode == "ws" || mode == "both" {
		sinks = append(sinks, hub)
	}
	if (mode == "redis" || mode == "both") && cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		sinks = append(sinks, broadcast.NewRedisSink(client))
	}
	if len(sinks) == 0 {
		return broadcast.NoopSink{}
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	f := &broadcast.Fanout{}
	for _, s := range sinks {
		f.Sinks = append(f.Sinks, s)
	}
	return f
}

// ProvideEmitter creates the buffered monitoring emitter.
func ProvideEmitter(sink repository.Broadcaster, m repository.Metrics, l *applogger.Logger) *mid.MonitorEmitter {
	return mid.NewMonitorEmitter(sink, m, l)
}

// ProvideMonitor creates the monitoring facade.
func ProvideMonitor(store *internalrepo.MemoryStore, m repository.Metrics, emitter *mid.MonitorEmitter, l *applogger.Logger) *usecase.Monitor {
	return usecase.NewMonitor(store, store, store, m, emitter, l)
}

// ProvideCollector creates the metrics collector.
func ProvideCollector(
	cfg *config.Config,
	store *internalrepo.MemoryStore,
	archive repository.MetricsArchive,
	emitter *mid.MonitorEmitter,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.MetricsCollector {
	return usecase.NewMetricsCollector(
		store, store, store, store, store, store,
		archive, emitter, m, l,
		usecase.WithCollectInterval(cfg.Collector.Interval),
	)
}

// ProvideEvaluator creates the alert evaluator with configured thresholds.
func ProvideEvaluator(
	cfg *config.Config,
	store *internalrepo.MemoryStore,
	cache pkgcache.Service,
	emitter *mid.MonitorEmitter,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.AlertEvaluator {
	t := usecase.DefaultThresholds()
	if cfg.Alerts.ProcessingTimeMS > 0 {
		t.ProcessingTimeMS = cfg.Alerts.ProcessingTimeMS
	}
	if cfg.Alerts.ErrorRate > 0 {
		t.ErrorRate = cfg.Alerts.ErrorRate
	}
	if cfg.Alerts.QueueDepth > 0 {
		t.QueueDepth = cfg.Alerts.QueueDepth
	}
	if cfg.Alerts.MemoryUsage > 0 {
		t.MemoryUsage = cfg.Alerts.MemoryUsage
	}
	if cfg.Alerts.CPUUsage > 0 {
		t.CPUUsage = cfg.Alerts.CPUUsage
	}
	if cfg.Alerts.ConsecutiveFailures > 0 {
		t.ConsecutiveFailures = cfg.Alerts.ConsecutiveFailures
	}

	return usecase.NewAlertEvaluator(
		store, cache, &usecase.LogNotifier{L: l}, emitter, m, l,
		usecase.WithThresholds(t),
		usecase.WithSuppressionWindow(cfg.Alerts.SuppressionWindow),
		usecase.WithEscalationWindow(cfg.Alerts.EscalationWindow),
	)
}

// ProvideBrokers builds the broker adapter set from config, defaulting to a
// single paper broker.
func ProvideBrokers(cfg *config.Config, l *applogger.Logger) []repository.BrokerAdapter {
	if len(cfg.Brokers) == 0 {
		return []repository.BrokerAdapter{broker.NewSimBroker("sim", 100_000)}
	}

	adapters := make([]repository.BrokerAdapter, 0, len(cfg.Brokers))
	for _, bc := range cfg.Brokers {
		switch bc.Type {
		case "http":
			opts := []broker.HTTPBrokerOption{broker.WithAPIKey(bc.APIKey)}
			if bc.Timeout > 0 {
				opts = append(opts, broker.WithRequestTimeout(bc.Timeout))
			}
			if bc.PaperFallback {
				cash := bc.PaperCash
				if cash <= 0 {
					cash = 100_000
				}
				opts = append(opts, broker.WithPaperFallback(cash))
			}
			adapters = append(adapters, broker.NewHTTPBroker(bc.Name, bc.BaseURL, l, opts...))
		default:
			cash := bc.PaperCash
			if cash <= 0 {
				cash = 100_000
			}
			adapters = append(adapters, broker.NewSimBroker(bc.Name, cash))
		}
	}
	return adapters
}

// ProvideExecutor creates the multi-broker trade executor.
func ProvideExecutor(
	brokers []repository.BrokerAdapter,
	store *internalrepo.MemoryStore,
	events repository.EventPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.TradeExecutor {
	return usecase.NewTradeExecutor(brokers, store, events, m, l)
}

// ProvideEnricher picks the HTTP enricher when configured, static otherwise.
func ProvideEnricher(cfg *config.Config) repository.Enricher {
	if cfg.Analytics.EnrichmentURL != "" {
		return analytics.NewHTTPEnricher(cfg.Analytics.EnrichmentURL, cfg.Analytics.Timeout)
	}
	return &analytics.StaticEnricher{}
}

// ProvideDecisionEngine picks the HTTP engine when configured, in-process
// rule engine otherwise.
func ProvideDecisionEngine(cfg *config.Config) repository.DecisionEngine {
	if cfg.Analytics.DecisionURL != "" {
		return analytics.NewHTTPDecisionEngine(cfg.Analytics.DecisionURL, cfg.Analytics.Timeout)
	}
	return &analytics.RuleDecisionEngine{}
}

// ProvideQueue creates the pipeline queue. Delivery outcomes feed the alert
// evaluator's consecutive-failure counter.
func ProvideQueue(
	cfg *config.Config,
	store *internalrepo.MemoryStore,
	enricher repository.Enricher,
	engine repository.DecisionEngine,
	executor *usecase.TradeExecutor,
	monitor *usecase.Monitor,
	evaluator *usecase.AlertEvaluator,
	events repository.EventPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.PipelineQueue {
	opts := []usecase.QueueOption{
		usecase.WithRuleSet(&models.RuleSet{Name: cfg.Pipeline.RuleSet}),
		usecase.WithFailureTracker(evaluator),
	}
	if cfg.Pipeline.RetryLimit > 0 {
		opts = append(opts, usecase.WithRetryLimit(cfg.Pipeline.RetryLimit))
	}
	return usecase.NewPipelineQueue(
		store, store, store,
		enricher, engine, executor, monitor, events, m, l,
		opts...,
	)
}

// ProvideHTTPHandler assembles all route groups into one registration.
func ProvideHTTPHandler(
	l *applogger.Logger,
	store *internalrepo.MemoryStore,
	monitor *usecase.Monitor,
	collector *usecase.MetricsCollector,
	evaluator *usecase.AlertEvaluator,
	executor *usecase.TradeExecutor,
	queue *usecase.PipelineQueue,
	hub *broadcast.Hub,
) xhttp.Handler {
	limiter := ratelimit.New()
	return handlerGroup{
		api.NewMonitorHandler(l, monitor, collector, evaluator, executor, queue, hub, limiter),
		api.NewIngestHandler(l, store, monitor, queue),
	}
}

type handlerGroup []xhttp.Handler

func (g handlerGroup) RegisterRoutes(e *echo.Echo) {
	for _, h := range g {
		h.RegisterRoutes(e)
	}
}

// ProvideServer creates the Echo server with the monitoring routes.
func ProvideServer(cfg *config.Config, handler xhttp.Handler, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithRequestMetrics(l, 2*time.Second))
	}
	return xhttp.NewServer(handler, opts...)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	queue *usecase.PipelineQueue,
	collector *usecase.MetricsCollector,
	evaluator *usecase.AlertEvaluator,
	emitter *mid.MonitorEmitter,
	events repository.EventPublisher,
	chClient *pkgch.Client,
	srv *xhttp.Server,
) *server.App {
	return server.New(cfg, l, queue, collector, evaluator, emitter, events, chClient, srv)
}
