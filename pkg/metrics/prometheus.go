package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsTotal    *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	brokerOrders    *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	errorsTotal     *prometheus.CounterVec
	broadcastEvents *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigflow_signals_processed_total",
				Help: "Total signals processed by the pipeline, by outcome",
			},
			[]string{"outcome"},
		),
		stageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigflow_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		brokerOrders: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigflow_broker_orders_total",
				Help: "Total broker order submissions, by broker and fill status",
			},
			[]string{"broker", "status"},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sigflow_queue_depth",
				Help: "Current number of signals waiting in the pipeline queue",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		broadcastEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigflow_broadcast_events_total",
				Help: "Total monitoring events broadcast to subscribers",
			},
			[]string{"channel"},
		),
	}
}

// RecordSignal records a processed signal by terminal outcome.
func (r *Recorder) RecordSignal(outcome string) {
	r.signalsTotal.WithLabelValues(outcome).Inc()
}

// RecordStageDuration records one completed stage duration.
func (r *Recorder) RecordStageDuration(stage string, seconds float64) {
	r.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordBrokerOrder records one broker order submission outcome.
func (r *Recorder) RecordBrokerOrder(broker, status string) {
	r.brokerOrders.WithLabelValues(broker, status).Inc()
}

// SetQueueDepth sets the current queue depth gauge.
func (r *Recorder) SetQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordBroadcast records one broadcast emission.
func (r *Recorder) RecordBroadcast(channel string) {
	r.broadcastEvents.WithLabelValues(channel).Inc()
}
