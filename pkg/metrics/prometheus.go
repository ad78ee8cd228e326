package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	refreshDuration  prometheus.Histogram
	refreshPairs     prometheus.Gauge
	providerErrors   *prometheus.CounterVec
	lastMid          *prometheus.GaugeVec
	broadcastBatches prometheus.Counter
	broadcastEvents  prometheus.Counter
	queueDrops       prometheus.Counter
	connections      prometheus.Gauge
	subscriptions    prometheus.Gauge
	errorsTotal      *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		refreshDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ratepulse_refresh_duration_seconds",
				Help:    "Duration of full refresh cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		refreshPairs: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ratepulse_refresh_pairs",
				Help: "Number of pairs covered by the refresh schedule",
			},
		),
		providerErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratepulse_provider_errors_total",
				Help: "Total number of upstream provider fetch failures",
			},
			[]string{"provider"},
		),
		lastMid: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ratepulse_last_mid_rate",
				Help: "Last applied mid rate for a pair",
			},
			[]string{"pair"},
		),
		broadcastBatches: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ratepulse_broadcast_batches_total",
				Help: "Total number of batched frames flushed to clients",
			},
		),
		broadcastEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ratepulse_broadcast_events_total",
				Help: "Total number of events delivered to clients",
			},
		),
		queueDrops: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ratepulse_queue_drops_total",
				Help: "Total number of frames dropped from slow client queues",
			},
		),
		connections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ratepulse_active_connections",
				Help: "Current number of websocket connections",
			},
		),
		subscriptions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ratepulse_active_subscriptions",
				Help: "Current number of live subscriptions",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratepulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordRefresh records one refresh cycle.
func (r *Recorder) RecordRefresh(duration time.Duration, pairs int) {
	r.refreshDuration.Observe(duration.Seconds())
	r.refreshPairs.Set(float64(pairs))
}

// RecordProviderError records an upstream fetch failure.
func (r *Recorder) RecordProviderError(provider string) {
	r.providerErrors.WithLabelValues(provider).Inc()
}

// RecordRate records the last applied mid rate for a pair.
func (r *Recorder) RecordRate(pair string, mid float64) {
	r.lastMid.WithLabelValues(pair).Set(mid)
}

// RecordBroadcast records one flush of batched frames.
func (r *Recorder) RecordBroadcast(batches, events int) {
	r.broadcastBatches.Add(float64(batches))
	r.broadcastEvents.Add(float64(events))
}

// RecordQueueDrop records a frame evicted from a slow client's queue.
// Client ids are unbounded, so they stay out of the label set.
func (r *Recorder) RecordQueueDrop(string) {
	r.queueDrops.Inc()
}

// SetConnections records the current websocket connection count.
func (r *Recorder) SetConnections(n int) {
	r.connections.Set(float64(n))
}

// SetSubscriptions records the current subscription count.
func (r *Recorder) SetSubscriptions(n int) {
	r.subscriptions.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
