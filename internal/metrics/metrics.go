package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// singleton instance
	instance *Metrics
	once     sync.Once
)

// Metrics holds Prometheus metrics for Livewire
type Metrics struct {
	// Stream metrics
	StreamConnectionsActive prometheus.Gauge
	StreamEventsPublished   *prometheus.CounterVec
	StreamDeliveryErrors    *prometheus.CounterVec
	StreamMessagesDropped   prometheus.Counter
	BroadcastFanoutDuration prometheus.Histogram
	BroadcastSubscribers    prometheus.Histogram

	// Webhook metrics
	WebhookRequestsTotal   *prometheus.CounterVec
	WebhookBroadcastsTotal *prometheus.CounterVec

	// CMS metrics
	CMSRequestsTotal   *prometheus.CounterVec
	CMSRequestDuration *prometheus.HistogramVec

	// Snapshot cache metrics
	SnapshotCacheOps *prometheus.CounterVec
}

// GetMetrics returns the metrics singleton
func GetMetrics() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

// newMetrics initializes and registers all metrics
func newMetrics() *Metrics {
	m := &Metrics{}

	// Stream metrics
	m.StreamConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livewire_stream_connections_active",
			Help: "Number of active streaming connections",
		},
	)

	m.StreamEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livewire_stream_events_published_total",
			Help: "Total number of events delivered to streaming clients",
		},
		[]string{"protocol"}, // sse, websocket
	)

	m.StreamDeliveryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livewire_stream_delivery_errors_total",
			Help: "Total number of failed deliveries to individual subscribers",
		},
		[]string{"reason"}, // buffer_full, closed, invalid_json
	)

	m.StreamMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livewire_stream_messages_dropped_total",
			Help: "Total number of outbound messages dropped before framing",
		},
	)

	m.BroadcastFanoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "livewire_broadcast_fanout_duration_seconds",
			Help:    "Duration of a single broadcast fan-out in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 10), // from 0.1ms to ~51ms
		},
	)

	m.BroadcastSubscribers = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "livewire_broadcast_subscribers",
			Help:    "Number of subscribers per broadcast",
			Buckets: prometheus.LinearBuckets(0, 25, 8), // from 0 to 175 in steps of 25
		},
	)

	// Webhook metrics
	m.WebhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livewire_webhook_requests_total",
			Help: "Total number of CMS webhook requests",
		},
		[]string{"outcome"}, // accepted, ignored, unauthorized, error
	)

	m.WebhookBroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livewire_webhook_broadcasts_total",
			Help: "Total number of broadcasts emitted by the webhook ingress",
		},
		[]string{"phase"}, // minimal, full
	)

	// CMS metrics
	m.CMSRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livewire_cms_requests_total",
			Help: "Total number of requests to the CMS",
		},
		[]string{"method", "status"},
	)

	m.CMSRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livewire_cms_request_duration_seconds",
			Help:    "Duration of CMS requests in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // from 1ms to ~2s
		},
		[]string{"method"},
	)

	// Snapshot cache metrics
	m.SnapshotCacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livewire_snapshot_cache_ops_total",
			Help: "Total number of snapshot cache operations",
		},
		[]string{"op"}, // hit, miss, store, evict
	)

	return m
}
