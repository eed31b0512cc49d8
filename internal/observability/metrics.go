package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	connectionsActive      prometheus.Gauge
	messagesSentTotal      *prometheus.CounterVec
	messagesBroadcastTotal *prometheus.CounterVec
	notificationsTotal     *prometheus.CounterVec
	sseClientsActive       prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wave_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wave_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wave_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		connectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wave_connections_active",
			Help: "Number of client connections currently registered.",
		})

		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wave_messages_sent_total",
			Help: "Total number of messages appended, by type.",
		}, []string{"type"})

		messagesBroadcastTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wave_messages_broadcast_total",
			Help: "Broadcast attempts to live connections, by outcome.",
		}, []string{"outcome"})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wave_notifications_total",
			Help: "Total number of notifications persisted, by type.",
		}, []string{"type"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wave_sse_clients_active",
			Help: "Number of active notification stream subscribers.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			connectionsActive,
			messagesSentTotal,
			messagesBroadcastTotal,
			notificationsTotal,
			sseClientsActive,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ConnectionsActive exposes the live connection gauge.
func ConnectionsActive() prometheus.Gauge {
	RegisterMetrics()
	return connectionsActive
}

// MessagesSent exposes the appended message counter.
func MessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

// MessagesBroadcast exposes the broadcast outcome counter.
func MessagesBroadcast() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesBroadcastTotal
}

// NotificationsPersisted exposes the notification counter.
func NotificationsPersisted() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsTotal
}

// SSEClientsActive exposes the notification stream subscriber gauge.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}
