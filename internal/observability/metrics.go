package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	adminRequestsTotal  *prometheus.CounterVec
	adminLatencySeconds *prometheus.HistogramVec
	adminErrorsTotal    *prometheus.CounterVec

	monitorTicksTotal      *prometheus.CounterVec
	attemptLocksTotal      prometheus.Counter
	verifierOutagesTotal   prometheus.Counter
	rankingPassSeconds     prometheus.Histogram
	notificationsPublished *prometheus.CounterVec
	sseClientsActive       prometheus.Gauge
	liveFeedClientsActive  prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		adminRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invigilo_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		adminLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "invigilo_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		adminErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invigilo_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		monitorTicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invigilo_monitor_ticks_total",
			Help: "Proctoring monitor ticks processed, labelled by outcome.",
		}, []string{"outcome"})

		attemptLocksTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "invigilo_attempt_locks_total",
			Help: "Attempts locked by the proctoring monitor or a reviewer.",
		})

		verifierOutagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "invigilo_verifier_outages_total",
			Help: "Monitor ticks that degraded because the verification service failed.",
		})

		rankingPassSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "invigilo_ranking_pass_seconds",
			Help:    "Wall time of full ranking recalculations.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		})

		notificationsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invigilo_notifications_published_total",
			Help: "Notifications published to the fan-out channels.",
		}, []string{"type"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "invigilo_sse_clients_active",
			Help: "Currently connected notification stream subscribers.",
		})

		liveFeedClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "invigilo_live_feed_clients_active",
			Help: "Currently connected incident live-feed websocket clients.",
		})

		prometheus.MustRegister(
			adminRequestsTotal, adminLatencySeconds, adminErrorsTotal,
			monitorTicksTotal, attemptLocksTotal, verifierOutagesTotal,
			rankingPassSeconds, notificationsPublished, sseClientsActive,
			liveFeedClientsActive,
		)
	})
}

// AdminRequests exposes the counter for API requests.
func AdminRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return adminRequestsTotal
}

// AdminLatency exposes the latency histogram for API requests.
func AdminLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return adminLatencySeconds
}

// AdminErrors exposes the counter for API error responses.
func AdminErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return adminErrorsTotal
}

// MonitorTicks exposes the counter for proctoring monitor ticks.
func MonitorTicks() *prometheus.CounterVec {
	RegisterMetrics()
	return monitorTicksTotal
}

// AttemptLocks exposes the counter for attempt lock events.
func AttemptLocks() prometheus.Counter {
	RegisterMetrics()
	return attemptLocksTotal
}

// VerifierOutages exposes the counter for degraded monitor ticks.
func VerifierOutages() prometheus.Counter {
	RegisterMetrics()
	return verifierOutagesTotal
}

// RankingPassDuration exposes the histogram for ranking recalculation time.
func RankingPassDuration() prometheus.Histogram {
	RegisterMetrics()
	return rankingPassSeconds
}

// NotificationsPublishedTotal exposes the counter for published notifications.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublished
}

// SSEClientsActive exposes the gauge for connected notification subscribers.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

// LiveFeedClientsActive exposes the gauge for connected live-feed clients.
func LiveFeedClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return liveFeedClientsActive
}
