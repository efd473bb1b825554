package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	syncChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_changes_total",
			Help:      "Mutations applied to synced collections.",
		},
		[]string{"collection", "reason"},
	)

	syncErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Load, refetch, subscribe and decode failures.",
		},
		[]string{"stage"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound notifications by type and outcome.",
		},
		[]string{"type", "status"},
	)

	liveClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_clients",
			Help:      "Connected live feed websocket clients.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, syncChanges, syncErrors, notifications, liveClients)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncSyncChange(collection, reason string) {
	syncChanges.WithLabelValues(collection, reason).Inc()
}

func IncSyncError(stage string) {
	syncErrors.WithLabelValues(stage).Inc()
}

func IncNotification(kind, status string) {
	notifications.WithLabelValues(kind, status).Inc()
}

func SetLiveClients(n int) {
	liveClients.Set(float64(n))
}
