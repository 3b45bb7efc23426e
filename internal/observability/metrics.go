package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type hubMetrics struct {
	activeSessions   prometheus.Gauge
	connectedClients prometheus.Gauge

	messagesRelayedTotal *prometheus.CounterVec
	sessionsEndedTotal   *prometheus.CounterVec
	waitDuration         *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *hubMetrics
)

func getMetrics() *hubMetrics {
	metricsOnce.Do(func() {
		m := &hubMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "parley_active_sessions",
					Help: "Current active session count.",
				},
			),
			connectedClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "parley_connected_clients",
					Help: "Current number of connected TCP clients.",
				},
			),
			messagesRelayedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "parley_messages_relayed_total",
					Help: "Total messages relayed through the hub by kind.",
				},
				[]string{"kind"},
			),
			sessionsEndedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "parley_sessions_ended_total",
					Help: "Total sessions ended by reason.",
				},
				[]string{"reason"},
			),
			waitDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "parley_wait_duration_seconds",
					Help:    "Time connections spend parked in blocking actions.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"action"},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.connectedClients,
			m.messagesRelayedTotal,
			m.sessionsEndedTotal,
			m.waitDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns the HTTP handler serving the metrics endpoint.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// SetActiveSessions records the current active session count.
func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

// SetConnectedClients records the current connected client count.
func SetConnectedClients(count int) {
	getMetrics().connectedClients.Set(float64(count))
}

// IncMessagesRelayed counts one relayed message.
func IncMessagesRelayed(kind string) {
	getMetrics().messagesRelayedTotal.WithLabelValues(kind).Inc()
}

// IncSessionsEnded counts one ended session.
func IncSessionsEnded(reason string) {
	getMetrics().sessionsEndedTotal.WithLabelValues(reason).Inc()
}

// ObserveWaitDuration records how long a blocking action parked.
func ObserveWaitDuration(action string, duration time.Duration) {
	getMetrics().waitDuration.WithLabelValues(action).Observe(duration.Seconds())
}
