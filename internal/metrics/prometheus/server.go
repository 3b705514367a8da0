package prometheus

import (
	"time"

	"github.com/AnishMulay/sandsync/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type serverMetrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	bytes         *prometheus.CounterVec
	leases        *prometheus.CounterVec
	activeLeases  prometheus.Gauge
	notifications prometheus.Counter
}

// NewServerMetrics creates the Prometheus-backed server metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewServerMetrics() metrics.ServerMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &serverMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandsync_rpc_requests_total",
				Help: "Total number of RPCs by method and status code",
			},
			[]string{"method", "code"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandsync_rpc_duration_seconds",
				Help:    "RPC latency by method",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandsync_transfer_bytes_total",
				Help: "File payload bytes moved by direction",
			},
			[]string{"direction"}, // "in", "out"
		),
		leases: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandsync_write_lease_events_total",
				Help: "Write lease events by outcome",
			},
			[]string{"outcome"}, // "granted", "denied", "released"
		),
		activeLeases: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "sandsync_write_leases_active",
				Help: "Write leases currently held",
			},
		),
		notifications: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "sandsync_change_notifications_total",
				Help: "Change notifications published to CallbackList waiters",
			},
		),
	}
}

func (m *serverMetrics) RecordRequest(method string, code string, duration time.Duration) {
	m.requests.WithLabelValues(method, code).Inc()
	m.duration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *serverMetrics) RecordBytes(direction string, bytes int64) {
	m.bytes.WithLabelValues(direction).Add(float64(bytes))
}

func (m *serverMetrics) RecordLease(outcome string) {
	m.leases.WithLabelValues(outcome).Inc()
}

func (m *serverMetrics) SetActiveLeases(count int) {
	m.activeLeases.Set(float64(count))
}

func (m *serverMetrics) RecordNotification() {
	m.notifications.Inc()
}
