// Package metrics holds the optional Prometheus registry. Nothing is
// collected until InitRegistry is called; constructors in the prometheus
// subpackage return nil before that, and callers treat a nil metrics value as
// "disabled".
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics and returns the registry. Calling it again
// returns the existing registry.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return registry
}

func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ServerMetrics observes the file server: RPC outcomes, transfer volume and
// the write lease table.
type ServerMetrics interface {
	// RecordRequest records one finished RPC by full method and status code.
	RecordRequest(method string, code string, duration time.Duration)

	// RecordBytes records payload bytes moved; direction is "in" or "out".
	RecordBytes(direction string, bytes int64)

	// RecordLease counts lease outcomes: "granted", "denied", "released".
	RecordLease(outcome string)

	SetActiveLeases(count int)

	// RecordNotification counts change notifications published to
	// CallbackList waiters.
	RecordNotification()
}
