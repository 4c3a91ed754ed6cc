// Package metrics defines ITRC's metrics collection interfaces and
// a process-wide optional registry. Collection is opt-in: InitRegistry
// must be called before any collector does real work, and every
// collector accepts a nil receiver as "metrics disabled" with zero
// overhead, so a replica can run without a Prometheus endpoint at
// all.
//
// Grounded on pkg/metrics/cache.go and pkg/metrics/nfs.go in the
// teacher repo: an interface defined here, a registration-constructor
// indirection to the concrete type in pkg/metrics/prometheus, which
// keeps the concrete collectors out of this package (it imports
// client_golang only for the Registry type) and avoids an import
// cycle between the two.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates and installs the process-wide Prometheus
// registry, enabling metrics collection. Call it once at startup,
// before constructing any collector.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the installed registry, or nil if metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}
