package metrics

import "time"

// OverlayMetrics observes the external/internal overlay sockets:
// reconnect churn and send-path latency and failure rate.
type OverlayMetrics interface {
	// RecordReconnect counts one overlay reconnect attempt for the
	// given link ("external" or "internal") and whether it succeeded.
	RecordReconnect(link string, ok bool)

	// RecordSend records one outbound datagram's size and the time
	// the send call took.
	RecordSend(link string, bytes int, duration time.Duration)

	// RecordSendFailure counts one failed send on the given link.
	RecordSendFailure(link string)
}

// NewOverlayMetrics returns the Prometheus-backed OverlayMetrics, or
// nil for zero-overhead collection when metrics are disabled.
func NewOverlayMetrics() OverlayMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusOverlayMetrics()
}

var newPrometheusOverlayMetrics func() OverlayMetrics

// RegisterOverlayMetricsConstructor installs the Prometheus
// constructor. Called from pkg/metrics/prometheus's package init.
func RegisterOverlayMetricsConstructor(constructor func() OverlayMetrics) {
	newPrometheusOverlayMetrics = constructor
}
