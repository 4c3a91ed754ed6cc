package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/spire-resilient-systems/itrc/pkg/metrics"
)

func init() {
	metrics.RegisterOverlayMetricsConstructor(func() metrics.OverlayMetrics {
		return newOverlayMetrics()
	})
}

// overlayMetrics is the Prometheus implementation of
// metrics.OverlayMetrics.
type overlayMetrics struct {
	reconnects    *prometheus.CounterVec
	sendBytes     *prometheus.HistogramVec
	sendDuration  *prometheus.HistogramVec
	sendFailures  *prometheus.CounterVec
}

func newOverlayMetrics() *overlayMetrics {
	reg := metrics.GetRegistry()
	return &overlayMetrics{
		reconnects: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "itrc_overlay_reconnects_total",
			Help: "Total number of overlay reconnect attempts by link and outcome.",
		}, []string{"link", "outcome"}), // outcome: "ok", "failed"
		sendBytes: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "itrc_overlay_send_bytes",
			Help:    "Size distribution of datagrams sent over the overlay.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"link"}),
		sendDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "itrc_overlay_send_duration_seconds",
			Help: "Time taken by one overlay send call.",
			Buckets: []float64{
				0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1,
			},
		}, []string{"link"}),
		sendFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "itrc_overlay_send_failures_total",
			Help: "Total number of failed overlay sends by link.",
		}, []string{"link"}),
	}
}

func (m *overlayMetrics) RecordReconnect(link string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.reconnects.WithLabelValues(link, outcome).Inc()
}

func (m *overlayMetrics) RecordSend(link string, bytes int, duration time.Duration) {
	if m == nil {
		return
	}
	m.sendBytes.WithLabelValues(link).Observe(float64(bytes))
	m.sendDuration.WithLabelValues(link).Observe(duration.Seconds())
}

func (m *overlayMetrics) RecordSendFailure(link string) {
	if m == nil {
		return
	}
	m.sendFailures.WithLabelValues(link).Inc()
}
