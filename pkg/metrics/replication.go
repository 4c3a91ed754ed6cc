package metrics

import "time"

// ReplicationMetrics observes ITRC-Master's replication pipeline: the
// rate of Prime-ordered deliveries, how long threshold-share
// combination takes, how often a replica falls back to state
// transfer, and how deep the TC/ST collection queues run.
type ReplicationMetrics interface {
	// RecordOrdinalDelivered counts one Prime-ordered event handed to
	// the local SM.
	RecordOrdinalDelivered()

	// RecordShareCombined records the time from a replica's own
	// partial signature to a completed TC_FINAL at the same ordinal.
	RecordShareCombined(duration time.Duration)

	// RecordStateTransfer counts one applied state-transfer snapshot
	// and its size in bytes.
	RecordStateTransfer(snapshotBytes int)

	// RecordQueueDepth reports the current length of a named
	// collection queue ("tc" or "st").
	RecordQueueDepth(queue string, depth int)

	// RecordDuplicateSkipped counts an ordinal dropped as a duplicate
	// or stale delivery.
	RecordDuplicateSkipped()
}

// NewReplicationMetrics returns the Prometheus-backed
// ReplicationMetrics, or nil for zero-overhead collection when
// metrics are disabled.
func NewReplicationMetrics() ReplicationMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusReplicationMetrics()
}

// newPrometheusReplicationMetrics is installed by
// pkg/metrics/prometheus's init, avoiding an import cycle between
// this package and its own implementation.
var newPrometheusReplicationMetrics func() ReplicationMetrics

// RegisterReplicationMetricsConstructor installs the Prometheus
// constructor. Called from pkg/metrics/prometheus's package init.
func RegisterReplicationMetricsConstructor(constructor func() ReplicationMetrics) {
	newPrometheusReplicationMetrics = constructor
}
