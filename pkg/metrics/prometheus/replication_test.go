package prometheus

import (
	"testing"
	"time"

	"github.com/spire-resilient-systems/itrc/pkg/metrics"
)

func TestReplicationMetricsRecordsExpectedSeries(t *testing.T) {
	reg := metrics.InitRegistry()
	m := newReplicationMetrics()

	m.RecordOrdinalDelivered()
	m.RecordShareCombined(5 * time.Millisecond)
	m.RecordStateTransfer(4096)
	m.RecordQueueDepth("tc", 3)
	m.RecordDuplicateSkipped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	want := map[string]bool{
		"itrc_ordinals_delivered_total":        false,
		"itrc_share_combine_duration_seconds":  false,
		"itrc_state_transfers_total":           false,
		"itrc_state_transfer_bytes":            false,
		"itrc_queue_depth":                     false,
		"itrc_duplicates_skipped_total":        false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected metric %s to be registered", name)
		}
	}
}

func TestReplicationMetricsNilReceiverNoPanic(t *testing.T) {
	var m *replicationMetrics
	m.RecordOrdinalDelivered()
	m.RecordShareCombined(time.Second)
	m.RecordStateTransfer(1024)
	m.RecordQueueDepth("st", 1)
	m.RecordDuplicateSkipped()
}
