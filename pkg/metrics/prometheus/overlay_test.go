package prometheus

import (
	"testing"
	"time"

	"github.com/spire-resilient-systems/itrc/pkg/metrics"
)

func TestOverlayMetricsRecordsExpectedSeries(t *testing.T) {
	reg := metrics.InitRegistry()
	m := newOverlayMetrics()

	m.RecordReconnect("external", true)
	m.RecordReconnect("internal", false)
	m.RecordSend("external", 128, time.Millisecond)
	m.RecordSendFailure("external")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	want := map[string]bool{
		"itrc_overlay_reconnects_total":      false,
		"itrc_overlay_send_bytes":            false,
		"itrc_overlay_send_duration_seconds": false,
		"itrc_overlay_send_failures_total":   false,
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

func TestOverlayMetricsNilReceiverNoPanic(t *testing.T) {
	var m *overlayMetrics
	m.RecordReconnect("external", true)
	m.RecordSend("external", 1, time.Second)
	m.RecordSendFailure("internal")
}
