//go:build integration

package configstore

import (
	"context"
	"testing"
	"time"

	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAcceptedAndHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	cfgs := []*wire.ConfigMessage{
		{GlobalConfigurationNumber: 1, N: 4, F: 1, K: 0},
		{GlobalConfigurationNumber: 2, N: 7, F: 2, K: 0},
		{GlobalConfigurationNumber: 3, N: 7, F: 1, K: 1},
	}
	for i, cfg := range cfgs {
		if err := s.RecordAccepted(ctx, cfg, time.Unix(int64(i), 0)); err != nil {
			t.Fatalf("record %d: %v", cfg.GlobalConfigurationNumber, err)
		}
	}

	history, err := s.History(ctx, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}
	if history[0].GlobalConfigurationNumber != 3 {
		t.Errorf("history[0].GlobalConfigurationNumber = %d, want 3 (newest first)", history[0].GlobalConfigurationNumber)
	}
}

func TestRecordAcceptedIsIdempotentPerConfigurationNumber(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	cfg := &wire.ConfigMessage{GlobalConfigurationNumber: 5, N: 4, F: 1, K: 0}

	if err := s.RecordAccepted(ctx, cfg, time.Unix(0, 0)); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := s.RecordAccepted(ctx, cfg, time.Unix(100, 0)); err != nil {
		t.Fatalf("duplicate record: %v", err)
	}

	history, err := s.History(ctx, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1 after replaying the same configuration", len(history))
	}
}

func TestLatestReturnsNilOnEmptyHistory(t *testing.T) {
	s := createTestStore(t)
	rec, err := s.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil for empty history, got %+v", rec)
	}
}

func TestHistoryRespectsLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for i := uint32(1); i <= 5; i++ {
		if err := s.RecordAccepted(ctx, &wire.ConfigMessage{GlobalConfigurationNumber: i, N: 4, F: 1, K: 0}, time.Unix(int64(i), 0)); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	history, err := s.History(ctx, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].GlobalConfigurationNumber != 5 || history[1].GlobalConfigurationNumber != 4 {
		t.Errorf("unexpected ordering: %+v", history)
	}
}
