package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenNoFileFound(t *testing.T) {
	tmp := t.TempDir()
	cfg, err := Load(filepath.Join(tmp, "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Logging.Level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Overlay.ExtBasePort == 0 {
		t.Error("Overlay.ExtBasePort should have a default")
	}
}

func TestLoadFromFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	content := `
replica_id: 3
site_id: 1
is_cc: true
cluster:
  n: 7
  f: 2
  k: 0
  num_cc_replicas: 7
replicas:
  - id: 1
    type: cc
    ext_addr: "10.0.0.1"
    int_addr: "10.0.1.1"
  - id: 2
    type: cc
    ext_addr: "10.0.0.2"
    int_addr: "10.0.1.2"
logging:
  level: debug
shutdown_timeout: 10s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ReplicaID != 3 {
		t.Errorf("ReplicaID = %d, want 3", cfg.ReplicaID)
	}
	if cfg.Cluster.N != 7 || cfg.Cluster.F != 2 {
		t.Errorf("Cluster = %+v, want N=7 F=2", cfg.Cluster)
	}
	if len(cfg.Replicas) != 2 {
		t.Fatalf("len(Replicas) = %d, want 2", len(cfg.Replicas))
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Logging.Level = %q, want DEBUG (normalized uppercase)", cfg.Logging.Level)
	}
}

func TestValidateRejectsUndersizedCluster(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReplicaID = 1
	cfg.Cluster = ClusterConfig{N: 3, F: 1, K: 0}
	if err := Validate(cfg); err == nil {
		t.Error("expected error for N < 3f+2k+1")
	}
}

func TestValidateRejectsMissingReplicaID(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err == nil {
		t.Error("expected error for missing replica_id")
	}
}

func TestInitialConfigMessageBuildsSlotTable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReplicaID = 1
	cfg.Cluster = ClusterConfig{N: 4, F: 1, K: 0, NumCCReplicas: 4}
	cfg.Replicas = []ReplicaSlot{
		{ID: 1, Type: "cc", ExtAddr: "10.0.0.1", IntAddr: "10.0.1.1"},
		{ID: 2, Type: "cc", ExtAddr: "10.0.0.2", IntAddr: "10.0.1.2"},
		{ID: 3, Type: "cc", ExtAddr: "10.0.0.3", IntAddr: "10.0.1.3"},
		{ID: 4, Type: "cc", ExtAddr: "10.0.0.4", IntAddr: "10.0.1.4"},
	}

	msg, err := cfg.InitialConfigMessage()
	if err != nil {
		t.Fatalf("InitialConfigMessage: %v", err)
	}
	if msg.TpmBasedID[0] != 1 || msg.TpmBasedID[3] != 4 {
		t.Errorf("unexpected slot table: %+v", msg.TpmBasedID[:4])
	}
	if msg.SlotEmpty(4) != true {
		t.Error("slot 4 should be empty")
	}
}
