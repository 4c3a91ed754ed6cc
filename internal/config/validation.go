package config

import "fmt"

// Validate checks a loaded Config for the invariants the reconfiguration
// acceptance rule also enforces at runtime (N >= 3f+2k+1), plus the
// fields Load cannot safely default.
func Validate(cfg *Config) error {
	if cfg.ReplicaID == 0 {
		return fmt.Errorf("config: replica_id is required")
	}

	c := cfg.Cluster
	if c.N > 0 && c.N < 3*c.F+2*c.K+1 {
		return fmt.Errorf("config: cluster.n=%d must be >= 3f+2k+1 (f=%d, k=%d)", c.N, c.F, c.K)
	}

	for i, slot := range cfg.Replicas {
		if slot.ID == 0 {
			return fmt.Errorf("config: replicas[%d].id must be nonzero", i)
		}
		switch slot.Type {
		case "", "cc", "dc":
		default:
			return fmt.Errorf("config: replicas[%d].type %q must be cc or dc", i, slot.Type)
		}
	}

	switch cfg.Logging.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("config: logging.level %q must be one of DEBUG, INFO, WARN, ERROR", cfg.Logging.Level)
	}

	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		return fmt.Errorf("config: telemetry.sample_rate %f must be in [0,1]", cfg.Telemetry.SampleRate)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: shutdown_timeout must be > 0")
	}

	return nil
}
