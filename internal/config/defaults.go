package config

import (
	"strings"
	"time"
)

// DefaultConfig returns a Config populated entirely with defaults, for
// the no-config-file-found path.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unspecified fields with sensible defaults,
// called after loading from file and environment.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyOverlayDefaults(&cfg.Overlay)
	applyIPCDefaults(&cfg.IPC)
	applyConfigStoreDefaults(&cfg.ConfigStore)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyOverlayDefaults mirrors SM_EXT_BASE_PORT/SM_INT_BASE_PORT and
// the multicast group used for out-of-band configuration traffic.
func applyOverlayDefaults(cfg *OverlayConfig) {
	if cfg.ExtBasePort == 0 {
		cfg.ExtBasePort = 7000
	}
	if cfg.IntBasePort == 0 {
		cfg.IntBasePort = 7100
	}
	if cfg.MulticastAddr == "" {
		cfg.MulticastAddr = "224.0.1.100"
	}
	if cfg.MulticastPort == 0 {
		cfg.MulticastPort = 7200
	}
	if cfg.ReconnectPeriod == 0 {
		cfg.ReconnectPeriod = 2 * time.Second
	}
}

func applyIPCDefaults(cfg *IPCConfig) {
	if cfg.SMMainPath == "" {
		cfg.SMMainPath = "/tmp/spire-itrc/sm_main.sock"
	}
	if cfg.PrimeClientPath == "" {
		cfg.PrimeClientPath = "/tmp/spire-itrc/prime_client.sock"
	}
	if cfg.InjectPath == "" {
		cfg.InjectPath = "/tmp/spire-itrc/inject.sock"
	}
	if cfg.ConfigAgentPath == "" {
		cfg.ConfigAgentPath = "/tmp/spire-itrc/config_agent.sock"
	}
}

func applyConfigStoreDefaults(cfg *ConfigStoreConfig) {
	if cfg.Path == "" {
		cfg.Path = "/var/lib/spire-itrc/config_history.db"
	}
}
