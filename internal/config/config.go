// Package config loads a replica's static configuration: its identity
// within the cluster, the Byzantine/crash thresholds, the per-slot
// replica table, key-material paths, and the ambient logging/
// telemetry/metrics sub-configs.
//
// Grounded on pkg/config/config.go in the teacher repo: the same
// precedence chain (CLI flag > env var > file > default), the same
// viper+mapstructure decode-hook plumbing, and the same split between
// a struct file, a defaults file, and a validation file. Fields are
// replaced wholesale: nothing here reuses DittoFS's filesystem/share/
// adapter shape, since ITRC has no equivalent concept.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is a replica's full static configuration.
//
// Configuration sources, in order of precedence:
//  1. CLI flags (highest priority)
//  2. Environment variables (ITRC_*)
//  3. Configuration file
//  4. Default values (lowest priority)
type Config struct {
	// ReplicaID is this process's tpm_based_id within the cluster.
	ReplicaID uint32 `mapstructure:"replica_id" validate:"required" yaml:"replica_id"`
	// SiteID identifies which site (control-center or
	// disaster-recovery) this replica belongs to.
	SiteID uint32 `mapstructure:"site_id" yaml:"site_id"`
	// IsCC marks this replica as a signing control-center replica; a
	// disaster-recovery replica orders but never holds a threshold
	// share.
	IsCC bool `mapstructure:"is_cc" yaml:"is_cc"`

	// Cluster carries the Byzantine/crash thresholds and site counts
	// this replica was started with, superseded at runtime by whatever
	// PRIME_OOB_CONFIG_MSG the config agent delivers.
	Cluster ClusterConfig `mapstructure:"cluster" yaml:"cluster"`

	// Replicas is this replica's initial view of the per-slot replica
	// table, used before the first reconfiguration message arrives.
	Replicas []ReplicaSlot `mapstructure:"replicas" yaml:"replicas"`

	// Keys locates the RSA and threshold key material this replica
	// loads at startup.
	Keys KeyConfig `mapstructure:"keys" yaml:"keys"`

	// IPC locates the local Unix-domain datagram sockets connecting
	// Master, Inject, the local SM, and the config agent.
	IPC IPCConfig `mapstructure:"ipc" yaml:"ipc"`

	// Overlay configures the Spines-style external/internal/multicast
	// ports this replica listens on and dials.
	Overlay OverlayConfig `mapstructure:"overlay" yaml:"overlay"`

	// ConfigStore locates the reconfiguration-history ledger.
	ConfigStore ConfigStoreConfig `mapstructure:"config_store" yaml:"config_store"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	// Metrics controls the Prometheus metrics registry.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout bounds how long graceful shutdown waits for the
	// Master/Inject/Client goroutines to drain.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// ClusterConfig carries replica-count and threshold parameters.
type ClusterConfig struct {
	N             uint32 `mapstructure:"n" yaml:"n"`
	F             uint32 `mapstructure:"f" yaml:"f"`
	K             uint32 `mapstructure:"k" yaml:"k"`
	NumCCReplicas uint32 `mapstructure:"num_cc_replicas" yaml:"num_cc_replicas"`
	NumCCSites    uint32 `mapstructure:"num_cc_sites" yaml:"num_cc_sites"`
	NumDCSites    uint32 `mapstructure:"num_dc_sites" yaml:"num_dc_sites"`
}

// ReplicaSlot is one entry of the per-slot replica table.
type ReplicaSlot struct {
	ID      uint32 `mapstructure:"id" yaml:"id"`
	Type    string `mapstructure:"type" validate:"omitempty,oneof=cc dc" yaml:"type"`
	ExtAddr string `mapstructure:"ext_addr" yaml:"ext_addr"`
	IntAddr string `mapstructure:"int_addr" yaml:"int_addr"`
}

// KeyConfig locates this replica's RSA and threshold key material on
// disk.
type KeyConfig struct {
	RSAPublicDir              string `mapstructure:"rsa_public_dir" yaml:"rsa_public_dir"`
	RSAPrivateKeyPath         string `mapstructure:"rsa_private_key_path" yaml:"rsa_private_key_path"`
	ThresholdPublicKeyPath    string `mapstructure:"threshold_public_key_path" yaml:"threshold_public_key_path"`
	ThresholdPrivateSharePath string `mapstructure:"threshold_private_share_path" yaml:"threshold_private_share_path"`
}

// IPCConfig locates the local Unix-domain datagram sockets.
type IPCConfig struct {
	SMMainPath     string `mapstructure:"sm_main_path" yaml:"sm_main_path"`
	PrimeClientPath string `mapstructure:"prime_client_path" yaml:"prime_client_path"`
	InjectPath     string `mapstructure:"inject_path" yaml:"inject_path"`
	ConfigAgentPath string `mapstructure:"config_agent_path" yaml:"config_agent_path"`
}

// OverlayConfig configures this replica's Spines-style ports.
type OverlayConfig struct {
	ExtBasePort     int    `mapstructure:"ext_base_port" yaml:"ext_base_port"`
	IntBasePort     int    `mapstructure:"int_base_port" yaml:"int_base_port"`
	MulticastAddr   string `mapstructure:"multicast_addr" yaml:"multicast_addr"`
	MulticastPort   int    `mapstructure:"multicast_port" yaml:"multicast_port"`
	ReconnectPeriod time.Duration `mapstructure:"reconnect_period" yaml:"reconnect_period"`
}

// ConfigStoreConfig locates the reconfiguration-history ledger.
type ConfigStoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool          `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64       `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
	Profiling  ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics registry.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := DefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// WatchReload installs a viper file-watch on configPath and calls
// onChange with the freshly loaded configuration whenever the config
// agent rewrites it in place, the live-reload mechanism referenced by
// the out-of-band reconfiguration path.
func WatchReload(configPath string, onChange func(*Config)) error {
	v := viper.New()
	setupViper(v, configPath)
	if _, err := readConfigFile(v); err != nil {
		return err
	}
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := Load(configPath)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// SaveConfig writes cfg to path in YAML form with owner-only permissions.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("ITRC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(configDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(durationDecodeHook())
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "spire-itrc")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "spire-itrc")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
