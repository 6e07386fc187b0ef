package config

import (
	"strings"
	"time"

	"github.com/tgmirror/tgmirror/pkg/store"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	cfg.Database.ApplyDefaults()
	applyMetricsDefaults(&cfg.Metrics)
	cfg.Rate.ApplyDefaults()
	applyDispatchDefaults(&cfg.Dispatch)
	cfg.Queue.ApplyDefaults()
	applyRetryDefaults(&cfg.Retry)
	applyRetentionDefaults(&cfg.Retention)
	applyMembershipDefaults(&cfg.Membership)
	applySupervisorDefaults(&cfg.Supervisor)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyDispatchDefaults sets fan-out defaults.
func applyDispatchDefaults(cfg *DispatchConfig) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 10
	}
	if cfg.InterChunkDelay == 0 {
		cfg.InterChunkDelay = 2 * time.Second
	}
}

// applyRetryDefaults sets retry policy defaults.
func applyRetryDefaults(cfg *RetryConfig) {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 30 * time.Second
	}
}

// applyRetentionDefaults sets revocation sweep defaults.
func applyRetentionDefaults(cfg *RetentionConfig) {
	if cfg.MessageAge == 0 {
		cfg.MessageAge = 24 * time.Hour
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.SweepBatchSize == 0 {
		cfg.SweepBatchSize = 500
	}
}

// applyMembershipDefaults sets roster sync defaults.
func applyMembershipDefaults(cfg *MembershipConfig) {
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = 2 * time.Minute
	}
	if cfg.MaxParticipants == 0 {
		cfg.MaxParticipants = 1000
	}
}

// applySupervisorDefaults sets session lifecycle defaults.
func applySupervisorDefaults(cfg *SupervisorConfig) {
	if cfg.ResumeCheckInterval == 0 {
		cfg.ResumeCheckInterval = 60 * time.Second
	}
	if cfg.SpamBackoff == 0 {
		cfg.SpamBackoff = time.Hour
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{},
		Database: store.Config{
			Type: store.DatabaseTypeSQLite, // Default to SQLite for single-node
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
