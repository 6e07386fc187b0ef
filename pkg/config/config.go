package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tgmirror/tgmirror/pkg/governor"
	"github.com/tgmirror/tgmirror/pkg/queue"
	"github.com/tgmirror/tgmirror/pkg/store"
)

// Config represents the tgmirror configuration.
//
// This structure captures the static configuration of the forwarding engine:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Database connection (ledger and roster persistence)
//   - Telegram API credentials
//   - Rate limiting, dispatch, retry and retention policy
//
// Dynamic state (sessions, channels, operators, the forward ledger) lives in
// the database and is managed through the CLI.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (TGMIRROR_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures the persistence layer (SQLite or PostgreSQL).
	// This holds sessions, channel rosters, operators and the forward ledger.
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Transport contains Telegram API credentials shared by all sessions
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`

	// Rate configures the multi-scope send governor
	Rate governor.Config `mapstructure:"rate" yaml:"rate"`

	// Dispatch configures per-message fan-out behavior
	Dispatch DispatchConfig `mapstructure:"dispatch" yaml:"dispatch"`

	// Queue configures the per-session serial work queues
	Queue queue.Config `mapstructure:"queue" yaml:"queue"`

	// Retry configures per-recipient retry behavior for transient errors
	Retry RetryConfig `mapstructure:"retry" yaml:"retry"`

	// Retention configures age-based revocation of forwarded copies
	Retention RetentionConfig `mapstructure:"retention" yaml:"retention"`

	// Membership configures periodic channel roster synchronization
	Membership MembershipConfig `mapstructure:"membership" yaml:"membership"`

	// Supervisor configures session quarantine and resume behavior
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	// Set to false in production with a TLS-enabled collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// 1.0 = sample all traces, 0.5 = sample 50%, 0.0 = no sampling
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// TransportConfig contains the Telegram API credentials shared by every
// session. Obtain a pair at https://my.telegram.org/apps.
type TransportConfig struct {
	// APIID is the application identifier
	// Override: TGMIRROR_TRANSPORT_API_ID
	APIID int `mapstructure:"api_id" yaml:"api_id"`

	// APIHash is the application secret
	// Override: TGMIRROR_TRANSPORT_API_HASH
	APIHash string `mapstructure:"api_hash" yaml:"api_hash,omitempty"`
}

// DispatchConfig controls per-message fan-out.
type DispatchConfig struct {
	// ChunkSize is the number of recipients processed per batch.
	// Default: 10
	ChunkSize int `mapstructure:"chunk_size" validate:"omitempty,gt=0" yaml:"chunk_size"`

	// InterChunkDelay is the pause between recipient batches.
	// Default: 2s
	InterChunkDelay time.Duration `mapstructure:"inter_chunk_delay" yaml:"inter_chunk_delay"`
}

// RetryConfig controls per-recipient retries for transient send failures.
// Delays grow exponentially from BaseDelay up to MaxDelay.
type RetryConfig struct {
	// MaxAttempts is the total number of send attempts per recipient.
	// Default: 3
	MaxAttempts int `mapstructure:"max_attempts" validate:"omitempty,gt=0" yaml:"max_attempts"`

	// BaseDelay is the delay before the first retry.
	// Default: 1s
	BaseDelay time.Duration `mapstructure:"base_delay" yaml:"base_delay"`

	// MaxDelay caps the exponential backoff.
	// Default: 30s
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// RetentionConfig controls the age-based revocation sweep.
type RetentionConfig struct {
	// MessageAge is how long a forwarded copy lives before the sweep
	// deletes it from recipients.
	// Default: 24h
	MessageAge time.Duration `mapstructure:"message_age" yaml:"message_age"`

	// CleanupInterval is how often the sweep runs.
	// Default: 1h
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`

	// SweepBatchSize bounds how many ledger rows one sweep pass processes.
	// Default: 500
	SweepBatchSize int `mapstructure:"sweep_batch_size" validate:"omitempty,gt=0" yaml:"sweep_batch_size"`
}

// MembershipConfig controls periodic channel roster synchronization.
type MembershipConfig struct {
	// SyncInterval is how often each monitored channel's roster is refreshed.
	// Default: 2m
	SyncInterval time.Duration `mapstructure:"sync_interval" yaml:"sync_interval"`

	// MaxParticipants caps how many members are fetched per channel.
	// Default: 1000
	MaxParticipants int `mapstructure:"max_participants" validate:"omitempty,gt=0" yaml:"max_participants"`
}

// SupervisorConfig controls session lifecycle management.
type SupervisorConfig struct {
	// ResumeCheckInterval is how often quarantined sessions are checked
	// for expired penalties.
	// Default: 60s
	ResumeCheckInterval time.Duration `mapstructure:"resume_check_interval" yaml:"resume_check_interval"`

	// SpamBackoff is the quarantine duration applied on a spam block,
	// where Telegram does not announce a penalty window.
	// Default: 1h
	SpamBackoff time.Duration `mapstructure:"spam_backoff" yaml:"spam_backoff"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (TGMIRROR_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: User-friendly error with instructions if config not found
func MustLoad(configPath string) (*Config, error) {
	// Determine config path
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  tgmirror init\n\n"+
				"Or specify a custom config file:\n"+
				"  tgmirror <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  tgmirror init --config %s",
				configPath, configPath)
		}
	}

	// Load configuration
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file with restricted permissions (0600 = owner read/write only).
	// This is important because the config carries the Telegram API hash.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use TGMIRROR_ prefix and underscores
	// Example: TGMIRROR_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("TGMIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/tgmirror/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Other errors are problems
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		// Only handle conversion to time.Duration
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			// Parse duration string like "30s", "5m", "1h"
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tgmirror")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "tgmirror")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
