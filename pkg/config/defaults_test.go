package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tgmirror/tgmirror/pkg/store"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)

	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)

	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, store.DatabaseTypeSQLite, cfg.Database.Type)

	assert.Equal(t, 30, cfg.Rate.GlobalCapacity)
	assert.Equal(t, 60, cfg.Rate.GlobalRefillPerMinute)
	assert.Equal(t, 20, cfg.Rate.SessionTokensPerMinute)
	assert.Equal(t, 3*time.Second, cfg.Rate.RecipientGap)

	assert.Equal(t, 10, cfg.Dispatch.ChunkSize)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.InterChunkDelay)

	assert.Equal(t, 2*time.Second, cfg.Queue.MinTaskDelay)
	assert.Equal(t, 5*time.Second, cfg.Queue.MaxTaskDelay)

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)

	assert.Equal(t, 24*time.Hour, cfg.Retention.MessageAge)
	assert.Equal(t, time.Hour, cfg.Retention.CleanupInterval)
	assert.Equal(t, 500, cfg.Retention.SweepBatchSize)

	assert.Equal(t, 2*time.Minute, cfg.Membership.SyncInterval)
	assert.Equal(t, 1000, cfg.Membership.MaxParticipants)

	assert.Equal(t, 60*time.Second, cfg.Supervisor.ResumeCheckInterval)
	assert.Equal(t, time.Hour, cfg.Supervisor.SpamBackoff)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "warn"
	cfg.Dispatch.ChunkSize = 3
	cfg.Retention.MessageAge = time.Hour

	ApplyDefaults(cfg)

	// Level is normalized to uppercase but not replaced
	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Dispatch.ChunkSize)
	assert.Equal(t, time.Hour, cfg.Retention.MessageAge)

	// Untouched fields still get defaults
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.InterChunkDelay)
}

func TestMetricsPortDefaultOnlyWhenEnabled(t *testing.T) {
	disabled := &Config{}
	ApplyDefaults(disabled)
	assert.Equal(t, 0, disabled.Metrics.Port)

	enabled := &Config{}
	enabled.Metrics.Enabled = true
	ApplyDefaults(enabled)
	assert.Equal(t, 9090, enabled.Metrics.Port)
}
