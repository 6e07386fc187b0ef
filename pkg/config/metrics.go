package config

import (
	"net/http"

	"github.com/tgmirror/tgmirror/pkg/metrics"
)

// MetricsResult carries the metrics components created from configuration.
// Both fields are nil when metrics are disabled.
type MetricsResult struct {
	// Server serves the /metrics endpoint. The caller owns its lifecycle.
	Server *http.Server

	// Forwarder is the engine's metrics sink.
	Forwarder metrics.ForwarderMetrics
}

// InitializeMetrics initializes the metrics registry from configuration.
// Must run before components that record metrics are constructed, so
// metrics.IsEnabled() reports the right answer at construction time.
func InitializeMetrics(cfg *Config) MetricsResult {
	if !cfg.Metrics.Enabled {
		return MetricsResult{}
	}

	metrics.InitRegistry()
	return MetricsResult{
		Server:    metrics.NewServer(cfg.Metrics.Port),
		Forwarder: metrics.NewForwarderMetrics(),
	}
}
