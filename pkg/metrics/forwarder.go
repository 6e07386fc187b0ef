// Package metrics defines the observability interfaces for the forwarding
// engine and hosts the process-wide Prometheus registry.
//
// Metrics are optional: when InitRegistry has not been called, constructors
// return nil and all helpers treat a nil instance as a no-op.
package metrics

import "time"

// ForwarderMetrics provides observability for the forwarding pipeline.
//
// Implementations record fan-out outcomes, transport pacing and session
// health. This interface is optional - pass nil to disable metrics
// collection with zero overhead.
type ForwarderMetrics interface {
	// RecordForward records one ledger outcome for a recipient copy.
	// status is one of: sent, failed, skipped.
	RecordForward(session string, channelID int64, status string)

	// ObserveSendDuration records the latency of one transport send.
	ObserveSendDuration(session string, duration time.Duration)

	// RecordFloodWait records a server-imposed wait and its length.
	RecordFloodWait(session string, wait time.Duration)

	// RecordSpamBlock records a spam restriction on a session.
	RecordSpamBlock(session string)

	// RecordRetry records one retry attempt for a recipient send.
	RecordRetry(session string)

	// RecordRevocation records a deleted copy. reason is "event" when the
	// source message was deleted, "age" for the retention sweep.
	RecordRevocation(reason string)

	// RecordMembershipSync records one roster refresh and its size.
	RecordMembershipSync(channelID int64, members int)

	// SetQueueDepth reports the current depth of a session's work queue.
	SetQueueDepth(session string, depth int)

	// SetSessionsActive reports how many sessions are currently active.
	SetSessionsActive(count int)
}

// NewForwarderMetrics creates a new Prometheus-backed ForwarderMetrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should pass nil onwards, which results
// in zero overhead.
func NewForwarderMetrics() ForwarderMetrics {
	if !IsEnabled() || newPrometheusForwarderMetrics == nil {
		return nil
	}
	return newPrometheusForwarderMetrics()
}

// newPrometheusForwarderMetrics is implemented in pkg/metrics/prometheus.
// This indirection avoids import cycles while keeping the API clean.
var newPrometheusForwarderMetrics func() ForwarderMetrics

// RegisterForwarderMetricsConstructor registers the Prometheus constructor.
// Called by pkg/metrics/prometheus during package initialization.
func RegisterForwarderMetricsConstructor(constructor func() ForwarderMetrics) {
	newPrometheusForwarderMetrics = constructor
}

// RecordForward is a nil-safe helper for ForwarderMetrics.RecordForward.
func RecordForward(m ForwarderMetrics, session string, channelID int64, status string) {
	if m == nil {
		return
	}
	m.RecordForward(session, channelID, status)
}

// ObserveSend is a nil-safe helper for ForwarderMetrics.ObserveSendDuration.
func ObserveSend(m ForwarderMetrics, session string, start time.Time) {
	if m == nil {
		return
	}
	m.ObserveSendDuration(session, time.Since(start))
}
