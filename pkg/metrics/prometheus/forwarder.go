// Package prometheus provides the Prometheus implementation of the
// metrics interfaces. Importing it (usually blank, from main) registers
// the constructors with pkg/metrics.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tgmirror/tgmirror/pkg/metrics"
)

func init() {
	metrics.RegisterForwarderMetricsConstructor(NewForwarderMetrics)
}

// forwarderMetrics is the Prometheus implementation of metrics.ForwarderMetrics.
type forwarderMetrics struct {
	forwards        *prometheus.CounterVec
	sendDuration    *prometheus.HistogramVec
	floodWaits      *prometheus.CounterVec
	floodWaitLength *prometheus.HistogramVec
	spamBlocks      *prometheus.CounterVec
	retries         *prometheus.CounterVec
	revocations     *prometheus.CounterVec
	membershipSyncs *prometheus.CounterVec
	rosterSize      *prometheus.GaugeVec
	queueDepth      *prometheus.GaugeVec
	sessionsActive  prometheus.Gauge
}

// NewForwarderMetrics creates a new Prometheus-backed ForwarderMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewForwarderMetrics() metrics.ForwarderMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &forwarderMetrics{
		forwards: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgmirror_forwards_total",
				Help: "Total number of per-recipient forward outcomes by status",
			},
			[]string{"session", "channel", "status"}, // status: sent, failed, skipped
		),
		sendDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tgmirror_send_duration_seconds",
				Help: "Latency of individual transport sends",
				Buckets: []float64{
					0.05, // fast path
					0.1,
					0.25,
					0.5,
					1,
					2.5,
					5,
					10, // governor-throttled sends
				},
			},
			[]string{"session"},
		),
		floodWaits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgmirror_flood_waits_total",
				Help: "Total number of FLOOD_WAIT responses by session",
			},
			[]string{"session"},
		),
		floodWaitLength: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tgmirror_flood_wait_seconds",
				Help:    "Length of server-imposed waits",
				Buckets: []float64{5, 15, 30, 60, 300, 900, 3600},
			},
			[]string{"session"},
		),
		spamBlocks: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgmirror_spam_blocks_total",
				Help: "Total number of spam restrictions by session",
			},
			[]string{"session"},
		),
		retries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgmirror_send_retries_total",
				Help: "Total number of per-recipient send retries",
			},
			[]string{"session"},
		),
		revocations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgmirror_revocations_total",
				Help: "Total number of revoked copies by reason",
			},
			[]string{"reason"}, // "event", "age"
		),
		membershipSyncs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgmirror_membership_syncs_total",
				Help: "Total number of roster refreshes by channel",
			},
			[]string{"channel"},
		),
		rosterSize: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tgmirror_roster_size",
				Help: "Current member count per monitored channel",
			},
			[]string{"channel"},
		),
		queueDepth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tgmirror_queue_depth",
				Help: "Current depth of each session's serial work queue",
			},
			[]string{"session"},
		),
		sessionsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tgmirror_sessions_active",
				Help: "Number of sessions currently connected and forwarding",
			},
		),
	}
}

func (m *forwarderMetrics) RecordForward(session string, channelID int64, status string) {
	m.forwards.WithLabelValues(session, formatChannel(channelID), status).Inc()
}

func (m *forwarderMetrics) ObserveSendDuration(session string, duration time.Duration) {
	m.sendDuration.WithLabelValues(session).Observe(duration.Seconds())
}

func (m *forwarderMetrics) RecordFloodWait(session string, wait time.Duration) {
	m.floodWaits.WithLabelValues(session).Inc()
	m.floodWaitLength.WithLabelValues(session).Observe(wait.Seconds())
}

func (m *forwarderMetrics) RecordSpamBlock(session string) {
	m.spamBlocks.WithLabelValues(session).Inc()
}

func (m *forwarderMetrics) RecordRetry(session string) {
	m.retries.WithLabelValues(session).Inc()
}

func (m *forwarderMetrics) RecordRevocation(reason string) {
	m.revocations.WithLabelValues(reason).Inc()
}

func (m *forwarderMetrics) RecordMembershipSync(channelID int64, members int) {
	ch := formatChannel(channelID)
	m.membershipSyncs.WithLabelValues(ch).Inc()
	m.rosterSize.WithLabelValues(ch).Set(float64(members))
}

func (m *forwarderMetrics) SetQueueDepth(session string, depth int) {
	m.queueDepth.WithLabelValues(session).Set(float64(depth))
}

func (m *forwarderMetrics) SetSessionsActive(count int) {
	m.sessionsActive.Set(float64(count))
}

func formatChannel(id int64) string {
	return strconv.FormatInt(id, 10)
}
