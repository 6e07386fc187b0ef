package prometheus

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgmirror/tgmirror/pkg/metrics"
)

func gather(t *testing.T) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := metrics.GetRegistry().Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}
	return byName
}

func TestNewForwarderMetricsDisabled(t *testing.T) {
	metrics.ResetRegistry()
	assert.Nil(t, NewForwarderMetrics())
}

func TestForwarderMetricsRecording(t *testing.T) {
	metrics.ResetRegistry()
	metrics.InitRegistry()
	defer metrics.ResetRegistry()

	m := NewForwarderMetrics()
	require.NotNil(t, m)

	m.RecordForward("+15550001111", 100200300, "sent")
	m.RecordForward("+15550001111", 100200300, "sent")
	m.RecordForward("+15550001111", 100200300, "failed")
	m.ObserveSendDuration("+15550001111", 120*time.Millisecond)
	m.RecordFloodWait("+15550001111", 30*time.Second)
	m.RecordRevocation("age")
	m.RecordMembershipSync(100200300, 42)
	m.SetQueueDepth("+15550001111", 7)
	m.SetSessionsActive(3)

	byName := gather(t)

	forwards := byName["tgmirror_forwards_total"]
	require.NotNil(t, forwards)
	var sent, failed float64
	for _, metric := range forwards.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "status" {
				switch label.GetValue() {
				case "sent":
					sent = metric.GetCounter().GetValue()
				case "failed":
					failed = metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, 2.0, sent)
	assert.Equal(t, 1.0, failed)

	roster := byName["tgmirror_roster_size"]
	require.NotNil(t, roster)
	assert.Equal(t, 42.0, roster.GetMetric()[0].GetGauge().GetValue())

	active := byName["tgmirror_sessions_active"]
	require.NotNil(t, active)
	assert.Equal(t, 3.0, active.GetMetric()[0].GetGauge().GetValue())
}

func TestConstructorRegistered(t *testing.T) {
	metrics.ResetRegistry()
	metrics.InitRegistry()
	defer metrics.ResetRegistry()

	// The package init must have wired the constructor indirection.
	m := metrics.NewForwarderMetrics()
	assert.NotNil(t, m)
}
