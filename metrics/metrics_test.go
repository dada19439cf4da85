package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variable-kang/0.9to0.10MirrorMaker/types"
)

func gatherValues(t *testing.T, m *Metrics) map[string]float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			var v float64
			switch {
			case metric.GetCounter() != nil:
				v = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				v = metric.GetGauge().GetValue()
			default:
				continue
			}
			values[mf.GetName()] += v
		}
	}
	return values
}

func TestMetrics_Collectors(t *testing.T) {
	m := New()
	m.IncConsumed("events")
	m.IncConsumed("events")
	m.IncConsumed("metrics")
	m.IncSent("events")
	m.IncDropped()
	m.IncSendRetry()
	m.IncCommit()
	m.IncCommitFailure()
	m.SetWorkerState("0", types.StatePolling)
	m.ObserveFlush(time.Now())

	values := gatherValues(t, m)
	assert.Equal(t, float64(3), values["mirrormaker_records_consumed_total"])
	assert.Equal(t, float64(1), values["mirrormaker_records_sent_total"])
	assert.Equal(t, float64(1), values["mirrormaker_dropped_messages_total"])
	assert.Equal(t, float64(1), values["mirrormaker_send_retries_total"])
	assert.Equal(t, float64(1), values["mirrormaker_offset_commits_total"])
	assert.Equal(t, float64(1), values["mirrormaker_offset_commit_failures_total"])
	assert.Equal(t, float64(types.StatePolling), values["mirrormaker_worker_state"])
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncConsumed("events")
		m.IncSent("events")
		m.IncDropped()
		m.IncSendRetry()
		m.IncCommit()
		m.IncCommitFailure()
		m.SetWorkerState("0", types.StateStopped)
		m.ObserveFlush(time.Now())
	})
	assert.Error(t, m.StartServer(0))
}

func TestMetrics_InitIsIdempotent(t *testing.T) {
	first := Init()
	second := Init()
	assert.Same(t, first, second)
}
