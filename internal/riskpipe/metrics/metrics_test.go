package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MempoolMessage()
		m.SetMempoolUp(false)
		m.ConnectionError()
		m.BlockProcessed()
		m.RPCError()
		m.DroppedTx()
		m.SetBlockGap(3)
		m.SetQueueDepth(10)
		m.ObserveScore(0.5, time.Millisecond, true)
		m.DetectorTrigger("RP.FLASH.REPAY.K1")
	})
	assert.NoError(t, m.StopServer())
}

func TestMempoolUpGauge(t *testing.T) {
	m := New("test")

	m.SetMempoolUp(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mempoolUp))

	m.SetMempoolUp(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.mempoolUp))
}
