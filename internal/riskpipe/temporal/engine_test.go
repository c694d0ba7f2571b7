package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

func newTestEngine(windowSec int64, now *int64) *Engine {
	e := NewEngine(windowSec)
	e.now = func() int64 { return *now }
	return e
}

func tx(hash, from, to string, value float64, gas int64, ts int64) model.Tx {
	return model.Tx{Hash: hash, From: from, To: to, Value: value, Gas: gas, Timestamp: ts}
}

func TestWindowHorizon(t *testing.T) {
	now := int64(1000)
	e := newTestEngine(60, &now)

	e.Add(tx("0x1", "a", "b", 5, 21000, 950))
	e.Add(tx("0x2", "a", "c", 5, 21000, 990))

	f := e.GlobalFeatures()
	assert.Equal(t, 2.0, f.Get("tx_count"))

	// advance past the first entry's horizon
	now = 1020
	e.Add(tx("0x3", "b", "c", 5, 21000, 1020))

	f = e.GlobalFeatures()
	assert.Equal(t, 2.0, f.Get("tx_count"))
	for _, kept := range e.global.items() {
		assert.GreaterOrEqual(t, kept.Timestamp, now-60)
	}

	// address whose only entry expired gets dropped entirely
	_, tracked := e.Stats()
	assert.Equal(t, 3, tracked) // a, b, c; a still holds 0x2

	// once everything ages out only the fresh endpoints stay tracked
	now = 2000
	e.Add(tx("0x4", "d", "e", 5, 21000, 2000))
	_, tracked = e.Stats()
	assert.Equal(t, 2, tracked)
}

func TestUnknownAddressZeroFeatures(t *testing.T) {
	now := int64(1000)
	e := newTestEngine(60, &now)

	f := e.AddressFeatures("0xnobody")
	require.NotEmpty(t, f)
	assert.Equal(t, 0.0, f.Get("addr_tx_count"))
	assert.Equal(t, 0.0, f.Get("addr_burstiness"))
	assert.Equal(t, 1.0, f.Get("addr_recency"), "no activity reads as maximally stale")
}

func TestBurstinessBounds(t *testing.T) {
	// under 2 txs: exactly zero
	assert.Equal(t, 0.0, burstiness(nil))
	assert.Equal(t, 0.0, burstiness([]model.Tx{{Timestamp: 5}}))

	// identical timestamps: gaps floor to 1, CV = 0
	same := []model.Tx{{Timestamp: 7}, {Timestamp: 7}, {Timestamp: 7}}
	assert.Equal(t, 0.0, burstiness(same))

	// arbitrary sequences stay within [0,1]
	seqs := [][]int64{
		{1, 2, 3, 4, 5},
		{1, 1, 1, 100},
		{100, 1, 50, 1, 99},
		{0, 0, 1000000},
	}
	for _, ts := range seqs {
		txs := make([]model.Tx, len(ts))
		for i, v := range ts {
			txs[i].Timestamp = v
		}
		b := burstiness(txs)
		assert.GreaterOrEqual(t, b, 0.0)
		assert.LessOrEqual(t, b, 1.0)
	}
}

func TestAddressFeaturesAndRecency(t *testing.T) {
	now := int64(1000)
	e := newTestEngine(100, &now)

	e.Add(tx("0x1", "a", "b", 10, 21000, 940))
	e.Add(tx("0x2", "c", "a", 30, 42000, 950))

	f := e.AddressFeatures("a")
	assert.Equal(t, 2.0, f.Get("addr_tx_count"))
	assert.Equal(t, 20.0, f.Get("addr_avg_value"))
	assert.InDelta(t, 0.5, f.Get("addr_recency"), 1e-9) // (1000-950)/100

	full := e.TxFeatures(tx("0x3", "a", "b", 1, 21000, 1000))
	assert.Equal(t, 2.0, full.Get("from_addr_tx_count"))
	assert.Equal(t, 1.0, full.Get("to_addr_tx_count"))
	assert.Equal(t, 2.0, full.Get("tx_count"))
}
