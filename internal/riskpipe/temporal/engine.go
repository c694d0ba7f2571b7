// Package temporal maintains sliding windows over the transaction stream
// and computes rolling aggregates from them: counts, rates, burstiness,
// recency. One global window, one per touched address.
package temporal

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/logging"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

type Engine struct {
	windowSec int64

	global *txWindow
	byAddr map[string]*txWindow

	now func() int64
	log zerolog.Logger
}

func NewEngine(windowSec int64) *Engine {
	if windowSec <= 0 {
		windowSec = 300
	}
	return &Engine{
		windowSec: windowSec,
		global:    newTxWindow(),
		byAddr:    make(map[string]*txWindow),
		now:       func() int64 { return time.Now().Unix() },
		log:       logging.For("temporal"),
	}
}

// Add appends tx to the global window and to both endpoints' windows,
// then purges entries that fell out of the horizon.
func (e *Engine) Add(tx model.Tx) {
	if tx.Timestamp == 0 {
		tx.Timestamp = e.now()
	}
	e.global.add(tx)
	for _, addr := range []string{tx.From, tx.To} {
		if addr == "" {
			continue
		}
		w, ok := e.byAddr[addr]
		if !ok {
			w = newTxWindow()
			e.byAddr[addr] = w
		}
		w.add(tx)
	}
	e.evict(e.now())
}

func (e *Engine) evict(nowTs int64) {
	cut := nowTs - e.windowSec
	e.global.evict(cut)
	dropped := 0
	for addr, w := range e.byAddr {
		w.evict(cut)
		if w.len() == 0 {
			delete(e.byAddr, addr)
			dropped++
		}
	}
	if dropped > 0 {
		e.log.Debug().Int("addresses", dropped).Msg("dropped idle address windows")
	}
}

// GlobalFeatures computes aggregates over the whole window. An empty
// window yields an explicit all-zero set.
func (e *Engine) GlobalFeatures() model.Vector {
	txs := e.global.items()
	f := model.Vector{
		"tx_count":         0,
		"avg_value":        0,
		"avg_gas":          0,
		"unique_addresses": 0,
		"tx_rate":          0,
		"value_rate":       0,
		"gas_rate":         0,
		"burstiness":       0,
	}
	if len(txs) == 0 {
		return f
	}

	var sumValue, sumGas float64
	addrs := make(map[string]struct{}, 2*len(txs))
	for _, tx := range txs {
		sumValue += tx.Value
		sumGas += float64(tx.Gas)
		if tx.From != "" {
			addrs[tx.From] = struct{}{}
		}
		if tx.To != "" {
			addrs[tx.To] = struct{}{}
		}
	}

	n := float64(len(txs))
	span := float64(e.windowSec)
	f["tx_count"] = n
	f["avg_value"] = sumValue / n
	f["avg_gas"] = sumGas / n
	f["unique_addresses"] = float64(len(addrs))
	f["tx_rate"] = n / span
	f["value_rate"] = sumValue / span
	f["gas_rate"] = sumGas / span
	f["burstiness"] = burstiness(txs)
	return f
}

// AddressFeatures computes the per-address aggregate family. Unknown
// addresses get the zero set with recency 1.0 (no recent activity).
func (e *Engine) AddressFeatures(address string) model.Vector {
	f := model.Vector{
		"addr_tx_count":   0,
		"addr_avg_value":  0,
		"addr_avg_gas":    0,
		"addr_tx_rate":    0,
		"addr_value_rate": 0,
		"addr_recency":    1,
		"addr_burstiness": 0,
	}
	w, ok := e.byAddr[address]
	if !ok {
		return f
	}
	txs := w.items()
	if len(txs) == 0 {
		return f
	}

	var sumValue, sumGas float64
	var lastTs int64
	for _, tx := range txs {
		sumValue += tx.Value
		sumGas += float64(tx.Gas)
		if tx.Timestamp > lastTs {
			lastTs = tx.Timestamp
		}
	}

	n := float64(len(txs))
	span := float64(e.windowSec)
	f["addr_tx_count"] = n
	f["addr_avg_value"] = sumValue / n
	f["addr_avg_gas"] = sumGas / n
	f["addr_tx_rate"] = n / span
	f["addr_value_rate"] = sumValue / span
	f["addr_recency"] = math.Min(1, float64(e.now()-lastTs)/span)
	f["addr_burstiness"] = burstiness(txs)
	return f
}

// TxFeatures assembles the full temporal slice for one transaction:
// global aggregates plus from_/to_ prefixed endpoint features.
func (e *Engine) TxFeatures(tx model.Tx) model.Vector {
	f := e.GlobalFeatures()
	if tx.From != "" {
		f.Merge("from_", e.AddressFeatures(tx.From))
	}
	if tx.To != "" {
		f.Merge("to_", e.AddressFeatures(tx.To))
	}
	return f
}

// Stats reports window occupancy for operational visibility.
func (e *Engine) Stats() (globalLen int, trackedAddrs int) {
	return e.global.len(), len(e.byAddr)
}

// burstiness is the coefficient of variation of inter-arrival gaps,
// scaled into [0,1]. Gaps are floored at 1s; fewer than 2 transactions
// score 0.
func burstiness(txs []model.Tx) float64 {
	if len(txs) < 2 {
		return 0
	}
	ts := make([]int64, len(txs))
	for i, tx := range txs {
		ts[i] = tx.Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })

	gaps := make([]float64, 0, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		dt := ts[i] - ts[i-1]
		if dt < 1 {
			dt = 1
		}
		gaps = append(gaps, float64(dt))
	}

	var sum float64
	for _, g := range gaps {
		sum += g
	}
	mean := sum / float64(len(gaps))
	if mean <= 0 {
		return 0
	}

	var sq float64
	for _, g := range gaps {
		d := g - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(gaps)))
	return math.Min(1, std/mean/2)
}
