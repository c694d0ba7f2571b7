package detectors

import (
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// FlashLoanDetector flags borrow-and-repay patterns: same-block burst
// activity, value spikes against an address baseline, near-exact reverse
// flows, and repeated high-value sends from one origin.
type FlashLoanDetector struct {
	cfg config.FlashLoanConfig

	history txHistory
	volumes map[string][]volEntry // address -> (ts, value), window-bounded

	now func() int64
}

type volEntry struct {
	ts    int64
	value float64
}

func NewFlashLoan(cfg config.FlashLoanConfig) *FlashLoanDetector {
	return &FlashLoanDetector{
		cfg:     cfg,
		volumes: make(map[string][]volEntry),
		now:     nowUnix,
	}
}

func (d *FlashLoanDetector) Name() string { return "flash_loan" }

func (d *FlashLoanDetector) Add(tx model.Tx) {
	ts := tx.Timestamp
	if ts == 0 {
		ts = d.now()
	}
	d.history.add(ts, tx)

	if tx.Value > 0 {
		for _, addr := range []string{tx.From, tx.To} {
			if addr != "" {
				d.volumes[addr] = append(d.volumes[addr], volEntry{ts: ts, value: tx.Value})
			}
		}
	}
	d.evict()
}

func (d *FlashLoanDetector) evict() {
	cut := d.now() - d.cfg.WindowSec
	d.history.evict(cut)
	for addr, vols := range d.volumes {
		i := 0
		for i < len(vols) && vols[i].ts < cut {
			i++
		}
		if i == len(vols) {
			delete(d.volumes, addr)
		} else if i > 0 {
			d.volumes[addr] = append(vols[:0:0], vols[i:]...)
		}
	}
}

func (d *FlashLoanDetector) Detect(tx model.Tx) []string {
	var reasons []string

	// low-value traffic is not worth the scan
	if tx.Value < d.cfg.MinValueThreshold {
		return reasons
	}
	ts := tx.Timestamp
	if ts == 0 {
		ts = d.now()
	}

	if d.blockBurst(tx) {
		reasons = append(reasons, ReasonFlashChainBurst)
	}
	if d.volumeSpike(tx, ts) {
		reasons = append(reasons, ReasonFlashVolSpike)
	}
	if d.repayPattern(tx, ts) {
		reasons = append(reasons, ReasonFlashRepay)
	}
	if d.sameOriginBurst(tx.From, ts) {
		reasons = append(reasons, ReasonFlashSameOrigin)
	}
	return reasons
}

// blockBurst: >= N inbound and >= N outbound transactions touching either
// endpoint within the same block.
func (d *FlashLoanDetector) blockBurst(tx model.Tx) bool {
	if tx.BlockNum == 0 {
		return false
	}
	var in, out int
	for _, e := range d.history.items() {
		if e.tx.BlockNum != tx.BlockNum {
			continue
		}
		if e.tx.To == tx.From || e.tx.To == tx.To {
			in++
		}
		if e.tx.From == tx.From || e.tx.From == tx.To {
			out++
		}
	}
	return in >= d.cfg.BlockBurstCount && out >= d.cfg.BlockBurstCount
}

// volumeSpike: value far above either endpoint's pre-window baseline mean.
func (d *FlashLoanDetector) volumeSpike(tx model.Tx, ts int64) bool {
	for _, addr := range []string{tx.From, tx.To} {
		vols, ok := d.volumes[addr]
		if !ok || len(vols) < 3 {
			continue
		}
		baselineCut := ts - d.cfg.WindowSec/2
		var sum float64
		var n int
		for _, v := range vols {
			if v.ts < baselineCut {
				sum += v.value
				n++
			}
		}
		if n == 0 {
			continue
		}
		if tx.Value > d.cfg.BurstThreshold*(sum/float64(n)) {
			return true
		}
	}
	return false
}

// repayPattern: a recent transaction in the opposite direction with a
// value within tolerance.
func (d *FlashLoanDetector) repayPattern(tx model.Tx, ts int64) bool {
	denom := tx.Value
	if denom < 1 {
		denom = 1
	}
	for _, e := range d.history.items() {
		if abs64(e.ts-ts) > d.cfg.RepayWindowSec {
			continue
		}
		if e.tx.From == tx.To && e.tx.To == tx.From {
			diff := e.tx.Value - tx.Value
			if diff < 0 {
				diff = -diff
			}
			if diff/denom < d.cfg.RepayTolerance {
				return true
			}
		}
	}
	return false
}

// sameOriginBurst: repeated high-value sends from one origin in a short
// trailing window.
func (d *FlashLoanDetector) sameOriginBurst(from string, ts int64) bool {
	if from == "" {
		return false
	}
	cut := ts - d.cfg.OriginBurstSec
	count := 0
	for _, e := range d.history.items() {
		if e.ts < cut {
			continue
		}
		if e.tx.From == from && e.tx.Value >= d.cfg.MinValueThreshold {
			count++
		}
	}
	return count >= d.cfg.OriginBurstCount
}

func (d *FlashLoanDetector) Stats() map[string]float64 {
	return map[string]float64{
		"transaction_count": float64(d.history.len()),
		"tracked_addresses": float64(len(d.volumes)),
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
