package detectors

import (
	"sort"
	"strings"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// Function selectors commonly seen on bridge entry points.
var bridgeSelectors = map[string]struct{}{
	"0x1114cd2a": {}, // bridgeERC20
	"0x838b2520": {}, // deposit
	"0x8340f549": {}, // withdraw
	"0xd0e30db0": {}, // deposit()
	"0x2e1a7d4d": {}, // withdraw(uint256)
}

const (
	approveSelector = "0x095ea7b3" // approve(address,uint256)
	wrapSelector    = "0xd0e30db0" // deposit()
)

// BridgeDetector classifies bridge-involved transactions via allow-list,
// name pattern, or function selector, then flags high values, rapid
// hops, multi-step sequences, and pre-bridge preparation.
type BridgeDetector struct {
	cfg config.BridgeConfig

	knownBridges map[string]struct{}

	history   txHistory
	byAddress map[string][]txEntry

	now func() int64
}

func NewBridge(cfg config.BridgeConfig) *BridgeDetector {
	known := make(map[string]struct{}, len(cfg.KnownBridges))
	for _, a := range cfg.KnownBridges {
		known[strings.ToLower(a)] = struct{}{}
	}
	return &BridgeDetector{
		cfg:          cfg,
		knownBridges: known,
		byAddress:    make(map[string][]txEntry),
		now:          nowUnix,
	}
}

func (d *BridgeDetector) Name() string { return "bridge" }

func (d *BridgeDetector) Add(tx model.Tx) {
	ts := tx.Timestamp
	if ts == 0 {
		ts = d.now()
	}
	d.history.add(ts, tx)
	for _, addr := range []string{tx.From, tx.To} {
		if addr != "" {
			d.byAddress[addr] = append(d.byAddress[addr], txEntry{ts: ts, tx: tx})
		}
	}
	d.evict()
}

func (d *BridgeDetector) evict() {
	cut := d.now() - d.cfg.WindowSec
	d.history.evict(cut)
	for addr, entries := range d.byAddress {
		i := 0
		for i < len(entries) && entries[i].ts < cut {
			i++
		}
		if i == len(entries) {
			delete(d.byAddress, addr)
		} else if i > 0 {
			d.byAddress[addr] = append(entries[:0:0], entries[i:]...)
		}
	}
}

func (d *BridgeDetector) Detect(tx model.Tx) []string {
	var reasons []string

	if tx.Value < d.cfg.MinValue {
		return reasons
	}
	ts := tx.Timestamp
	if ts == 0 {
		ts = d.now()
	}

	if d.isBridgeTx(tx) {
		if d.sequencePattern(tx.From, ts) {
			reasons = append(reasons, ReasonBridgeSeq)
		}
		if d.rapidHops(tx.From, ts) {
			reasons = append(reasons, ReasonBridgeHops)
		}
		if d.highValue(tx.Value, ts) {
			reasons = append(reasons, ReasonBridgeHighVal)
		}
	}
	if d.prepPattern(tx.From, ts) {
		reasons = append(reasons, ReasonBridgePrep)
	}
	return reasons
}

// isBridgeTx: allow-listed destination, a bridge-like name fragment in
// the destination identifier, or a known entry-point selector.
func (d *BridgeDetector) isBridgeTx(tx model.Tx) bool {
	to := strings.ToLower(tx.To)
	if _, ok := d.knownBridges[to]; ok {
		return true
	}
	for _, pat := range d.cfg.NamePatterns {
		if strings.Contains(to, pat) {
			return true
		}
	}
	if _, ok := bridgeSelectors[tx.Selector()]; ok {
		return true
	}
	return false
}

// sequencePattern: repeated bridge touches by one origin inside the
// window, or a prep -> bridge -> completion triple.
func (d *BridgeDetector) sequencePattern(from string, ts int64) bool {
	if from == "" {
		return false
	}
	entries := append([]txEntry(nil), d.byAddress[from]...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].ts < entries[j].ts })

	cut := ts - d.cfg.WindowSec
	bridgeSteps := 0
	for _, e := range entries {
		if e.ts >= cut && d.isBridgeTx(e.tx) {
			bridgeSteps++
		}
	}
	if bridgeSteps >= 2 {
		return true
	}
	return d.threeStepPattern(entries, ts)
}

// threeStepPattern: a bridge transaction with unrelated activity both
// before and after it in the recent window.
func (d *BridgeDetector) threeStepPattern(entries []txEntry, ts int64) bool {
	cut := ts - d.cfg.WindowSec
	recent := entries[:0:0]
	for _, e := range entries {
		if e.ts >= cut {
			recent = append(recent, e)
		}
	}
	if len(recent) < 3 {
		return false
	}
	for i, e := range recent {
		if d.isBridgeTx(e.tx) && i > 0 && i < len(recent)-1 {
			return true
		}
	}
	return false
}

// rapidHops: several bridge transactions by one origin in a short window.
func (d *BridgeDetector) rapidHops(from string, ts int64) bool {
	if from == "" {
		return false
	}
	cut := ts - d.cfg.HopWindowSec
	count := 0
	for _, e := range d.byAddress[from] {
		if e.ts >= cut && d.isBridgeTx(e.tx) {
			count++
		}
	}
	return count >= d.cfg.HopCount
}

// highValue: value at or above a dynamic threshold built from recent
// bridge traffic (mean + sigma*std), floored at a static minimum. With
// no recent bridge traffic the static threshold applies directly.
func (d *BridgeDetector) highValue(value float64, ts int64) bool {
	cut := ts - d.cfg.WindowSec
	var recent []float64
	for _, e := range d.history.items() {
		if e.ts >= cut && d.isBridgeTx(e.tx) {
			recent = append(recent, e.tx.Value)
		}
	}
	if len(recent) == 0 {
		return value > d.cfg.StaticHighValue
	}
	mean, std := meanStd(recent)
	threshold := mean + d.cfg.HighValueSigma*std
	if threshold < d.cfg.HighValueFloor {
		threshold = d.cfg.HighValueFloor
	}
	return value >= threshold
}

// prepPattern: approvals, wrapping, or unusually gas-heavy calls by the
// origin shortly before a bridge move.
func (d *BridgeDetector) prepPattern(from string, ts int64) bool {
	if from == "" {
		return false
	}
	cut := ts - d.cfg.PrepWindowSec
	indicators := 0
	for _, e := range d.byAddress[from] {
		if e.ts < cut {
			continue
		}
		switch e.tx.Selector() {
		case approveSelector, wrapSelector:
			indicators++
		}
		if e.tx.Gas > d.cfg.PrepGasLimit {
			indicators++
		}
	}
	return indicators >= d.cfg.PrepIndicators
}

func (d *BridgeDetector) Stats() map[string]float64 {
	bridgeCount := 0
	for _, e := range d.history.items() {
		if d.isBridgeTx(e.tx) {
			bridgeCount++
		}
	}
	return map[string]float64{
		"total_transactions":  float64(d.history.len()),
		"bridge_transactions": float64(bridgeCount),
		"tracked_addresses":   float64(len(d.byAddress)),
	}
}
