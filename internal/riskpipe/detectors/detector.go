// Package detectors holds the domain heuristics: flash-loan activity,
// mint/burn anomalies, and bridge transfer sequences. Each detector owns
// a bounded time-windowed history and never fails a scoring request; a
// detector with nothing to say returns no reason codes.
package detectors

import (
	"math"
	"time"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// Reason codes. The K suffix is the heuristic revision.
const (
	ReasonFlashChainBurst = "RP.FLASH.CHAINBURST.K1"
	ReasonFlashVolSpike   = "RP.FLASH.VOLSPIKE.K1"
	ReasonFlashRepay      = "RP.FLASH.REPAY.K1"
	ReasonFlashSameOrigin = "RP.FLASH.SAMEORIGIN.K1"

	ReasonMintSpike       = "RP.MINT.SPIKE.K1"
	ReasonBurnSpike       = "RP.BURN.SPIKE.K1"
	ReasonMintRatio       = "RP.MINT.RATIO.K1"
	ReasonMintCoordinated = "RP.MINT.COORDINATED.K1"

	ReasonBridgeSeq     = "RP.BRIDGE.SEQ.K2"
	ReasonBridgeHops    = "RP.BRIDGE.HOPS.K1"
	ReasonBridgeHighVal = "RP.BRIDGE.HIGHVAL.K1"
	ReasonBridgePrep    = "RP.BRIDGE.PREP.K1"
)

// Detector is the contract every heuristic implements. Add feeds the
// detector's private history; Detect evaluates one transaction against
// it. Detect must tolerate missing optional fields.
type Detector interface {
	Name() string
	Add(tx model.Tx)
	Detect(tx model.Tx) []string
	Stats() map[string]float64
}

// ZeroAddress is the canonical mint/burn counterparty.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// ERC-20 Transfer(address,address,uint256) topic.
const transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

func nowUnix() int64 { return time.Now().Unix() }

func meanStd(vals []float64) (mean, std float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean = sum / float64(len(vals))
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	std = math.Sqrt(sq / float64(len(vals)))
	return mean, std
}

// txEntry is the (timestamp, tx) pair detectors keep in their histories.
type txEntry struct {
	ts int64
	tx model.Tx
}

// txHistory is an arrival-ordered queue with head-index eviction.
type txHistory struct {
	q    []txEntry
	head int
}

func (h *txHistory) add(ts int64, tx model.Tx) {
	h.q = append(h.q, txEntry{ts: ts, tx: tx})
}

func (h *txHistory) evict(cut int64) {
	for h.head < len(h.q) {
		if h.q[h.head].ts >= cut {
			break
		}
		h.head++
	}
	if h.head > 4096 && h.head*2 > len(h.q) {
		newQ := make([]txEntry, 0, len(h.q)-h.head)
		newQ = append(newQ, h.q[h.head:]...)
		h.q = newQ
		h.head = 0
	}
}

func (h *txHistory) items() []txEntry {
	return h.q[h.head:]
}

func (h *txHistory) len() int {
	return len(h.q) - h.head
}
