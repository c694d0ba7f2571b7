package detectors

import (
	"math/big"
	"strings"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// MintBurnDetector watches token supply movement. A transfer from the
// zero address is a mint, to the zero address a burn; both are also
// extracted from decoded ERC-20 Transfer logs. It flags statistical
// volume spikes, extreme mint:burn ratios, and coordinated activity
// across tokens.
type MintBurnDetector struct {
	cfg config.MintBurnConfig

	mints map[string][]volEntry // token -> (ts, amount)
	burns map[string][]volEntry

	events int64 // lifetime extraction count

	now func() int64
}

func NewMintBurn(cfg config.MintBurnConfig) *MintBurnDetector {
	return &MintBurnDetector{
		cfg:   cfg,
		mints: make(map[string][]volEntry),
		burns: make(map[string][]volEntry),
		now:   nowUnix,
	}
}

func (d *MintBurnDetector) Name() string { return "mint_burn" }

func (d *MintBurnDetector) Add(tx model.Tx) {
	ts := tx.Timestamp
	if ts == 0 {
		ts = d.now()
	}

	from := strings.ToLower(tx.From)
	to := strings.ToLower(tx.To)

	// plain value transfer against the zero address
	if from == ZeroAddress && tx.Value > 0 {
		d.record(d.mints, to, ts, tx.Value)
	}
	if to == ZeroAddress && tx.Value > 0 {
		d.record(d.burns, from, ts, tx.Value)
	}

	for _, lg := range tx.Logs {
		d.extractTransferLog(lg, ts)
	}

	d.evict()
}

func (d *MintBurnDetector) record(m map[string][]volEntry, token string, ts int64, amount float64) {
	m[token] = append(m[token], volEntry{ts: ts, value: amount})
	d.events++
}

// extractTransferLog decodes an ERC-20 Transfer event and classifies
// zero-address endpoints as mint/burn for the emitting token.
func (d *MintBurnDetector) extractTransferLog(lg model.LogEntry, ts int64) {
	if len(lg.Topics) < 3 || strings.ToLower(lg.Topics[0]) != transferTopic {
		return
	}
	from := topicAddress(lg.Topics[1])
	to := topicAddress(lg.Topics[2])
	amount := decodeAmount(lg.Data)
	if amount <= 0 {
		return
	}
	token := strings.ToLower(lg.Address)

	if from == ZeroAddress {
		d.record(d.mints, token, ts, amount)
	}
	if to == ZeroAddress {
		d.record(d.burns, token, ts, amount)
	}
}

func (d *MintBurnDetector) evict() {
	cut := d.now() - d.cfg.WindowSec
	for _, m := range []map[string][]volEntry{d.mints, d.burns} {
		for token, events := range m {
			i := 0
			for i < len(events) && events[i].ts < cut {
				i++
			}
			if i == len(events) {
				delete(m, token)
			} else if i > 0 {
				m[token] = append(events[:0:0], events[i:]...)
			}
		}
	}
}

func (d *MintBurnDetector) Detect(tx model.Tx) []string {
	var reasons []string

	tokens := make(map[string]struct{})
	if tx.To != "" {
		tokens[strings.ToLower(tx.To)] = struct{}{}
	}
	if tx.From != "" {
		tokens[strings.ToLower(tx.From)] = struct{}{}
	}
	for _, lg := range tx.Logs {
		if lg.Address != "" {
			tokens[strings.ToLower(lg.Address)] = struct{}{}
		}
	}

	for token := range tokens {
		if d.spike(d.mints[token]) {
			reasons = append(reasons, ReasonMintSpike)
		}
		if d.spike(d.burns[token]) {
			reasons = append(reasons, ReasonBurnSpike)
		}
		if d.ratioAnomaly(token) {
			reasons = append(reasons, ReasonMintRatio)
		}
	}

	if d.coordinated() {
		reasons = append(reasons, ReasonMintCoordinated)
	}
	return reasons
}

// spike compares the trailing recent volume against the per-event
// baseline distribution: z-score above the configured sigma fires.
func (d *MintBurnDetector) spike(events []volEntry) bool {
	if len(events) < d.cfg.MinBaselineSamples {
		return false
	}
	recentCut := d.now() - d.cfg.RecentSec

	var recent float64
	var baseline []float64
	for _, e := range events {
		if e.ts >= recentCut {
			recent += e.value
		} else {
			baseline = append(baseline, e.value)
		}
	}
	if len(baseline) == 0 {
		return false
	}
	mean, std := meanStd(baseline)
	if std == 0 {
		return recent > 0
	}
	return (recent-mean)/std > d.cfg.SpikeSigma
}

// ratioAnomaly: recent mint vs burn volume wildly one-sided.
func (d *MintBurnDetector) ratioAnomaly(token string) bool {
	recentCut := d.now() - d.cfg.RecentSec

	sumRecent := func(events []volEntry) float64 {
		var s float64
		for _, e := range events {
			if e.ts >= recentCut {
				s += e.value
			}
		}
		return s
	}

	mints := sumRecent(d.mints[token])
	burns := sumRecent(d.burns[token])

	switch {
	case mints > 0 && burns == 0:
		return mints > d.cfg.OneSidedVolume
	case burns > 0 && mints == 0:
		return burns > d.cfg.OneSidedVolume
	case mints > 0 && burns > 0:
		ratio := mints / burns
		return ratio > d.cfg.RatioHigh || ratio < d.cfg.RatioLow
	}
	return false
}

// coordinated: several distinct tokens with significant supply movement
// in the recent window.
func (d *MintBurnDetector) coordinated() bool {
	recentCut := d.now() - d.cfg.RecentSec
	active := make(map[string]struct{})

	for _, m := range []map[string][]volEntry{d.mints, d.burns} {
		for token, events := range m {
			for _, e := range events {
				if e.ts >= recentCut && e.value > d.cfg.CoordMinAmount {
					active[token] = struct{}{}
					break
				}
			}
		}
	}
	return len(active) >= d.cfg.CoordTokens
}

func (d *MintBurnDetector) Stats() map[string]float64 {
	return map[string]float64{
		"tracked_tokens_mint": float64(len(d.mints)),
		"tracked_tokens_burn": float64(len(d.burns)),
		"extracted_events":    float64(d.events),
	}
}

func topicAddress(topic string) string {
	t := strings.ToLower(strings.TrimPrefix(topic, "0x"))
	if len(t) < 40 {
		return ""
	}
	return "0x" + t[len(t)-40:]
}

// decodeAmount reads the first 32-byte word of log data as a token
// amount, assuming 18 decimals.
func decodeAmount(data string) float64 {
	s := strings.TrimPrefix(data, "0x")
	if len(s) < 64 {
		return 0
	}
	n, ok := new(big.Int).SetString(s[:64], 16)
	if !ok {
		return 0
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f / 1e18
}
