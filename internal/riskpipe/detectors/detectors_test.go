package detectors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

func defaults() config.DetectorsConfig {
	cfg := config.Default()
	return cfg.RiskPipe.Detectors
}

func TestFlashLoanRoundTrip(t *testing.T) {
	now := int64(10000)
	d := NewFlashLoan(defaults().FlashLoan)
	d.now = func() int64 { return now }

	loan := model.Tx{
		Hash: "0x1", From: "0xaaa", To: "0xbbb",
		Value: 500, Timestamp: 10000, BlockNum: 77,
	}
	repay := model.Tx{
		Hash: "0x2", From: "0xbbb", To: "0xaaa",
		Value: 510, Timestamp: 10030, BlockNum: 77,
	}

	d.Add(loan)
	d.Add(repay)

	codes := d.Detect(repay)
	found := false
	for _, c := range codes {
		if c == ReasonFlashRepay || c == ReasonFlashChainBurst {
			found = true
		}
	}
	assert.True(t, found, "round trip must produce a repay or chain-burst code, got %v", codes)
}

func TestFlashLoanIgnoresLowValue(t *testing.T) {
	d := NewFlashLoan(defaults().FlashLoan)
	tx := model.Tx{Hash: "0x1", From: "0xaaa", To: "0xbbb", Value: 1, Timestamp: 10000}
	d.Add(tx)
	assert.Empty(t, d.Detect(tx))
}

func TestFlashLoanSameOriginBurst(t *testing.T) {
	now := int64(10000)
	d := NewFlashLoan(defaults().FlashLoan)
	d.now = func() int64 { return now }

	for i := 0; i < 3; i++ {
		d.Add(model.Tx{
			Hash: fmt.Sprintf("0x%d", i), From: "0xaaa", To: fmt.Sprintf("0xb%d", i),
			Value: 150, Timestamp: 9990 + int64(i),
		})
	}
	probe := model.Tx{Hash: "0xp", From: "0xaaa", To: "0xccc", Value: 150, Timestamp: 9995}
	assert.Contains(t, d.Detect(probe), ReasonFlashSameOrigin)
}

func TestFlashLoanVolumeSpike(t *testing.T) {
	now := int64(10000)
	d := NewFlashLoan(defaults().FlashLoan)
	d.now = func() int64 { return now }

	// baseline sends of 200 units, all older than half the window so
	// they land in the pre-window baseline
	for i := 0; i < 3; i++ {
		d.Add(model.Tx{
			Hash: fmt.Sprintf("0x%d", i), From: "0xaaa", To: fmt.Sprintf("0xb%d", i),
			Value: 200, Timestamp: 9450 + int64(i)*50,
		})
	}

	spike := model.Tx{Hash: "0xbig", From: "0xaaa", To: "0xccc", Value: 2000, Timestamp: 9990}
	d.Add(spike)
	assert.Contains(t, d.Detect(spike), ReasonFlashVolSpike)

	modest := model.Tx{Hash: "0xok", From: "0xaaa", To: "0xccc", Value: 300, Timestamp: 9991}
	d.Add(modest)
	assert.NotContains(t, d.Detect(modest), ReasonFlashVolSpike)
}

func TestMintSpike(t *testing.T) {
	now := int64(10000)
	d := NewMintBurn(defaults().MintBurn)
	d.now = func() int64 { return now }

	token := "0xtoken1"

	// 10 baseline mints of ~10 units spread over 10 minutes, all older
	// than the recent cutoff
	for i := 0; i < 10; i++ {
		d.Add(model.Tx{
			Hash: fmt.Sprintf("0xm%d", i), From: ZeroAddress, To: token,
			Value: 10 + float64(i%3), Timestamp: 9420 + int64(i)*25,
		})
	}

	spike := model.Tx{Hash: "0xbig", From: ZeroAddress, To: token, Value: 5000, Timestamp: 9990}
	d.Add(spike)

	assert.Contains(t, d.Detect(spike), ReasonMintSpike)
}

func TestBurnSpike(t *testing.T) {
	now := int64(10000)
	d := NewMintBurn(defaults().MintBurn)
	d.now = func() int64 { return now }

	holder := "0xholder"
	for i := 0; i < 10; i++ {
		d.Add(model.Tx{
			Hash: fmt.Sprintf("0xb%d", i), From: holder, To: ZeroAddress,
			Value: 10 + float64(i%3), Timestamp: 9420 + int64(i)*25,
		})
	}

	spike := model.Tx{Hash: "0xbig", From: holder, To: ZeroAddress, Value: 5000, Timestamp: 9990}
	d.Add(spike)

	assert.Contains(t, d.Detect(spike), ReasonBurnSpike)
}

func TestMintFromTransferLog(t *testing.T) {
	now := int64(10000)
	d := NewMintBurn(defaults().MintBurn)
	d.now = func() int64 { return now }

	// 1000 tokens with 18 decimals
	amount := "0x00000000000000000000000000000000000000000000003635c9adc5dea00000"
	tx := model.Tx{
		Hash: "0x1", From: "0xcaller", To: "0xtokenc", Timestamp: 9990,
		Logs: []model.LogEntry{{
			Address: "0xtokenc",
			Topics: []string{
				transferTopic,
				"0x0000000000000000000000000000000000000000000000000000000000000000",
				"0x000000000000000000000000aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			},
			Data: amount,
		}},
	}
	d.Add(tx)

	stats := d.Stats()
	assert.Equal(t, 1.0, stats["tracked_tokens_mint"])
}

func TestMintBurnRatio(t *testing.T) {
	t.Run("lopsided minting fires", func(t *testing.T) {
		now := int64(10000)
		d := NewMintBurn(defaults().MintBurn)
		d.now = func() int64 { return now }

		mint := model.Tx{Hash: "0xm", From: ZeroAddress, To: "0xtok", Value: 1100, Timestamp: 9900}
		burn := model.Tx{Hash: "0xb", From: "0xtok", To: ZeroAddress, Value: 100, Timestamp: 9910}
		d.Add(mint)
		d.Add(burn)

		// 11 units minted per unit burned
		assert.Contains(t, d.Detect(burn), ReasonMintRatio)
	})

	t.Run("balanced flow stays quiet", func(t *testing.T) {
		now := int64(10000)
		d := NewMintBurn(defaults().MintBurn)
		d.now = func() int64 { return now }

		mint := model.Tx{Hash: "0xm", From: ZeroAddress, To: "0xtok", Value: 500, Timestamp: 9900}
		burn := model.Tx{Hash: "0xb", From: "0xtok", To: ZeroAddress, Value: 400, Timestamp: 9910}
		d.Add(mint)
		d.Add(burn)

		assert.NotContains(t, d.Detect(burn), ReasonMintRatio)
	})
}

func TestMintBurnCoordinated(t *testing.T) {
	now := int64(10000)
	d := NewMintBurn(defaults().MintBurn)
	d.now = func() int64 { return now }

	var last model.Tx
	for i := 0; i < 3; i++ {
		last = model.Tx{
			Hash: fmt.Sprintf("0xm%d", i), From: ZeroAddress, To: fmt.Sprintf("0xt%d", i),
			Value: 150, Timestamp: 9900 + int64(i),
		}
		d.Add(last)
	}
	assert.Contains(t, d.Detect(last), ReasonMintCoordinated)
}

func TestBridgeHighValue(t *testing.T) {
	cfg := defaults().Bridge
	cfg.KnownBridges = []string{"0xbridge01"}

	t.Run("static threshold with no history", func(t *testing.T) {
		now := int64(10000)
		d := NewBridge(cfg)
		d.now = func() int64 { return now }

		tx := model.Tx{
			Hash: "0x1", From: "0xuser", To: "0xbridge01",
			Value: 200, Input: "0x838b2520" + "00", Timestamp: 9990,
		}
		assert.Contains(t, d.Detect(tx), ReasonBridgeHighVal)
	})

	t.Run("dynamic threshold over small baseline", func(t *testing.T) {
		now := int64(10000)
		d := NewBridge(cfg)
		d.now = func() int64 { return now }

		base := []float64{8, 9, 10, 10, 11, 12, 10, 9, 11, 10}
		for i, v := range base {
			d.Add(model.Tx{
				Hash: fmt.Sprintf("0x%d", i), From: "0xuser", To: "0xbridge01",
				Value: v, Timestamp: 9500 + int64(i)*10,
			})
		}

		big := model.Tx{Hash: "0xbig", From: "0xuser", To: "0xbridge01", Value: 50, Timestamp: 9990}
		d.Add(big)
		assert.Contains(t, d.Detect(big), ReasonBridgeHighVal)

		small := model.Tx{Hash: "0xsmall", From: "0xuser", To: "0xbridge01", Value: 12, Timestamp: 9991}
		d.Add(small)
		assert.NotContains(t, d.Detect(small), ReasonBridgeHighVal)
	})
}

func TestBridgeRapidHops(t *testing.T) {
	cfg := defaults().Bridge
	cfg.KnownBridges = []string{"0xbridge01"}

	now := int64(10000)
	d := NewBridge(cfg)
	d.now = func() int64 { return now }

	for i := 0; i < 3; i++ {
		d.Add(model.Tx{
			Hash: fmt.Sprintf("0x%d", i), From: "0xuser", To: "0xbridge01",
			Value: 5, Timestamp: 9900 + int64(i)*20,
		})
	}
	probe := model.Tx{Hash: "0xp", From: "0xuser", To: "0xbridge01", Value: 5, Timestamp: 9950}
	assert.Contains(t, d.Detect(probe), ReasonBridgeHops)
}

func TestBridgeSequence(t *testing.T) {
	cfg := defaults().Bridge
	cfg.KnownBridges = []string{"0xbridge01"}

	t.Run("repeated bridge touches by one origin", func(t *testing.T) {
		now := int64(10000)
		d := NewBridge(cfg)
		d.now = func() int64 { return now }

		first := model.Tx{Hash: "0x1", From: "0xuser", To: "0xbridge01", Value: 5, Timestamp: 9900}
		second := model.Tx{Hash: "0x2", From: "0xuser", To: "0xbridge01", Value: 5, Timestamp: 9960}
		d.Add(first)
		d.Add(second)

		assert.Contains(t, d.Detect(second), ReasonBridgeSeq)
	})

	t.Run("lock relay release triple", func(t *testing.T) {
		now := int64(10000)
		d := NewBridge(cfg)
		d.now = func() int64 { return now }

		lock := model.Tx{
			Hash: "0x1", From: "0xuser", To: "0xtoken",
			Value: 2, Input: approveSelector + "00", Timestamp: 9900,
		}
		relay := model.Tx{Hash: "0x2", From: "0xuser", To: "0xbridge01", Value: 5, Timestamp: 9920}
		release := model.Tx{Hash: "0x3", From: "0xuser", To: "0xdest", Value: 5, Timestamp: 9940}
		d.Add(lock)
		d.Add(relay)
		d.Add(release)

		assert.Contains(t, d.Detect(relay), ReasonBridgeSeq)
	})
}

func TestBridgePrepIndicators(t *testing.T) {
	cfg := defaults().Bridge

	now := int64(10000)
	d := NewBridge(cfg)
	d.now = func() int64 { return now }

	d.Add(model.Tx{
		Hash: "0x1", From: "0xuser", To: "0xtoken",
		Value: 1, Input: approveSelector + "00", Timestamp: 9900,
	})
	d.Add(model.Tx{
		Hash: "0x2", From: "0xuser", To: "0xweth",
		Value: 1, Input: wrapSelector, Timestamp: 9920,
	})

	probe := model.Tx{Hash: "0xp", From: "0xuser", To: "0xanywhere", Value: 5, Timestamp: 9950}
	assert.Contains(t, d.Detect(probe), ReasonBridgePrep)
}

func TestDetectorsToleratesMissingFields(t *testing.T) {
	cfgs := defaults()
	ds := []Detector{
		NewFlashLoan(cfgs.FlashLoan),
		NewMintBurn(cfgs.MintBurn),
		NewBridge(cfgs.Bridge),
	}
	empty := model.Tx{Hash: "0xonly"}
	for _, d := range ds {
		d.Add(empty)
		assert.NotPanics(t, func() { d.Detect(empty) }, d.Name())
	}
}
