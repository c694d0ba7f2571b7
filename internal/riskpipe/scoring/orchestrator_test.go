package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/dedup"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/detectors"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/ensemble"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/graph"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/temporal"
)

func newTestOrchestrator(dd *dedup.Deduper) *Orchestrator {
	cfg := config.Default()
	r := cfg.RiskPipe
	dets := []detectors.Detector{
		detectors.NewFlashLoan(r.Detectors.FlashLoan),
		detectors.NewMintBurn(r.Detectors.MintBurn),
		detectors.NewBridge(r.Detectors.Bridge),
	}
	return New(
		r.Scoring,
		temporal.NewEngine(r.Temporal.WindowSec),
		graph.NewEngine(r.Graph.WindowSec, r.Graph.CycleHops, r.Graph.MaxKHop),
		dets,
		ensemble.New(r.Ensemble, nil, nil),
		dd,
		nil,
	)
}

func TestScoreBatchEmpty(t *testing.T) {
	o := newTestOrchestrator(nil)
	_, err := o.ScoreBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestScoreTxResultShape(t *testing.T) {
	o := newTestOrchestrator(nil)

	tx := model.Tx{
		Hash: "0xabc", From: "0xaaa", To: "0xbbb",
		Value: 5, Gas: 21000, Timestamp: time.Now().Unix(),
	}
	res, err := o.ScoreTx(context.Background(), tx)
	require.NoError(t, err)

	assert.Equal(t, "0xabc", res.TxHash)
	assert.GreaterOrEqual(t, res.Score, 0.0)
	assert.LessOrEqual(t, res.Score, 1.0)
	assert.NotEmpty(t, res.TraceID)
	assert.Equal(t, "v0.1.0", res.Version)
	assert.GreaterOrEqual(t, res.LatencyMs, int64(0))
	require.NotNil(t, res.SubScores.Graph)
}

func TestDuplicateHashDoesNotDoubleCount(t *testing.T) {
	dd := dedup.New(3600, nil)
	o := newTestOrchestrator(dd)

	tx := model.Tx{
		Hash: "0xdup", From: "0xaaa", To: "0xbbb",
		Value: 5, Gas: 21000, Timestamp: time.Now().Unix(),
	}

	_, err := o.ScoreTx(context.Background(), tx)
	require.NoError(t, err)
	len1, _ := o.temporal.Stats()

	// same hash again: still scored, state untouched
	res, err := o.ScoreTx(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, "0xdup", res.TxHash)

	len2, _ := o.temporal.Stats()
	assert.Equal(t, len1, len2, "duplicate must not re-enter the windows")
}

func TestScoreBatchOrderAndCancellation(t *testing.T) {
	o := newTestOrchestrator(nil)
	now := time.Now().Unix()

	txs := []model.Tx{
		{Hash: "0x1", From: "0xa", To: "0xb", Value: 1, Timestamp: now},
		{Hash: "0x2", From: "0xb", To: "0xc", Value: 1, Timestamp: now},
	}

	results, err := o.ScoreBatch(context.Background(), txs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "0x1", results[0].TxHash)
	assert.Equal(t, "0x2", results[1].TxHash)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.ScoreBatch(cancelled, txs)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDegradedScoringStillReturns(t *testing.T) {
	// no model artifacts at all: neutral leg scores, request still succeeds
	o := newTestOrchestrator(nil)
	res, err := o.ScoreTx(context.Background(), model.Tx{
		Hash: "0x1", From: "0xa", To: "0xb", Value: 1, Timestamp: time.Now().Unix(),
	})
	require.NoError(t, err)
	assert.Contains(t, res.Reasons, ensemble.ReasonModelDegraded)
}

func TestShippedArtifactsNameRealFeatures(t *testing.T) {
	// every weight in the example artifacts must hit a feature the
	// pipeline actually emits; Vector.Get silently reads 0 otherwise
	r := config.Default().RiskPipe
	temp := temporal.NewEngine(r.Temporal.WindowSec)
	gr := graph.NewEngine(r.Graph.WindowSec, r.Graph.CycleHops, r.Graph.MaxKHop)

	tx := model.Tx{Hash: "0x1", From: "0xaaa", To: "0xbbb", Value: 5, Gas: 21000, Timestamp: time.Now().Unix()}
	temp.Add(tx)
	gr.Add(tx)

	vec := temp.TxFeatures(tx)
	vec.Merge("", gr.TxFeatures(tx))

	for _, path := range []string{"../../../models/anomaly.json", "../../../models/classifier.json"} {
		m, err := ensemble.LoadModel(path)
		require.NoError(t, err, path)
		for name := range m.Weights {
			_, ok := vec[name]
			assert.True(t, ok, "%s weights unknown feature %q", path, name)
		}
	}
}
