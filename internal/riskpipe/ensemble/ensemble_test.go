package ensemble

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

func writeArtifact(t *testing.T, dir, name string, m LinearModel) string {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func constModel(name string, score float64) *LinearModel {
	// clamp calibration with only a bias makes a constant scorer
	return &LinearModel{
		ModelName:   name,
		Bias:        score,
		Weights:     map[string]float64{"_unused": 0},
		Calibration: "clamp",
	}
}

func ensembleCfg() config.EnsembleConfig {
	return config.Default().RiskPipe.Ensemble
}

func TestLoadModelRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "anomaly.json", LinearModel{
		ModelName:    "iforest",
		ModelVersion: "v1.0",
		Bias:         -1,
		Weights:      map[string]float64{"burstiness": 2},
	})

	m, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, "iforest", m.Name())
	assert.Equal(t, "v1.0", m.Version())

	// sigmoid keeps outputs in (0,1) for any input
	lo := m.Predict(model.Vector{})
	hi := m.Predict(model.Vector{"burstiness": 100})
	assert.Greater(t, hi, lo)
	assert.GreaterOrEqual(t, lo, 0.0)
	assert.LessOrEqual(t, hi, 1.0)
}

func TestLoadModelErrors(t *testing.T) {
	_, err := LoadModel("/nonexistent/artifact.json")
	assert.Error(t, err)

	dir := t.TempDir()
	empty := writeArtifact(t, dir, "empty.json", LinearModel{ModelName: "x"})
	_, err = LoadModel(empty)
	assert.Error(t, err, "artifact without weights must be rejected")
}

func TestScoreBounds(t *testing.T) {
	cases := []struct{ a, c float64 }{
		{0, 0}, {1, 1}, {0.3, 0.9}, {1, 0}, {0.5, 0.5},
	}
	for _, tc := range cases {
		e := New(ensembleCfg(), constModel("a", tc.a), constModel("c", tc.c))
		score, sub := e.Score(model.Vector{})
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
		require.NotNil(t, sub.Anomaly)
		require.NotNil(t, sub.Classifier)

		// weights renormalized: 0.4*a + 0.6*c
		assert.InDelta(t, 0.4*tc.a+0.6*tc.c, score, 1e-9)
	}
}

func TestDegradedModes(t *testing.T) {
	// classifier missing: anomaly-only, weight renormalizes to 1
	e := New(ensembleCfg(), constModel("a", 0.9), nil)
	assert.True(t, e.Degraded())
	score, sub := e.Score(model.Vector{})
	assert.InDelta(t, 0.9, score, 1e-9)
	assert.Nil(t, sub.Classifier)

	// nothing at all: neutral score plus a degraded-mode code
	empty := New(ensembleCfg(), nil, nil)
	score, sub = empty.Score(model.Vector{})
	assert.Equal(t, 0.5, score)
	assert.Nil(t, sub.Anomaly)
	codes := empty.ReasonCodes(score, sub, model.Vector{})
	assert.Contains(t, codes, ReasonModelDegraded)
}

func TestReasonCodes(t *testing.T) {
	e := New(ensembleCfg(), constModel("a", 0.9), constModel("c", 0.8))
	score, sub := e.Score(model.Vector{})
	require.GreaterOrEqual(t, score, 0.7)

	v := model.Vector{
		"burstiness":        0.95,
		"from_in_cycle":     1,
		"to_k1_neighbors":   12,
	}
	codes := e.ReasonCodes(score, sub, v)
	assert.Contains(t, codes, ReasonModelIFHigh)
	assert.Contains(t, codes, ReasonModelGBDTHigh)
	assert.Contains(t, codes, ReasonTemporalBurst)
	assert.Contains(t, codes, ReasonGraphCycle)
	assert.Contains(t, codes, ReasonGraphHighConn)

	// below the reason threshold nothing fires
	low := New(ensembleCfg(), constModel("a", 0.1), constModel("c", 0.1))
	score, sub = low.Score(v)
	assert.Empty(t, low.ReasonCodes(score, sub, v))
}

func TestCombine(t *testing.T) {
	e := New(ensembleCfg(), nil, nil)

	final, reasons := e.Combine([]float64{0.8, 0.9}, []float64{0.2}, 0.9)
	// 0.4*0.85 + 0.4*0.2 + 0.2*0.9
	assert.InDelta(t, 0.6, final, 1e-9)
	assert.Contains(t, reasons, ReasonEnsembleAnomaly)
	assert.Contains(t, reasons, ReasonEnsembleGraph)
	assert.NotContains(t, reasons, ReasonEnsembleClassifier)

	// empty legs read as zero, result stays in [0,1]
	final, reasons = e.Combine(nil, nil, 0)
	assert.Equal(t, 0.0, final)
	assert.Empty(t, reasons)
}
