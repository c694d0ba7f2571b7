package ensemble

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// SubModel is the opaque contract a trained artifact must satisfy:
// predict a normalized score in [0,1] from a feature vector.
type SubModel interface {
	Name() string
	Version() string
	Predict(v model.Vector) float64
}

// LinearModel is a trained linear scorer loaded from a JSON artifact:
// a bias plus per-feature weights, squashed through the configured
// calibration. Features absent from the vector read as zero.
type LinearModel struct {
	ModelName    string             `json:"name"`
	ModelVersion string             `json:"version"`
	Bias         float64            `json:"bias"`
	Weights      map[string]float64 `json:"weights"`
	Calibration  string             `json:"calibration"` // "sigmoid" (default) or "clamp"
}

// LoadModel reads a JSON artifact from disk.
func LoadModel(path string) (*LinearModel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ensemble: read artifact: %w", err)
	}
	var m LinearModel
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("ensemble: parse artifact %s: %w", path, err)
	}
	if len(m.Weights) == 0 {
		return nil, fmt.Errorf("ensemble: artifact %s has no weights", path)
	}
	if m.ModelName == "" {
		m.ModelName = path
	}
	return &m, nil
}

func (m *LinearModel) Name() string    { return m.ModelName }
func (m *LinearModel) Version() string { return m.ModelVersion }

func (m *LinearModel) Predict(v model.Vector) float64 {
	dot := m.Bias
	for name, w := range m.Weights {
		dot += w * v.Get(name)
	}
	switch m.Calibration {
	case "clamp":
		return clamp01(dot)
	default:
		return 1 / (1 + math.Exp(-dot))
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
