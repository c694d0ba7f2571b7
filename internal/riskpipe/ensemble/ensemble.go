// Package ensemble combines an unsupervised anomaly sub-model with a
// supervised classifier into one score, and derives model-level reason
// codes. A missing classifier degrades to anomaly-only scoring; it is
// never a request failure.
package ensemble

import (
	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/logging"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

const (
	ReasonModelIFHigh        = "RP.MODEL.IF.HIGH"
	ReasonModelGBDTHigh      = "RP.MODEL.GBDT.HIGH"
	ReasonModelDegraded      = "RP.MODEL.DEGRADED"
	ReasonTemporalBurst      = "RP.TEMPORAL.BURST.K1"
	ReasonGraphCycle         = "RP.GRAPH.CYCLE.K1"
	ReasonGraphHighConn      = "RP.GRAPH.HIGHCONN.K1"
	ReasonEnsembleAnomaly    = "RP.ENSEMBLE.ANOMALY.HIGH"
	ReasonEnsembleClassifier = "RP.ENSEMBLE.CLASSIFIER.HIGH"
	ReasonEnsembleGraph      = "RP.ENSEMBLE.GRAPH.HIGH"
)

// Feature-threshold codes fire on the raw vector, not the models.
const (
	burstinessHigh  = 0.8
	k1NeighborsHigh = 10
)

type Ensemble struct {
	cfg config.EnsembleConfig

	anomaly    SubModel // may be nil
	classifier SubModel // may be nil

	wAnomaly    float64
	wClassifier float64

	log zerolog.Logger
}

// New wires the sub-models and renormalizes the combination weights to
// sum to 1 over the models actually present.
func New(cfg config.EnsembleConfig, anomaly, classifier SubModel) *Ensemble {
	e := &Ensemble{
		cfg:        cfg,
		anomaly:    anomaly,
		classifier: classifier,
		log:        logging.For("ensemble"),
	}

	wa, wc := cfg.AnomalyWeight, cfg.ClassifierWeight
	if anomaly == nil {
		wa = 0
	}
	if classifier == nil {
		wc = 0
	}
	if total := wa + wc; total > 0 {
		wa /= total
		wc /= total
	}
	e.wAnomaly, e.wClassifier = wa, wc

	if classifier == nil {
		e.log.Warn().Msg("classifier artifact missing, degrading to anomaly-only scoring")
	}
	return e
}

// Load builds the ensemble from the configured artifact paths. A missing
// or unreadable classifier artifact is tolerated; a missing anomaly
// artifact leaves the ensemble fully degraded (neutral scores).
func Load(cfg config.EnsembleConfig) *Ensemble {
	log := logging.For("ensemble")

	var anomaly, classifier SubModel
	if cfg.AnomalyArtifact != "" {
		m, err := LoadModel(cfg.AnomalyArtifact)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.AnomalyArtifact).Msg("anomaly artifact load failed")
		} else {
			anomaly = m
		}
	}
	if cfg.ClassifierArtifact != "" {
		m, err := LoadModel(cfg.ClassifierArtifact)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.ClassifierArtifact).Msg("classifier artifact load failed")
		} else {
			classifier = m
		}
	}
	return New(cfg, anomaly, classifier)
}

// Degraded reports whether the classifier leg is unavailable.
func (e *Ensemble) Degraded() bool { return e.classifier == nil }

// Score produces the combined score and the per-model sub-scores. With
// no models at all the score is neutral (0.5) and sub-scores stay nil.
func (e *Ensemble) Score(v model.Vector) (score float64, sub model.SubScores) {
	if e.anomaly == nil && e.classifier == nil {
		return 0.5, sub
	}

	var combined float64
	if e.anomaly != nil {
		s := clamp01(e.anomaly.Predict(v))
		sub.Anomaly = model.F(s)
		combined += e.wAnomaly * s
	}
	if e.classifier != nil {
		s := clamp01(e.classifier.Predict(v))
		sub.Classifier = model.F(s)
		combined += e.wClassifier * s
	}
	return clamp01(combined), sub
}

// ReasonCodes attributes a high combined score to the dominant sub-model
// and surfaces feature-threshold codes from the raw vector.
func (e *Ensemble) ReasonCodes(score float64, sub model.SubScores, v model.Vector) []string {
	var codes []string
	if e.anomaly == nil && e.classifier == nil {
		codes = append(codes, ReasonModelDegraded)
	}
	if score < e.cfg.ReasonThreshold {
		return codes
	}

	if sub.Anomaly != nil && *sub.Anomaly >= e.cfg.SubModelThreshold {
		codes = append(codes, ReasonModelIFHigh)
	}
	if sub.Classifier != nil && *sub.Classifier >= e.cfg.SubModelThreshold {
		codes = append(codes, ReasonModelGBDTHigh)
	}

	if v.Get("burstiness") > burstinessHigh {
		codes = append(codes, ReasonTemporalBurst)
	}
	if v.Get("from_in_cycle") > 0 || v.Get("to_in_cycle") > 0 {
		codes = append(codes, ReasonGraphCycle)
	}
	if v.Get("from_k1_neighbors") > k1NeighborsHigh || v.Get("to_k1_neighbors") > k1NeighborsHigh {
		codes = append(codes, ReasonGraphHighConn)
	}
	return codes
}

// Combine merges anomaly sub-scores, classifier sub-scores, and one
// structural score into a weighted average, flagging any leg over the
// reason threshold.
func (e *Ensemble) Combine(anomalyScores, classifierScores []float64, graphScore float64) (float64, []string) {
	avgAnomaly := mean(anomalyScores)
	avgClassifier := mean(classifierScores)

	final := e.cfg.CombineAnomalyWeight*avgAnomaly +
		e.cfg.CombineClassifierWeight*avgClassifier +
		e.cfg.CombineGraphWeight*graphScore

	var reasons []string
	if avgAnomaly > e.cfg.ReasonThreshold {
		reasons = append(reasons, ReasonEnsembleAnomaly)
	}
	if avgClassifier > e.cfg.ReasonThreshold {
		reasons = append(reasons, ReasonEnsembleClassifier)
	}
	if graphScore > e.cfg.ReasonThreshold {
		reasons = append(reasons, ReasonEnsembleGraph)
	}
	return clamp01(final), reasons
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
