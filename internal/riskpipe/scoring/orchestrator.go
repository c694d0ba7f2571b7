// Package scoring runs the per-transaction pipeline: mutate temporal and
// graph state, assemble the feature vector, evaluate detectors, invoke
// the ensemble, and merge everything into one score result.
package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/dedup"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/detectors"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/ensemble"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/graph"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/logging"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/metrics"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/temporal"
)

// ErrEmptyBatch is a request-level programmer error, distinct from model
// degradation which never fails a request.
var ErrEmptyBatch = errors.New("scoring: empty batch")

type Orchestrator struct {
	cfg config.ScoringConfig

	temporal *temporal.Engine
	graph    *graph.Engine
	dets     []detectors.Detector
	ens      *ensemble.Ensemble

	dedup *dedup.Deduper // nil disables dedup

	met *metrics.Metrics

	log zerolog.Logger
	now func() time.Time
}

func New(
	cfg config.ScoringConfig,
	temp *temporal.Engine,
	gr *graph.Engine,
	dets []detectors.Detector,
	ens *ensemble.Ensemble,
	dd *dedup.Deduper,
	met *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		temporal: temp,
		graph:    gr,
		dets:     dets,
		ens:      ens,
		dedup:    dd,
		met:      met,
		log:      logging.For("scoring"),
		now:      time.Now,
	}
}

// ScoreTx scores a single transaction.
func (o *Orchestrator) ScoreTx(ctx context.Context, tx model.Tx) (model.ScoreResult, error) {
	results, err := o.ScoreBatch(ctx, []model.Tx{tx})
	if err != nil {
		return model.ScoreResult{}, err
	}
	return results[0], nil
}

// ScoreBatch scores a batch in arrival order. A transaction hash already
// seen within the dedup horizon skips state mutation (windows are not
// double-counted) but is still scored against current state, so every
// input yields a result. Exceeding the latency budget never fails the
// request; the overrun is logged and counted.
func (o *Orchestrator) ScoreBatch(ctx context.Context, txs []model.Tx) ([]model.ScoreResult, error) {
	if len(txs) == 0 {
		return nil, ErrEmptyBatch
	}

	results := make([]model.ScoreResult, 0, len(txs))
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, o.scoreOne(tx))
	}
	o.graph.EvictStale()
	return results, nil
}

func (o *Orchestrator) scoreOne(tx model.Tx) model.ScoreResult {
	start := o.now()
	traceID := uuid.NewString()

	fresh := true
	if o.dedup != nil && tx.Hash != "" {
		seen, err := o.dedup.SeenOrAdd(tx.Hash, start.Unix())
		if err != nil {
			o.log.Warn().Err(err).Str("tx", tx.Hash).Msg("dedup lookup failed, treating as fresh")
		} else if seen {
			fresh = false
		}
	}

	if fresh {
		o.temporal.Add(tx)
		o.graph.Add(tx)
		for _, d := range o.dets {
			d.Add(tx)
		}
	}

	// feature vector: temporal slice + structural slice
	vec := o.temporal.TxFeatures(tx)
	for k, v := range o.graph.TxFeatures(tx) {
		vec[k] = v
	}

	var reasons []string
	for _, d := range o.dets {
		codes := d.Detect(tx)
		for _, c := range codes {
			o.met.DetectorTrigger(c)
		}
		reasons = append(reasons, codes...)
	}

	ensScore, sub := o.ens.Score(vec)
	reasons = append(reasons, o.ens.ReasonCodes(ensScore, sub, vec)...)

	graphScore := vec.Get("graph_density")
	sub.Graph = model.F(graphScore)

	var anomalyLeg, classifierLeg []float64
	if sub.Anomaly != nil {
		anomalyLeg = append(anomalyLeg, *sub.Anomaly)
	}
	if sub.Classifier != nil {
		classifierLeg = append(classifierLeg, *sub.Classifier)
	}
	final, combineReasons := o.ens.Combine(anomalyLeg, classifierLeg, graphScore)
	reasons = append(reasons, combineReasons...)

	elapsed := o.now().Sub(start)
	overBudget := elapsed > o.cfg.LatencyBudget
	if overBudget {
		o.log.Warn().
			Str("tx", tx.Hash).
			Dur("elapsed", elapsed).
			Dur("budget", o.cfg.LatencyBudget).
			Msg("latency budget exceeded")
	}
	o.met.ObserveScore(final, elapsed, overBudget)

	return model.ScoreResult{
		TxHash:    tx.Hash,
		Score:     final,
		Reasons:   reasons,
		SubScores: sub,
		Version:   o.cfg.ModelVersion,
		LatencyMs: elapsed.Milliseconds(),
		TraceID:   traceID,
		Timestamp: start.Unix(),
	}
}

// Evict advances dedup expiry. Called periodically by the app loop.
func (o *Orchestrator) Evict() {
	if o.dedup != nil {
		if err := o.dedup.Evict(o.now().Unix()); err != nil {
			o.log.Warn().Err(err).Msg("dedup evict failed")
		}
	}
}

// Stats aggregates component statistics for operational visibility.
func (o *Orchestrator) Stats() map[string]float64 {
	stats := make(map[string]float64)
	globalLen, tracked := o.temporal.Stats()
	stats["temporal_window_len"] = float64(globalLen)
	stats["temporal_tracked_addresses"] = float64(tracked)
	stats["graph_nodes"] = float64(o.graph.NumNodes())
	stats["graph_edges"] = float64(o.graph.NumEdges())
	for _, d := range o.dets {
		for k, v := range d.Stats() {
			stats[d.Name()+"_"+k] = v
		}
	}
	return stats
}
