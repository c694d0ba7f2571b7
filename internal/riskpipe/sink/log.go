package sink

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// LogSink writes each result as one structured log line. Default mode.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(ctx context.Context, res model.ScoreResult) error {
	ev := s.log.Info().
		Str("tx_hash", res.TxHash).
		Float64("score", res.Score).
		Strs("reasons", res.Reasons).
		Str("version", res.Version).
		Str("trace_id", res.TraceID).
		Int64("latency_ms", res.LatencyMs)
	if res.SubScores.Anomaly != nil {
		ev = ev.Float64("sub_anomaly", *res.SubScores.Anomaly)
	}
	if res.SubScores.Classifier != nil {
		ev = ev.Float64("sub_classifier", *res.SubScores.Classifier)
	}
	if res.SubScores.Graph != nil {
		ev = ev.Float64("sub_graph", *res.SubScores.Graph)
	}
	ev.Msg("score")
	return nil
}

func (s *LogSink) Close() error { return nil }
