// Package sink delivers finished score results downstream. Three
// backends are supported: structured log output for development,
// kafka for streaming consumers, and postgres for ad-hoc queries.
package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

type ScoreSink interface {
	Emit(ctx context.Context, res model.ScoreResult) error
	Close() error
}

// Open builds the sink selected by cfg.Mode.
func Open(cfg config.SinkConfig, log zerolog.Logger) (ScoreSink, error) {
	switch cfg.Mode {
	case "", "log":
		return NewLogSink(log), nil
	case "kafka":
		brokers := strings.Split(cfg.Brokers, ",")
		return NewKafkaSink(brokers, cfg.Topic, nil)
	case "postgres":
		return NewPGSink(cfg.PGDSN)
	default:
		return nil, fmt.Errorf("sink: unknown mode %q", cfg.Mode)
	}
}
