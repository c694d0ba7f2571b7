// Package app wires the whole pipeline together. Every component is
// constructed here and passed down by injection; nothing reaches for
// package-level singletons.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/connectors"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/dedup"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/detectors"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/ensemble"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/graph"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/logging"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/metrics"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/scoring"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/sink"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/temporal"
)

const drainBatch = 256

type App struct {
	cfg *config.Config
	log zerolog.Logger

	met     *metrics.Metrics
	queue   *TxQueue
	deduper *dedup.Deduper
	orch    *scoring.Orchestrator
	out     sink.ScoreSink

	poller  *connectors.BlockPoller
	mempool *connectors.MempoolSubscriber
}

func New(cfg *config.Config) (*App, error) {
	r := &cfg.RiskPipe
	logging.Setup(r.Logging.Level, r.Logging.Console)
	log := logging.For("app")

	var met *metrics.Metrics
	if r.Metrics.Enabled {
		met = metrics.New("riskpipe")
	}

	var long dedup.LongDeduper
	if r.Dedup.Enabled && r.Dedup.RocksPath != "" {
		var err error
		long, err = dedup.OpenRocksLongDeduper(r.Dedup.RocksPath, r.Dedup.BucketSec)
		if err != nil {
			return nil, fmt.Errorf("open long deduper: %w", err)
		}
	}
	var dd *dedup.Deduper
	if r.Dedup.Enabled {
		dd = dedup.New(cfg.MaxHorizonSec(), long)
	}

	temp := temporal.NewEngine(r.Temporal.WindowSec)
	gr := graph.NewEngine(r.Graph.WindowSec, r.Graph.CycleHops, r.Graph.MaxKHop)
	dets := []detectors.Detector{
		detectors.NewFlashLoan(r.Detectors.FlashLoan),
		detectors.NewMintBurn(r.Detectors.MintBurn),
		detectors.NewBridge(r.Detectors.Bridge),
	}
	ens := ensemble.Load(r.Ensemble)
	orch := scoring.New(r.Scoring, temp, gr, dets, ens, dd, met)

	out, err := sink.Open(r.Sink, logging.For("sink"))
	if err != nil {
		if dd != nil {
			dd.Close()
		}
		return nil, err
	}

	queue := NewTxQueue(r.Connectors.QueueSize, met)

	ckpt, err := connectors.OpenCheckpoint(r.Connectors.Checkpoint)
	if err != nil {
		if dd != nil {
			dd.Close()
		}
		_ = out.Close()
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		met:     met,
		queue:   queue,
		deduper: dd,
		orch:    orch,
		out:     out,
		poller:  connectors.NewBlockPoller(r.Connectors, ckpt, queue, met),
	}
	if r.Connectors.MempoolWSURL != "" {
		a.mempool = connectors.NewMempoolSubscriber(r.Connectors, queue, met)
	}
	return a, nil
}

// Run blocks until ctx is cancelled or a fatal component error occurs.
// A dead mempool stream is degraded service, not fatal: finalized
// blocks still flow, so it is logged and the rest keeps running.
func (a *App) Run(ctx context.Context) error {
	r := &a.cfg.RiskPipe
	if a.met != nil {
		a.met.StartServer(r.Metrics.Addr, r.Metrics.Path)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.poller.Run(ctx)
	})

	if a.mempool != nil {
		g.Go(func() error {
			if err := a.mempool.Run(ctx); err != nil && ctx.Err() == nil {
				a.log.Error().Err(err).Msg("mempool stream down, continuing on finalized blocks only")
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.scoreLoop(ctx)
	})

	g.Go(func() error {
		return a.evictLoop(ctx)
	})

	err := g.Wait()
	a.close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) scoreLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.queue.Ready():
		}
		for {
			batch := a.queue.Drain(drainBatch)
			if len(batch) == 0 {
				break
			}
			results, err := a.orch.ScoreBatch(ctx, batch)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.log.Error().Err(err).Int("batch", len(batch)).Msg("score batch failed")
				continue
			}
			for _, res := range results {
				if err := a.out.Emit(ctx, res); err != nil {
					a.log.Error().Err(err).Str("tx_hash", res.TxHash).Msg("sink emit failed")
				}
			}
		}
	}
}

// evictLoop ages out window and dedup state so idle periods do not pin
// memory to the high-water mark.
func (a *App) evictLoop(ctx context.Context) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.orch.Evict()
		}
	}
}

func (a *App) close() {
	if err := a.out.Close(); err != nil {
		a.log.Warn().Err(err).Msg("sink close failed")
	}
	if a.deduper != nil {
		a.deduper.Close()
	}
	if err := a.met.StopServer(); err != nil {
		a.log.Warn().Err(err).Msg("metrics server close failed")
	}
}
