package connectors

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/logging"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/metrics"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
	"github.com/chenzhangda16/web3-riskpipe/pkg/retry"
)

// Output is where connectors hand off canonical transaction records.
type Output interface {
	Enqueue(tx model.Tx)
}

// BlockPoller walks finalized blocks in order. Each cycle it reads the
// chain head, computes finalized = head - confirmations, applies every
// unprocessed block up to it, and advances the checkpoint only after a
// block's transactions are all enqueued. A restart therefore resumes at
// checkpoint+1 with no gap and no double-processing.
type BlockPoller struct {
	cfg  config.ConnectorsConfig
	rpc  *RPCClient
	ckpt Checkpoint
	out  Output
	met  *metrics.Metrics

	rpcRetry retry.Policy

	log zerolog.Logger
}

func NewBlockPoller(cfg config.ConnectorsConfig, ckpt Checkpoint, out Output, met *metrics.Metrics) *BlockPoller {
	p := &BlockPoller{
		cfg:  cfg,
		rpc:  NewRPCClient(cfg.RPCURL, cfg.RPCTimeout),
		ckpt: ckpt,
		out:  out,
		met:  met,
		log:  logging.For("blocks"),
	}
	p.rpcRetry = retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Jitter:      100 * time.Millisecond,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			p.met.RPCError()
			p.log.Warn().Int("attempt", attempt).Dur("wait", wait).Err(err).Msg("rpc retry")
		},
	}
	return p
}

// Run polls until ctx is cancelled. Transient failures are logged and
// retried next cycle; they never kill the poller.
func (p *BlockPoller) Run(ctx context.Context) error {
	next, err := p.startBlock()
	if err != nil {
		return err
	}
	p.log.Info().Int64("next_block", next).Str("rpc", p.cfg.RPCURL).Msg("block poller starting")

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		next = p.cycle(ctx, next)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *BlockPoller) startBlock() (int64, error) {
	ckpt, ok, err := p.ckpt.Load()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	return ckpt.LastBlock + 1, nil
}

// cycle applies blocks [next, finalized] and returns the new next block.
func (p *BlockPoller) cycle(ctx context.Context, next int64) int64 {
	var head ChainHeadResp
	err := retry.Do(ctx, p.rpcRetry, func(ctx context.Context) error {
		var err error
		head, err = p.rpc.ChainHead(ctx)
		return err
	})
	if err != nil {
		p.met.RPCError()
		p.log.Warn().Err(err).Msg("head poll failed, retrying next cycle")
		return next
	}
	if head.Empty {
		return next
	}

	finalized := head.HeadNum - p.cfg.Confirmations
	p.met.SetBlockGap(head.HeadNum - (next - 1))
	if finalized < next {
		return next
	}

	for b := next; b <= finalized; b++ {
		if ctx.Err() != nil {
			return b
		}
		if !p.applyBlock(ctx, b) {
			// partial failure: checkpoint stays, retry next cycle
			return b
		}
	}
	return finalized + 1
}

// applyBlock fetches one block, enqueues its transactions, and persists
// the checkpoint. Returns false on any failure, leaving the checkpoint
// untouched.
func (p *BlockPoller) applyBlock(ctx context.Context, n int64) bool {
	var blk model.Block
	err := retry.Do(ctx, p.rpcRetry, func(ctx context.Context) error {
		var err error
		blk, err = p.rpc.BlockByNumber(ctx, n)
		return err
	})
	if err != nil {
		p.met.RPCError()
		p.log.Warn().Int64("block", n).Err(err).Msg("block fetch failed")
		return false
	}

	for _, tx := range blk.Txs {
		if tx.Hash == "" {
			p.log.Warn().Int64("block", n).Msg("dropping malformed transaction without hash")
			continue
		}
		tx.BlockNum = blk.Number
		if tx.Timestamp == 0 {
			tx.Timestamp = blk.Timestamp
		}
		p.out.Enqueue(tx)
	}

	if err := p.ckpt.Save(Ckpt{LastBlock: n, Timestamp: time.Now().Unix()}); err != nil {
		p.log.Error().Int64("block", n).Err(err).Msg("checkpoint save failed")
		return false
	}
	p.met.BlockProcessed()
	return true
}
