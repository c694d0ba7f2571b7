package devchain

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
	"github.com/chenzhangda16/web3-riskpipe/pkg/rng"
)

// Chain holds mined blocks in memory and fans pending txs out to
// websocket subscribers before they land in a block.
type Chain struct {
	mu     sync.Mutex
	blocks map[int64]*model.Block
	head   int64

	subs   map[int64]chan model.Tx
	nextID int64
}

func NewChain() *Chain {
	return &Chain{
		blocks: make(map[int64]*model.Block),
		subs:   make(map[int64]chan model.Tx),
	}
}

func (c *Chain) Head() (*model.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	blk, ok := c.blocks[c.head]
	return blk, ok
}

func (c *Chain) Block(n int64) (*model.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	blk, ok := c.blocks[n]
	return blk, ok
}

func (c *Chain) append(blk *model.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[blk.Number] = blk
	if blk.Number > c.head {
		c.head = blk.Number
	}
}

// Subscribe registers a pending-tx feed. The returned cancel func must
// be called when the consumer goes away.
func (c *Chain) Subscribe() (<-chan model.Tx, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	ch := make(chan model.Tx, 256)
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

func (c *Chain) publish(tx model.Tx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- tx:
		default:
			// slow subscriber, drop rather than stall mining
		}
	}
}

// Miner produces one block per tick.
type Miner struct {
	chain *Chain
	txgen *TxGen
	rf    *rng.Factory
	tick  time.Duration
	log   zerolog.Logger
}

const txCountStream = "tx_count"

func NewMiner(chain *Chain, txgen *TxGen, rf *rng.Factory, tick time.Duration, log zerolog.Logger) *Miner {
	return &Miner{chain: chain, txgen: txgen, rf: rf, tick: tick, log: log}
}

func (m *Miner) Run(ctx context.Context) error {
	lastTs := int64(0)
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			ts := now.Unix()
			if ts <= lastTs {
				ts = lastTs + 1 // block timestamps stay strictly monotone
			}
			m.MineOne(ts)
			lastTs = ts
		}
	}
}

// MineOne mines a single block at the given timestamp. Exposed so a
// warmup pass or a test can backfill history without the ticker.
func (m *Miner) MineOne(ts int64) {
	head, _ := m.chain.Head()
	var bn int64 = 1
	var parent string
	if head != nil {
		bn = head.Number + 1
		parent = head.Hash
	}

	n := 20 + m.rf.R(txCountStream).Intn(40)
	txs := m.txgen.Batch(bn, ts, n)
	for _, tx := range txs {
		m.chain.publish(tx)
	}

	blk := &model.Block{
		Number:    bn,
		Hash:      blockHash(bn, parent, ts),
		Timestamp: ts,
		Txs:       txs,
	}
	m.chain.append(blk)
	m.log.Debug().Int64("block", bn).Int("txs", len(txs)).Msg("mined")
}

func blockHash(bn int64, parent string, ts int64) string {
	h := sha1.Sum([]byte(fmt.Sprintf("blk|%d|%s|%d", bn, parent, ts)))
	return "0x" + hex.EncodeToString(h[:])
}
