// Package devchain is a synthetic chain for local end-to-end runs. It
// mines blocks of generated transfers, serves them over the same HTTP
// surface the pollers consume, and streams pending txs over websocket.
// Traffic is deterministic under a fixed seed and includes occasional
// anomalous shapes so the detectors have something to bite on.
package devchain

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math/rand"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
	"github.com/chenzhangda16/web3-riskpipe/pkg/rng"
)

// stream names for the rng factory
const (
	fromPick  = "from_pick"
	toPick    = "to_pick"
	amount    = "amount"
	choose    = "choose_pattern"
	gasStream = "gas"
	burstsize = "burst_size"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// GenAddrs builds a fixed pool of fake hex addresses.
func GenAddrs(n int, seed int64) []string {
	r := rand.New(rand.NewSource(seed))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		b := make([]byte, 20)
		_, _ = r.Read(b)
		out[i] = "0x" + hex.EncodeToString(b)
	}
	return out
}

// TxGen produces transactions from named random streams so each shape
// of traffic replays identically under the same seed.
type TxGen struct {
	addrs  []string
	bridge string // one pool address doubles as a bridge contract

	rFrom   *rand.Rand
	rTo     *rand.Rand
	rAmt    *rand.Rand
	rChoose *rand.Rand
	rGas    *rand.Rand
	rBurst  *rand.Rand
}

func NewTxGen(addrs []string, rf *rng.Factory) *TxGen {
	return &TxGen{
		addrs:   addrs,
		bridge:  addrs[0],
		rFrom:   rf.R(fromPick),
		rTo:     rf.R(toPick),
		rAmt:    rf.R(amount),
		rChoose: rf.R(choose),
		rGas:    rf.R(gasStream),
		rBurst:  rf.R(burstsize),
	}
}

// Batch generates the txs for one block. Mostly plain transfers, with
// a sprinkle of the shapes the detectors look for.
func (g *TxGen) Batch(blockNum, ts int64, n int) []model.Tx {
	txs := make([]model.Tx, 0, n)
	idx := 0
	for len(txs) < n {
		p := g.rChoose.Float64()
		switch {
		case p < 0.02:
			txs = append(txs, g.flashBurst(blockNum, ts, &idx)...)
		case p < 0.04:
			txs = append(txs, g.mintTx(blockNum, ts, &idx))
		case p < 0.06:
			txs = append(txs, g.burnTx(blockNum, ts, &idx))
		case p < 0.09:
			txs = append(txs, g.bridgeTx(blockNum, ts, &idx))
		default:
			txs = append(txs, g.randomTx(blockNum, ts, &idx))
		}
	}
	return txs[:n]
}

func (g *TxGen) randomTx(bn, ts int64, idx *int) model.Tx {
	fromIdx := g.rFrom.Intn(len(g.addrs))
	toIdx := g.rTo.Intn(len(g.addrs))
	for toIdx == fromIdx {
		toIdx = g.rTo.Intn(len(g.addrs))
	}
	amt := float64(1 + g.rAmt.Int63n(50))
	return g.finish(model.Tx{
		From:  g.addrs[fromIdx],
		To:    g.addrs[toIdx],
		Value: amt,
		Gas:   21000,
	}, bn, ts, idx)
}

// flashBurst emits several large transfers into and back out of one
// address within the same block.
func (g *TxGen) flashBurst(bn, ts int64, idx *int) []model.Tx {
	pivot := g.addrs[g.rFrom.Intn(len(g.addrs))]
	n := 3 + g.rBurst.Intn(2)
	out := make([]model.Tx, 0, 2*n)
	for i := 0; i < n; i++ {
		peer := g.addrs[g.rTo.Intn(len(g.addrs))]
		amt := float64(500 + g.rAmt.Int63n(500))
		out = append(out, g.finish(model.Tx{From: peer, To: pivot, Value: amt, Gas: 90000}, bn, ts, idx))
		out = append(out, g.finish(model.Tx{From: pivot, To: peer, Value: amt, Gas: 90000}, bn, ts, idx))
	}
	return out
}

func (g *TxGen) mintTx(bn, ts int64, idx *int) model.Tx {
	to := g.addrs[g.rTo.Intn(len(g.addrs))]
	amt := float64(200 + g.rAmt.Int63n(800))
	return g.finish(model.Tx{From: zeroAddress, To: to, Value: amt, Gas: 60000}, bn, ts, idx)
}

func (g *TxGen) burnTx(bn, ts int64, idx *int) model.Tx {
	from := g.addrs[g.rFrom.Intn(len(g.addrs))]
	amt := float64(200 + g.rAmt.Int63n(800))
	return g.finish(model.Tx{From: from, To: zeroAddress, Value: amt, Gas: 60000}, bn, ts, idx)
}

func (g *TxGen) bridgeTx(bn, ts int64, idx *int) model.Tx {
	from := g.addrs[g.rFrom.Intn(len(g.addrs))]
	amt := float64(10 + g.rAmt.Int63n(200))
	return g.finish(model.Tx{
		From:  from,
		To:    g.bridge,
		Value: amt,
		Gas:   250000,
		Input: "0x1114cd2a" + hex.EncodeToString([]byte{byte(bn)}),
	}, bn, ts, idx)
}

func (g *TxGen) finish(tx model.Tx, bn, ts int64, idx *int) model.Tx {
	tx.BlockNum = bn
	tx.Timestamp = ts
	tx.GasPrice = float64(1 + g.rGas.Int63n(100))
	tx.Hash = txHash(tx.From, tx.To, bn, ts, tx.Value, *idx)
	*idx++
	return tx
}

func txHash(from, to string, bn, ts int64, amt float64, txIndex int) string {
	h := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%d|%d|%f|%d", from, to, bn, ts, amt, txIndex)))
	return "0x" + hex.EncodeToString(h[:])
}
