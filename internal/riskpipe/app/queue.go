package app

import (
	"sync"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/metrics"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

// TxQueue is the bounded buffer between the connectors and the scorer.
// Overflow drops the oldest entry: a stale pending tx is worth less
// than a fresh one, and the depth gauge makes the pressure visible.
type TxQueue struct {
	mu    sync.Mutex
	buf   []model.Tx
	head  int
	cap   int
	ready chan struct{}
	met   *metrics.Metrics
}

func NewTxQueue(capacity int, met *metrics.Metrics) *TxQueue {
	if capacity <= 0 {
		capacity = 4096
	}
	return &TxQueue{
		cap:   capacity,
		ready: make(chan struct{}, 1),
		met:   met,
	}
}

// Enqueue satisfies connectors.Output.
func (q *TxQueue) Enqueue(tx model.Tx) {
	q.mu.Lock()
	if q.len() >= q.cap {
		q.head++
		q.met.DroppedTx()
	}
	q.buf = append(q.buf, tx)
	q.compact()
	depth := q.len()
	q.mu.Unlock()

	q.met.SetQueueDepth(depth)
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Drain removes up to max queued txs in FIFO order.
func (q *TxQueue) Drain(max int) []model.Tx {
	q.mu.Lock()
	n := q.len()
	if n == 0 {
		q.mu.Unlock()
		return nil
	}
	if n > max {
		n = max
	}
	out := make([]model.Tx, n)
	copy(out, q.buf[q.head:q.head+n])
	q.head += n
	q.compact()
	depth := q.len()
	q.mu.Unlock()

	q.met.SetQueueDepth(depth)
	return out
}

// Ready signals when at least one tx may be waiting.
func (q *TxQueue) Ready() <-chan struct{} { return q.ready }

func (q *TxQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len()
}

func (q *TxQueue) len() int { return len(q.buf) - q.head }

// compact reclaims the dead prefix once it dominates the slice.
func (q *TxQueue) compact() {
	if q.head > 4096 && q.head > len(q.buf)/2 {
		q.buf = append([]model.Tx(nil), q.buf[q.head:]...)
		q.head = 0
	}
}
