package temporal

import "github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"

// txWindow is an arrival-ordered window with head-index eviction, so a
// purge is O(evicted) and the backing slice is compacted only when the
// dead prefix dominates.
type txWindow struct {
	q    []model.Tx
	head int
}

func newTxWindow() *txWindow {
	return &txWindow{q: make([]model.Tx, 0, 64)}
}

func (w *txWindow) add(tx model.Tx) {
	w.q = append(w.q, tx)
}

// evict drops entries with timestamp < cut. Entries are in arrival
// order; a late-arriving old timestamp behind a newer one is dropped on
// a later pass once the newer entry expires.
func (w *txWindow) evict(cut int64) {
	for w.head < len(w.q) {
		if w.q[w.head].Timestamp >= cut {
			break
		}
		w.head++
	}
	if w.head > 4096 && w.head*2 > len(w.q) {
		newQ := make([]model.Tx, 0, len(w.q)-w.head)
		newQ = append(newQ, w.q[w.head:]...)
		w.q = newQ
		w.head = 0
	}
}

func (w *txWindow) len() int {
	return len(w.q) - w.head
}

func (w *txWindow) items() []model.Tx {
	return w.q[w.head:]
}
