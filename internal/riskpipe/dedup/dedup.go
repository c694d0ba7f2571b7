// Package dedup suppresses transactions the pipeline has already scored.
// A hot in-memory layer answers most lookups; an optional RocksDB layer
// extends the horizon across restarts.
package dedup

import (
	"github.com/chenzhangda16/web3-riskpipe/pkg/hash"
)

type Deduper struct {
	hot    *HotDeduper
	long   LongDeduper // nil when persistence is disabled
	ttlSec int64
}

// New builds a deduper with the given horizon in seconds. long may be nil.
func New(ttlSec int64, long LongDeduper) *Deduper {
	if ttlSec <= 0 {
		ttlSec = 1
	}
	return &Deduper{
		hot:    NewHotDeduper(1 << 14),
		long:   long,
		ttlSec: ttlSec,
	}
}

// SeenOrAdd reports whether txHash was already observed within the horizon,
// recording it if not. The hot layer is authoritative for the common case;
// the long layer only adds persistence, so its errors degrade to "not seen".
func (d *Deduper) SeenOrAdd(txHash string, nowTs int64) (bool, error) {
	key := hash.TxKey(txHash)

	if d.hot.SeenOrAdd(key, nowTs+d.ttlSec, nowTs) {
		return true, nil
	}
	if d.long == nil {
		return false, nil
	}
	seen, err := d.long.SeenOrAdd(key[:], nowTs, d.ttlSec)
	if err != nil {
		return false, err
	}
	return seen, nil
}

// Evict drops expired entries from both layers.
func (d *Deduper) Evict(nowTs int64) error {
	d.hot.Evict(nowTs)
	if d.long != nil {
		return d.long.Evict(nowTs)
	}
	return nil
}

func (d *Deduper) Close() {
	if d.long != nil {
		d.long.Close()
	}
}
