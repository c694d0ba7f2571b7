package model

// Tx is the canonical transaction record every downstream component consumes.
// Connectors produce it once; nothing mutates it afterwards.
type Tx struct {
	Hash      string     `json:"hash"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Value     float64    `json:"value"`     // native units (not wei)
	Gas       int64      `json:"gas"`
	GasPrice  float64    `json:"gas_price"` // gwei
	Input     string     `json:"input"`     // hex call data, "0x" when plain transfer
	Timestamp int64      `json:"timestamp"` // unix seconds
	BlockNum  int64      `json:"block_num"` // 0 for pending txs
	Logs      []LogEntry `json:"logs,omitempty"`
}

// LogEntry is a decoded receipt log. Topics keep their raw hex form;
// detectors decode only what they understand (e.g. ERC-20 Transfer).
type LogEntry struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// HasCallData reports whether the tx carries a non-empty payload.
func (t Tx) HasCallData() bool {
	return len(t.Input) > 2 && t.Input != "0x"
}

// Selector returns the 4-byte function selector ("0x" + 8 hex chars)
// in lowercase, or "" when the input is too short.
func (t Tx) Selector() string {
	if len(t.Input) < 10 {
		return ""
	}
	return lower(t.Input[:10])
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

// Block is the finalized-block shape the poller converts from RPC.
type Block struct {
	Number    int64  `json:"number"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
	Txs       []Tx   `json:"txs"`
}
