package model

// SubScores carries the per-model signals that went into the final score.
// Nil pointer = that model produced no signal for this request.
type SubScores struct {
	Anomaly    *float64 `json:"anomaly,omitempty"`
	Classifier *float64 `json:"classifier,omitempty"`
	Graph      *float64 `json:"graph,omitempty"`
}

// ScoreResult is produced once per scored transaction and returned to the
// caller unchanged. Reasons keep duplicates: the same code firing from two
// detectors is information, not noise.
type ScoreResult struct {
	TxHash    string    `json:"tx_hash"`
	Score     float64   `json:"score"` // [0,1]
	Reasons   []string  `json:"reasons"`
	SubScores SubScores `json:"sub_scores"`
	Version   string    `json:"version"`
	LatencyMs int64     `json:"latency_ms"`
	TraceID   string    `json:"trace_id"`
	Timestamp int64     `json:"timestamp"`
}

// F wraps a float for the optional sub-score fields.
func F(v float64) *float64 { return &v }
