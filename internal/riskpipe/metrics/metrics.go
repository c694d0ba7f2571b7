package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/logging"
)

// Metrics is the named-event surface the rest of the pipeline reports into.
// Everything is optional: a nil *Metrics is safe to call, so tests and
// library users don't have to wire prometheus.
type Metrics struct {
	reg *prometheus.Registry

	mempoolMessages  prometheus.Counter
	mempoolUp        prometheus.Gauge
	connectionErrors prometheus.Counter
	blocksProcessed  prometheus.Counter
	blockGap         prometheus.Gauge
	rpcErrors        prometheus.Counter
	queueDepth       prometheus.Gauge
	droppedTxs       prometheus.Counter

	scoreLatency     prometheus.Histogram
	budgetExceeded   prometheus.Counter
	scores           prometheus.Histogram
	detectorTriggers *prometheus.CounterVec

	server *http.Server
	mu     sync.Mutex
}

// New registers the riskpipe metric set on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "riskpipe"
	}
	reg := prometheus.NewRegistry()
	f := promauto{reg: reg, ns: namespace}

	return &Metrics{
		reg:              reg,
		mempoolMessages:  f.counter("mempool_messages_total", "Pending transactions received from the mempool stream"),
		mempoolUp:        f.gauge("mempool_up", "Whether the mempool stream is connected (1) or down (0)"),
		connectionErrors: f.counter("mempool_connection_errors_total", "Mempool stream connection failures"),
		blocksProcessed:  f.counter("blocks_processed_total", "Finalized blocks fully applied"),
		blockGap:         f.gauge("block_gap", "Blocks between chain head and last processed block"),
		rpcErrors:        f.counter("rpc_errors_total", "JSON-RPC request errors"),
		queueDepth:       f.gauge("queue_depth", "Transactions waiting in the ingest queue"),
		droppedTxs:       f.counter("queue_dropped_total", "Transactions dropped by the overflow policy"),
		scoreLatency:     f.histogram("score_latency_seconds", "End-to-end scoring latency", prometheus.ExponentialBuckets(0.0005, 2, 12)),
		budgetExceeded:   f.counter("latency_budget_exceeded_total", "Scoring requests that ran past the latency budget"),
		scores:           f.histogram("score_value", "Distribution of final ensemble scores", prometheus.LinearBuckets(0, 0.1, 11)),
		detectorTriggers: f.counterVec("detector_triggers_total", "Reason-code emissions by code", "code"),
	}
}

func (m *Metrics) MempoolMessage() {
	if m != nil {
		m.mempoolMessages.Inc()
	}
}

// SetMempoolUp marks the pending stream as connected or down. Operators
// alert on the 0 state; the pipeline keeps running on finalized blocks.
func (m *Metrics) SetMempoolUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.mempoolUp.Set(1)
	} else {
		m.mempoolUp.Set(0)
	}
}

func (m *Metrics) ConnectionError() {
	if m != nil {
		m.connectionErrors.Inc()
	}
}

func (m *Metrics) BlockProcessed() {
	if m != nil {
		m.blocksProcessed.Inc()
	}
}

func (m *Metrics) RPCError() {
	if m != nil {
		m.rpcErrors.Inc()
	}
}

func (m *Metrics) DroppedTx() {
	if m != nil {
		m.droppedTxs.Inc()
	}
}

func (m *Metrics) SetBlockGap(gap int64) {
	if m != nil {
		m.blockGap.Set(float64(gap))
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

// ObserveScore records the latency (always, even over budget) and the score.
func (m *Metrics) ObserveScore(score float64, latency time.Duration, overBudget bool) {
	if m == nil {
		return
	}
	m.scoreLatency.Observe(latency.Seconds())
	m.scores.Observe(score)
	if overBudget {
		m.budgetExceeded.Inc()
	}
}

func (m *Metrics) DetectorTrigger(code string) {
	if m != nil {
		m.detectorTriggers.WithLabelValues(code).Inc()
	}
}

// StartServer exposes the registry over HTTP. Call StopServer on shutdown.
func (m *Metrics) StartServer(addr, path string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger := logging.For("metrics")
	go func() {
		logger.Info().Str("addr", addr).Str("path", path).Msg("metrics server listening")
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
}

func (m *Metrics) StopServer() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server != nil {
		return m.server.Close()
	}
	return nil
}

// promauto-ish helper bound to the private registry.
type promauto struct {
	reg *prometheus.Registry
	ns  string
}

func (f promauto) counter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: f.ns, Name: name, Help: help})
	f.reg.MustRegister(c)
	return c
}

func (f promauto) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: f.ns, Name: name, Help: help}, labels)
	f.reg.MustRegister(c)
	return c
}

func (f promauto) gauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: f.ns, Name: name, Help: help})
	f.reg.MustRegister(g)
	return g
}

func (f promauto) histogram(name, help string, buckets []float64) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: f.ns, Name: name, Help: help, Buckets: buckets})
	f.reg.MustRegister(h)
	return h
}
