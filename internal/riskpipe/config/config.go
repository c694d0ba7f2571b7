package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	RiskPipe RiskPipeConfig `yaml:"riskpipe"`
}

// RiskPipeConfig is the project configuration.
type RiskPipeConfig struct {
	Connectors ConnectorsConfig `yaml:"connectors"`
	Temporal   TemporalConfig   `yaml:"temporal"`
	Graph      GraphConfig      `yaml:"graph"`
	Detectors  DetectorsConfig  `yaml:"detectors"`
	Ensemble   EnsembleConfig   `yaml:"ensemble"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Sink       SinkConfig       `yaml:"sink"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ConnectorsConfig controls the ingestion side.
type ConnectorsConfig struct {
	MempoolWSURL  string        `yaml:"mempool_ws_url"`
	RPCURL        string        `yaml:"rpc_url"`
	Confirmations int64         `yaml:"confirmations"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	RPCTimeout    time.Duration `yaml:"rpc_timeout"`
	MaxRetries    int           `yaml:"max_retries"`

	Checkpoint CheckpointConfig `yaml:"checkpoint"`

	QueueSize int `yaml:"queue_size"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend string      `yaml:"backend"` // "file" or "redis"
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig controls the redis-backed checkpoint store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// TemporalConfig controls the sliding windows.
type TemporalConfig struct {
	WindowSec int64 `yaml:"window_sec"`
}

// GraphConfig controls the interaction graph.
type GraphConfig struct {
	WindowSec int64 `yaml:"window_sec"`
	CycleHops int   `yaml:"cycle_hops"` // neighborhood bound for cycle search
	MaxKHop   int   `yaml:"max_k_hop"`
}

// DetectorsConfig groups the per-detector thresholds. Every numeric constant
// the detectors use lives here.
type DetectorsConfig struct {
	FlashLoan FlashLoanConfig `yaml:"flash_loan"`
	MintBurn  MintBurnConfig  `yaml:"mint_burn"`
	Bridge    BridgeConfig    `yaml:"bridge"`
}

type FlashLoanConfig struct {
	WindowSec         int64   `yaml:"window_sec"`
	BurstThreshold    float64 `yaml:"burst_threshold"`     // multiple of baseline mean
	MinValueThreshold float64 `yaml:"min_value_threshold"`
	RepayTolerance    float64 `yaml:"repay_tolerance"`     // relative value tolerance
	RepayWindowSec    int64   `yaml:"repay_window_sec"`
	OriginBurstCount  int     `yaml:"origin_burst_count"`
	OriginBurstSec    int64   `yaml:"origin_burst_sec"`
	BlockBurstCount   int     `yaml:"block_burst_count"`
}

type MintBurnConfig struct {
	WindowSec          int64   `yaml:"window_sec"`
	SpikeSigma         float64 `yaml:"spike_sigma"`
	MinBaselineSamples int     `yaml:"min_baseline_samples"`
	RecentSec          int64   `yaml:"recent_sec"`
	RatioHigh          float64 `yaml:"ratio_high"`
	RatioLow           float64 `yaml:"ratio_low"`
	OneSidedVolume     float64 `yaml:"one_sided_volume"`
	CoordTokens        int     `yaml:"coord_tokens"`
	CoordMinAmount     float64 `yaml:"coord_min_amount"`
}

type BridgeConfig struct {
	WindowSec       int64    `yaml:"window_sec"`
	MinValue        float64  `yaml:"min_value"`
	StaticHighValue float64  `yaml:"static_high_value"`
	HighValueFloor  float64  `yaml:"high_value_floor"`
	HighValueSigma  float64  `yaml:"high_value_sigma"`
	HopCount        int      `yaml:"hop_count"`
	HopWindowSec    int64    `yaml:"hop_window_sec"`
	PrepIndicators  int      `yaml:"prep_indicators"`
	PrepWindowSec   int64    `yaml:"prep_window_sec"`
	PrepGasLimit    int64    `yaml:"prep_gas_limit"`
	KnownBridges    []string `yaml:"known_bridges"`
	NamePatterns    []string `yaml:"name_patterns"`
}

// EnsembleConfig controls model loading and score combination.
type EnsembleConfig struct {
	AnomalyArtifact    string  `yaml:"anomaly_artifact"`
	ClassifierArtifact string  `yaml:"classifier_artifact"`
	AnomalyWeight      float64 `yaml:"anomaly_weight"`
	ClassifierWeight   float64 `yaml:"classifier_weight"`
	ReasonThreshold    float64 `yaml:"reason_threshold"`
	SubModelThreshold  float64 `yaml:"sub_model_threshold"`

	CombineAnomalyWeight    float64 `yaml:"combine_anomaly_weight"`
	CombineClassifierWeight float64 `yaml:"combine_classifier_weight"`
	CombineGraphWeight      float64 `yaml:"combine_graph_weight"`
}

// ScoringConfig controls the orchestrator.
type ScoringConfig struct {
	LatencyBudget time.Duration `yaml:"latency_budget"`
	ModelVersion  string        `yaml:"model_version"`
}

// DedupConfig controls duplicate suppression.
type DedupConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RocksPath string `yaml:"rocks_path"` // empty = in-memory only
	BucketSec int64  `yaml:"bucket_sec"`
}

// SinkConfig controls where score results go.
type SinkConfig struct {
	Mode    string `yaml:"mode"` // "log", "kafka", "postgres"
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
	PGDSN   string `yaml:"pg_dsn"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Load reads a YAML config file and applies defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a config with every default applied and no file read.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	r := &c.RiskPipe

	if r.Connectors.Confirmations <= 0 {
		r.Connectors.Confirmations = 12
	}
	if r.Connectors.PollInterval <= 0 {
		r.Connectors.PollInterval = 5 * time.Second
	}
	if r.Connectors.RPCTimeout <= 0 {
		r.Connectors.RPCTimeout = 10 * time.Second
	}
	if r.Connectors.MaxRetries <= 0 {
		r.Connectors.MaxRetries = 10
	}
	if r.Connectors.QueueSize <= 0 {
		r.Connectors.QueueSize = 4096
	}
	if r.Connectors.Checkpoint.Backend == "" {
		r.Connectors.Checkpoint.Backend = "file"
	}
	if r.Connectors.Checkpoint.Path == "" {
		r.Connectors.Checkpoint.Path = "./data/blocks.ckpt"
	}
	if r.Connectors.Checkpoint.Redis.Key == "" {
		r.Connectors.Checkpoint.Redis.Key = "riskpipe:blocks:ckpt"
	}

	if r.Temporal.WindowSec <= 0 {
		r.Temporal.WindowSec = 300
	}
	if r.Graph.WindowSec <= 0 {
		r.Graph.WindowSec = 300
	}
	if r.Graph.CycleHops <= 0 {
		r.Graph.CycleHops = 2
	}
	if r.Graph.MaxKHop <= 0 {
		r.Graph.MaxKHop = 3
	}

	fl := &r.Detectors.FlashLoan
	if fl.WindowSec <= 0 {
		fl.WindowSec = 600
	}
	if fl.BurstThreshold <= 0 {
		fl.BurstThreshold = 5.0
	}
	if fl.MinValueThreshold <= 0 {
		fl.MinValueThreshold = 100.0
	}
	if fl.RepayTolerance <= 0 {
		fl.RepayTolerance = 0.1
	}
	if fl.RepayWindowSec <= 0 {
		fl.RepayWindowSec = 300
	}
	if fl.OriginBurstCount <= 0 {
		fl.OriginBurstCount = 3
	}
	if fl.OriginBurstSec <= 0 {
		fl.OriginBurstSec = 60
	}
	if fl.BlockBurstCount <= 0 {
		fl.BlockBurstCount = 3
	}

	mb := &r.Detectors.MintBurn
	if mb.WindowSec <= 0 {
		mb.WindowSec = 600
	}
	if mb.SpikeSigma <= 0 {
		mb.SpikeSigma = 3.0
	}
	if mb.MinBaselineSamples <= 0 {
		mb.MinBaselineSamples = 10
	}
	if mb.RecentSec <= 0 {
		mb.RecentSec = 300
	}
	if mb.RatioHigh <= 0 {
		mb.RatioHigh = 10.0
	}
	if mb.RatioLow <= 0 {
		mb.RatioLow = 0.1
	}
	if mb.OneSidedVolume <= 0 {
		mb.OneSidedVolume = 1000.0
	}
	if mb.CoordTokens <= 0 {
		mb.CoordTokens = 3
	}
	if mb.CoordMinAmount <= 0 {
		mb.CoordMinAmount = 100.0
	}

	br := &r.Detectors.Bridge
	if br.WindowSec <= 0 {
		br.WindowSec = 1800
	}
	if br.MinValue <= 0 {
		br.MinValue = 1.0
	}
	if br.StaticHighValue <= 0 {
		br.StaticHighValue = 100.0
	}
	if br.HighValueFloor <= 0 {
		br.HighValueFloor = 50.0
	}
	if br.HighValueSigma <= 0 {
		br.HighValueSigma = 3.0
	}
	if br.HopCount <= 0 {
		br.HopCount = 3
	}
	if br.HopWindowSec <= 0 {
		br.HopWindowSec = 600
	}
	if br.PrepIndicators <= 0 {
		br.PrepIndicators = 2
	}
	if br.PrepWindowSec <= 0 {
		br.PrepWindowSec = 1800
	}
	if br.PrepGasLimit <= 0 {
		br.PrepGasLimit = 200000
	}
	if len(br.NamePatterns) == 0 {
		br.NamePatterns = []string{"bridge", "portal", "gateway", "router", "relay"}
	}

	en := &r.Ensemble
	if en.AnomalyWeight <= 0 {
		en.AnomalyWeight = 0.4
	}
	if en.ClassifierWeight <= 0 {
		en.ClassifierWeight = 0.6
	}
	if en.ReasonThreshold <= 0 {
		en.ReasonThreshold = 0.7
	}
	if en.SubModelThreshold <= 0 {
		en.SubModelThreshold = 0.6
	}
	if en.CombineAnomalyWeight <= 0 {
		en.CombineAnomalyWeight = 0.4
	}
	if en.CombineClassifierWeight <= 0 {
		en.CombineClassifierWeight = 0.4
	}
	if en.CombineGraphWeight <= 0 {
		en.CombineGraphWeight = 0.2
	}

	if r.Scoring.LatencyBudget <= 0 {
		r.Scoring.LatencyBudget = 100 * time.Millisecond
	}
	if r.Scoring.ModelVersion == "" {
		r.Scoring.ModelVersion = "v0.1.0"
	}

	if r.Dedup.BucketSec <= 0 {
		r.Dedup.BucketSec = 3600
	}

	if r.Sink.Mode == "" {
		r.Sink.Mode = "log"
	}
	if r.Sink.Topic == "" {
		r.Sink.Topic = "riskpipe.scores"
	}

	if r.Metrics.Addr == "" {
		r.Metrics.Addr = ":9090"
	}
	if r.Metrics.Path == "" {
		r.Metrics.Path = "/metrics"
	}

	if r.Logging.Level == "" {
		r.Logging.Level = "info"
	}
}

// MaxHorizonSec returns the largest retention horizon any component uses.
// Dedup TTLs key off this so an entry outlives every window that saw it.
func (c *Config) MaxHorizonSec() int64 {
	r := &c.RiskPipe
	m := r.Temporal.WindowSec
	for _, v := range []int64{
		r.Graph.WindowSec,
		r.Detectors.FlashLoan.WindowSec,
		r.Detectors.MintBurn.WindowSec,
		r.Detectors.Bridge.WindowSec,
	} {
		if v > m {
			m = v
		}
	}
	return m
}
