// Package config defines service configuration structures and loading hooks.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// CALLSCORE_* environment variables (with a .env file loaded first).
package config

import (
	"time"

	"github.com/okian/callscore/internal/domain/benchmark"
	"github.com/okian/callscore/internal/domain/consensus"
	"github.com/okian/callscore/internal/domain/scoring"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

// Oracle drivers.
const (
	OracleHTTP   = "http"
	OracleStatic = "static"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// MaxListLimit caps GET /analysts?limit.
	MaxListLimit int `koanf:"max_list_limit" validate:"gt=0"`

	Idempotency IdempotencyConfig `koanf:"idempotency"`

	Store      StoreConfig      `koanf:"store"`
	Oracle     OracleConfig     `koanf:"oracle"`
	Evaluator  EvaluatorConfig  `koanf:"evaluator"`
	Scoring    scoring.Params   `koanf:"scoring"`
	Benchmarks BenchmarkConfig  `koanf:"benchmarks"`
	Consensus  consensus.Params `koanf:"consensus"`
	Tracing    TracingConfig    `koanf:"tracing"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `koanf:"driver" validate:"oneof=memory badger"`
	// Path is the Badger directory; empty runs Badger in memory.
	Path string `koanf:"path"`
}

// OracleConfig configures price lookups.
type OracleConfig struct {
	Driver  string `koanf:"driver" validate:"oneof=http static"`
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`
	// Timeout bounds every single price lookup.
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	RatePerSecond   float64       `koanf:"rate_per_second" validate:"gt=0"`
	Burst           int           `koanf:"burst" validate:"gt=0"`
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gt=0"`
	BreakerOpenFor  time.Duration `koanf:"breaker_open_for" validate:"gt=0"`

	Cache CacheConfig `koanf:"cache"`

	// StaticPrices seeds the static driver: symbol -> observations.
	StaticPrices map[string][]PricePoint `koanf:"static_prices" validate:"dive,dive"`
}

// PricePoint is one seeded observation. At is RFC3339.
type PricePoint struct {
	At    string  `koanf:"at" validate:"required"`
	Price float64 `koanf:"price" validate:"gt=0"`
}

// CacheConfig enables the Redis price cache when Addr is set.
type CacheConfig struct {
	Addr     string        `koanf:"addr" validate:"omitempty,hostname_port"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db" validate:"gte=0"`
	TTL      time.Duration `koanf:"ttl" validate:"gt=0"`
}

// EvaluatorConfig schedules evaluation runs.
type EvaluatorConfig struct {
	// Workers bounds how many analysts are evaluated concurrently.
	Workers int `koanf:"workers" validate:"gt=0"`
	// Schedule is a cron spec; "@every 1h" style descriptors are accepted.
	Schedule   string `koanf:"schedule" validate:"required"`
	RunOnStart bool   `koanf:"run_on_start"`
}

// BenchmarkConfig maps sectors to benchmark symbols.
type BenchmarkConfig struct {
	Default string            `koanf:"default" validate:"required"`
	Sectors map[string]string `koanf:"sectors"`
}

// Table builds the lookup table.
func (b BenchmarkConfig) Table() benchmark.Table {
	return benchmark.NewTable(b.Sectors, b.Default)
}

// IdempotencyConfig bounds the Idempotency-Key cache of POST /recommendations.
type IdempotencyConfig struct {
	// MaxKeys of zero keeps every key.
	MaxKeys int           `koanf:"max_keys" validate:"gte=0"`
	TTL     time.Duration `koanf:"ttl" validate:"gte=0"`
}

// MetricsConfig toggles the Prometheus recorders. /metrics is served either way.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// TracingConfig toggles span export to stdout.
type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "text",
		Addr:         ":9080",
		MaxListLimit: 100,
		Idempotency: IdempotencyConfig{
			MaxKeys: 50000,
			TTL:     24 * time.Hour,
		},
		Store: StoreConfig{
			Driver: StoreMemory,
		},
		Oracle: OracleConfig{
			Driver:          OracleStatic,
			Timeout:         10 * time.Second,
			RatePerSecond:   10,
			Burst:           10,
			BreakerFailures: 5,
			BreakerOpenFor:  30 * time.Second,
			Cache: CacheConfig{
				TTL: 24 * time.Hour,
			},
		},
		Evaluator: EvaluatorConfig{
			Workers:  8,
			Schedule: "@every 1h",
		},
		Scoring: scoring.DefaultParams(),
		Benchmarks: BenchmarkConfig{
			Default: benchmark.DefaultSymbol,
			Sectors: benchmark.DefaultSectors(),
		},
		Consensus: consensus.DefaultParams(),
		Tracing: TracingConfig{
			ServiceName: "callscore",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
