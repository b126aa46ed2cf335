package ledger

import (
	"time"

	"github.com/okian/callscore/internal/domain/benchmark"
	"github.com/okian/callscore/internal/domain/scoring"
	"github.com/okian/callscore/pkg/logger"
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithParams sets the scoring configuration supplying defaults.
func WithParams(p scoring.Params) Option {
	return func(l *Ledger) {
		l.params = p
	}
}

// WithBenchmarks sets the sector to benchmark table.
func WithBenchmarks(t benchmark.Table) Option {
	return func(l *Ledger) {
		l.benchmarks = t
	}
}

// WithOracleTimeout bounds the entry price lookup.
func WithOracleTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.oracleTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Ledger) {
		if lg != nil {
			l.logger = lg
		}
	}
}
