package evaluator

import (
	"time"

	"github.com/okian/callscore/internal/adapters/mq/worker"
	"github.com/okian/callscore/internal/domain/scoring"
	"github.com/okian/callscore/pkg/logger"
)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithParams sets the scoring configuration.
func WithParams(p scoring.Params) Option {
	return func(e *Evaluator) {
		e.params = p
	}
}

// WithWorkers bounds how many analysts are evaluated concurrently.
func WithWorkers(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithOracleTimeout bounds each individual price lookup.
func WithOracleTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.oracleTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPool replaces the lane pool built from WithWorkers.
func WithPool(p *worker.Pool) Option {
	return func(e *Evaluator) {
		e.pool = p
	}
}
