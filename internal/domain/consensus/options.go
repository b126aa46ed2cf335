package consensus

import (
	"time"

	"github.com/okian/callscore/pkg/logger"
)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithParams sets the weighting configuration.
func WithParams(p Params) Option {
	return func(a *Aggregator) {
		a.params = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}
