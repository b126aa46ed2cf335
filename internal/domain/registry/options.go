package registry

import (
	"time"

	"github.com/okian/callscore/internal/domain/scoring"
	"github.com/okian/callscore/pkg/logger"
)

// Option configures a Registry.
type Option func(*Registry)

// WithParams sets the scoring configuration used for defaults and tiers.
func WithParams(p scoring.Params) Option {
	return func(r *Registry) {
		r.params = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}
