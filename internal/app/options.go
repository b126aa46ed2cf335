package service

import (
	"time"

	"github.com/okian/callscore/internal/config"
	"github.com/okian/callscore/internal/domain/pricing"
	"github.com/okian/callscore/internal/domain/store"
	"github.com/okian/callscore/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration; defaults to config.New().
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore injects a store instead of building one from the config. The
// caller keeps ownership; Stop leaves it open.
func WithStore(st store.Store) Option {
	return func(s *Service) {
		s.store = st
	}
}

// WithOracle injects a price oracle instead of building one from the config.
func WithOracle(o pricing.Oracle) Option {
	return func(s *Service) {
		s.oracle = o
	}
}

// WithClock overrides the time source used for scheduled runs and records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
