// Package repository implements the store port: an in-memory store for tests
// and single-process deployments, and a Badger-backed durable store.
package repository

import (
	"github.com/google/uuid"

	"github.com/okian/callscore/pkg/logger"
)

// settings holds options shared by every store implementation.
type settings struct {
	newID  func() string
	logger logger.Logger
}

func defaultSettings() settings {
	return settings{
		newID:  uuid.NewString,
		logger: logger.Nop(),
	}
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithIDGenerator replaces the UUID generator, mostly for deterministic tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *settings) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}
