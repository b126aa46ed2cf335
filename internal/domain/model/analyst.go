// Package model contains domain models passed between layers.
package model

import (
	"slices"
	"time"
)

// Tier is a label derived from an analyst's score and experience. It is
// recomputed whenever the score or call count changes, never set directly.
type Tier string

const (
	TierNew     Tier = "NEW"
	TierRising  Tier = "RISING"
	TierTopTier Tier = "TOP_TIER"
)

// Analyst is a rated source of recommendations.
type Analyst struct {
	ID              string
	DisplayName     string
	Firm            string
	Specializations []string
	// Score is kept within [0, 100].
	Score float64
	// LifetimeCalls counts evaluated recommendations.
	LifetimeCalls int
	Tier          Tier
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone returns a copy that shares no slices with a.
func (a Analyst) Clone() Analyst {
	a.Specializations = slices.Clone(a.Specializations)
	return a
}
