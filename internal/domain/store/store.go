// Package store defines the persistence port of the engine: three logical
// collections (analysts, recommendations, evaluations) with filtered queries
// and atomic read-modify-write transactions.
package store

import (
	"context"
	"time"

	"github.com/okian/callscore/internal/domain/model"
)

// AnalystOrder selects the descending sort key of ListAnalysts.
type AnalystOrder string

const (
	OrderByScore         AnalystOrder = "score"
	OrderByLifetimeCalls AnalystOrder = "lifetimeCalls"
)

// AnalystQuery lists analysts sorted descending by OrderBy, ties by ID.
type AnalystQuery struct {
	OrderBy AnalystOrder
	// Limit <= 0 means no limit.
	Limit int
}

// RecommendationFilter narrows FindRecommendations. Zero fields do not filter.
type RecommendationFilter struct {
	Status       model.Status
	Ticker       string
	AnalystID    string
	CreatedSince time.Time
	// NewestFirst sorts by CreatedAt descending; the default is T0 ascending.
	NewestFirst bool
	Limit       int
}

// EvaluationFilter narrows FindEvaluations. Results are newest first.
type EvaluationFilter struct {
	RecommendationID string
	AnalystID        string
	Limit            int
}

// Store is the persistent store consumed by the engine. Get methods return
// errors wrapping model.ErrNotFound for unknown ids.
type Store interface {
	// InsertAnalyst assigns a.ID when empty and persists a.
	InsertAnalyst(ctx context.Context, a *model.Analyst) error
	GetAnalyst(ctx context.Context, id string) (model.Analyst, error)
	ListAnalysts(ctx context.Context, q AnalystQuery) ([]model.Analyst, error)
	// AnalystRank is the 1-based position of id by score descending.
	AnalystRank(ctx context.Context, id string) (int, error)
	CountAnalysts(ctx context.Context) (int, error)

	// InsertRecommendation assigns r.ID when empty and persists r.
	InsertRecommendation(ctx context.Context, r *model.Recommendation) error
	GetRecommendation(ctx context.Context, id string) (model.Recommendation, error)
	FindRecommendations(ctx context.Context, f RecommendationFilter) ([]model.Recommendation, error)

	FindEvaluations(ctx context.Context, f EvaluationFilter) ([]model.Evaluation, error)

	// RunInTx runs fn atomically. Either every write made through tx becomes
	// visible or none does. Contention surfaces as model.ErrConflict; the
	// caller decides whether to retry.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is the read-modify-write view inside RunInTx. Reads observe the
// transaction's own writes.
type Tx interface {
	GetAnalyst(id string) (model.Analyst, error)
	PutAnalyst(a model.Analyst) error
	GetRecommendation(id string) (model.Recommendation, error)
	PutRecommendation(r model.Recommendation) error
	// InsertEvaluation assigns e.ID when empty. A second evaluation for the
	// same recommendation fails with model.ErrConflict.
	InsertEvaluation(e *model.Evaluation) error
}
