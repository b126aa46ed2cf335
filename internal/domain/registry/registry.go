// Package registry manages analysts: creation with validated defaults,
// lookups, leaderboards and performance profiles.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/callscore/internal/domain/model"
	"github.com/okian/callscore/internal/domain/scoring"
	"github.com/okian/callscore/internal/domain/store"
	"github.com/okian/callscore/pkg/logger"
	"github.com/okian/callscore/pkg/metrics"
)

const defaultRecentLimit = 20

// Store is the subset of store.Store the registry reads and writes.
type Store interface {
	InsertAnalyst(ctx context.Context, a *model.Analyst) error
	GetAnalyst(ctx context.Context, id string) (model.Analyst, error)
	ListAnalysts(ctx context.Context, q store.AnalystQuery) ([]model.Analyst, error)
	AnalystRank(ctx context.Context, id string) (int, error)
	FindRecommendations(ctx context.Context, f store.RecommendationFilter) ([]model.Recommendation, error)
	FindEvaluations(ctx context.Context, f store.EvaluationFilter) ([]model.Evaluation, error)
}

// NewAnalyst is the input of CreateAnalyst. A nil InitialScore selects the
// configured initial score.
type NewAnalyst struct {
	DisplayName     string
	Firm            string
	Specializations []string
	InitialScore    *float64
}

// Registry is the analyst service.
type Registry struct {
	store  Store
	params scoring.Params
	now    func() time.Time
	logger logger.Logger
}

// New creates a registry over st.
func New(st Store, opts ...Option) *Registry {
	r := &Registry{
		store:  st,
		params: scoring.DefaultParams(),
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateAnalyst validates in and persists a fresh analyst with zero calls and
// the NEW tier.
func (r *Registry) CreateAnalyst(ctx context.Context, in NewAnalyst) (model.Analyst, error) {
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return model.Analyst{}, fmt.Errorf("display name is required: %w", model.ErrInvalidArgument)
	}

	score := r.params.InitialScore
	if in.InitialScore != nil {
		score = *in.InitialScore
		if math.IsNaN(score) || score < r.params.MinScore || score > r.params.MaxScore {
			return model.Analyst{}, fmt.Errorf("initial score %g outside [%g, %g]: %w",
				score, r.params.MinScore, r.params.MaxScore, model.ErrInvalidArgument)
		}
	}

	var specs []string
	for _, s := range in.Specializations {
		if s = strings.TrimSpace(s); s != "" {
			specs = append(specs, s)
		}
	}

	now := r.now().UTC()
	a := model.Analyst{
		DisplayName:     name,
		Firm:            strings.TrimSpace(in.Firm),
		Specializations: specs,
		Score:           score,
		Tier:            r.DeriveTier(score, 0),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.store.InsertAnalyst(ctx, &a); err != nil {
		return model.Analyst{}, fmt.Errorf("create analyst: %w", err)
	}

	metrics.RecordAnalystCreated()
	r.logger.Info(ctx, "analyst created",
		logger.String("analyst_id", a.ID),
		logger.String("display_name", a.DisplayName),
		logger.Float64("score", a.Score))
	return a, nil
}

// GetAnalyst returns the analyst with id or an error wrapping
// model.ErrNotFound.
func (r *Registry) GetAnalyst(ctx context.Context, id string) (model.Analyst, error) {
	if strings.TrimSpace(id) == "" {
		return model.Analyst{}, fmt.Errorf("analyst id is required: %w", model.ErrInvalidArgument)
	}
	return r.store.GetAnalyst(ctx, id)
}

// ListTopAnalysts returns up to limit analysts sorted descending by orderBy
// ("score" or "lifetimeCalls"; empty means score). Ties break by id.
func (r *Registry) ListTopAnalysts(ctx context.Context, limit int, orderBy string) ([]model.Analyst, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit %d must be positive: %w", limit, model.ErrInvalidArgument)
	}
	order, err := ParseOrder(orderBy)
	if err != nil {
		return nil, err
	}
	return r.store.ListAnalysts(ctx, store.AnalystQuery{OrderBy: order, Limit: limit})
}

// ParseOrder maps a query value to a store ordering.
func ParseOrder(orderBy string) (store.AnalystOrder, error) {
	switch store.AnalystOrder(strings.TrimSpace(orderBy)) {
	case "", store.OrderByScore:
		return store.OrderByScore, nil
	case store.OrderByLifetimeCalls:
		return store.OrderByLifetimeCalls, nil
	default:
		return "", fmt.Errorf("unknown order %q: %w", orderBy, model.ErrInvalidArgument)
	}
}

// DeriveTier labels an analyst from score and experience.
func (r *Registry) DeriveTier(score float64, lifetimeCalls int) model.Tier {
	return r.params.Tier(score, lifetimeCalls)
}

// Summary aggregates an analyst's track record.
type Summary struct {
	TotalCalls      int
	OpenCalls       int
	Correct         int
	Neutral         int
	Incorrect       int
	HitRate         float64
	AvgAlpha        float64
	TotalScoreDelta float64
	LastEvaluatedAt time.Time
}

// Profile is an analyst with rank, recent activity and summary.
type Profile struct {
	Analyst model.Analyst
	// Rank is the 1-based leaderboard position by score; 0 when unknown.
	Rank                  int
	RecentRecommendations []model.Recommendation
	Evaluations           []model.Evaluation
	Summary               Summary
}

// Profile assembles the analyst's profile. recentLimit bounds both the
// recent recommendations and the listed evaluations; the summary covers the
// full history. A non-positive recentLimit selects 20.
func (r *Registry) Profile(ctx context.Context, id string, recentLimit int) (Profile, error) {
	if recentLimit <= 0 {
		recentLimit = defaultRecentLimit
	}

	a, err := r.GetAnalyst(ctx, id)
	if err != nil {
		return Profile{}, err
	}

	rank, err := r.store.AnalystRank(ctx, id)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return Profile{}, fmt.Errorf("rank analyst: %w", err)
		}
		rank = 0
	}

	recs, err := r.store.FindRecommendations(ctx, store.RecommendationFilter{AnalystID: id, NewestFirst: true})
	if err != nil {
		return Profile{}, fmt.Errorf("load recommendations: %w", err)
	}
	evals, err := r.store.FindEvaluations(ctx, store.EvaluationFilter{AnalystID: id})
	if err != nil {
		return Profile{}, fmt.Errorf("load evaluations: %w", err)
	}

	return Profile{
		Analyst:               a,
		Rank:                  rank,
		RecentRecommendations: head(recs, recentLimit),
		Evaluations:           head(evals, recentLimit),
		Summary:               summarize(recs, evals),
	}, nil
}

// summarize expects evals newest first.
func summarize(recs []model.Recommendation, evals []model.Evaluation) Summary {
	s := Summary{TotalCalls: len(recs)}
	for _, rec := range recs {
		if rec.Status == model.StatusOpen {
			s.OpenCalls++
		}
	}

	var alphaSum float64
	for _, e := range evals {
		switch e.Outcome {
		case model.OutcomeCorrect:
			s.Correct++
		case model.OutcomeNeutral:
			s.Neutral++
		case model.OutcomeIncorrect:
			s.Incorrect++
		}
		alphaSum += e.Alpha
		s.TotalScoreDelta += e.ScoreDelta
	}
	if n := len(evals); n > 0 {
		s.HitRate = float64(s.Correct) / float64(n)
		s.AvgAlpha = alphaSum / float64(n)
		s.LastEvaluatedAt = evals[0].CreatedAt
	}
	return s
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
