package repository

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/okian/callscore/internal/domain/model"
	"github.com/okian/callscore/internal/domain/store"
)

func matchRecommendation(r *model.Recommendation, f store.RecommendationFilter) bool {
	switch {
	case f.Status != "" && r.Status != f.Status:
		return false
	case f.Ticker != "" && r.Ticker != f.Ticker:
		return false
	case f.AnalystID != "" && r.AnalystID != f.AnalystID:
		return false
	case !f.CreatedSince.IsZero() && r.CreatedAt.Before(f.CreatedSince):
		return false
	}
	return true
}

func sortRecommendations(recs []model.Recommendation, newestFirst bool) {
	if newestFirst {
		slices.SortFunc(recs, func(a, b model.Recommendation) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		return
	}
	slices.SortFunc(recs, func(a, b model.Recommendation) int {
		if c := a.T0.Compare(b.T0); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func sortEvaluations(evals []model.Evaluation) {
	slices.SortFunc(evals, func(a, b model.Evaluation) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func sortAnalysts(analysts []model.Analyst, order store.AnalystOrder) error {
	switch order {
	case store.OrderByScore, "":
		slices.SortFunc(analysts, func(a, b model.Analyst) int {
			if c := cmp.Compare(b.Score, a.Score); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
	case store.OrderByLifetimeCalls:
		slices.SortFunc(analysts, func(a, b model.Analyst) int {
			if c := cmp.Compare(b.LifetimeCalls, a.LifetimeCalls); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
	default:
		return fmt.Errorf("unknown analyst order %q: %w", order, model.ErrInvalidArgument)
	}
	return nil
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
