package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/callscore/internal/domain/model"
	"github.com/okian/callscore/internal/domain/store"
)

var _ store.Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store. Transactions are serialized behind a
// single write lock and stage their writes until fn returns nil, so they
// never conflict and never expose partial state.
type MemoryStore struct {
	mu       sync.RWMutex
	analysts map[string]model.Analyst
	recs     map[string]model.Recommendation
	// evals is keyed by recommendation id; one evaluation per recommendation.
	evals   map[string]model.Evaluation
	ranking *ranking

	settings
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		analysts: make(map[string]model.Analyst),
		recs:     make(map[string]model.Recommendation),
		evals:    make(map[string]model.Evaluation),
		ranking:  newRanking(),
		settings: defaultSettings(),
	}
	for _, opt := range opts {
		opt(&s.settings)
	}
	return s
}

// InsertAnalyst implements store.Store.
func (s *MemoryStore) InsertAnalyst(ctx context.Context, a *model.Analyst) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = s.newID()
	}
	if _, ok := s.analysts[a.ID]; ok {
		return fmt.Errorf("analyst %s exists: %w", a.ID, model.ErrConflict)
	}
	s.analysts[a.ID] = a.Clone()
	s.ranking.upsert(a.ID, a.Score)
	return nil
}

// GetAnalyst implements store.Store.
func (s *MemoryStore) GetAnalyst(ctx context.Context, id string) (model.Analyst, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.analysts[id]
	if !ok {
		return model.Analyst{}, fmt.Errorf("analyst %s: %w", id, model.ErrNotFound)
	}
	return a.Clone(), nil
}

// ListAnalysts implements store.Store. Score ordering is served from the
// ranking index without a full sort.
func (s *MemoryStore) ListAnalysts(ctx context.Context, q store.AnalystQuery) ([]model.Analyst, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if q.OrderBy == store.OrderByScore || q.OrderBy == "" {
		ids := s.ranking.top(q.Limit)
		out := make([]model.Analyst, 0, len(ids))
		for _, id := range ids {
			out = append(out, s.analysts[id].Clone())
		}
		return out, nil
	}

	out := make([]model.Analyst, 0, len(s.analysts))
	for _, a := range s.analysts {
		out = append(out, a.Clone())
	}
	if err := sortAnalysts(out, q.OrderBy); err != nil {
		return nil, err
	}
	return limit(out, q.Limit), nil
}

// AnalystRank implements store.Store.
func (s *MemoryStore) AnalystRank(ctx context.Context, id string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.ranking.rank(id)
	if !ok {
		return 0, fmt.Errorf("analyst %s: %w", id, model.ErrNotFound)
	}
	return r, nil
}

// CountAnalysts implements store.Store.
func (s *MemoryStore) CountAnalysts(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ranking.len(), nil
}

// InsertRecommendation implements store.Store.
func (s *MemoryStore) InsertRecommendation(ctx context.Context, r *model.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = s.newID()
	}
	if _, ok := s.recs[r.ID]; ok {
		return fmt.Errorf("recommendation %s exists: %w", r.ID, model.ErrConflict)
	}
	s.recs[r.ID] = r.Clone()
	return nil
}

// GetRecommendation implements store.Store.
func (s *MemoryStore) GetRecommendation(ctx context.Context, id string) (model.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recs[id]
	if !ok {
		return model.Recommendation{}, fmt.Errorf("recommendation %s: %w", id, model.ErrNotFound)
	}
	return r.Clone(), nil
}

// FindRecommendations implements store.Store.
func (s *MemoryStore) FindRecommendations(ctx context.Context, f store.RecommendationFilter) ([]model.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Recommendation, 0)
	for _, r := range s.recs {
		if matchRecommendation(&r, f) {
			out = append(out, r.Clone())
		}
	}
	sortRecommendations(out, f.NewestFirst)
	return limit(out, f.Limit), nil
}

// FindEvaluations implements store.Store.
func (s *MemoryStore) FindEvaluations(ctx context.Context, f store.EvaluationFilter) ([]model.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Evaluation, 0)
	for _, e := range s.evals {
		if f.RecommendationID != "" && e.RecommendationID != f.RecommendationID {
			continue
		}
		if f.AnalystID != "" && e.AnalystID != f.AnalystID {
			continue
		}
		out = append(out, e)
	}
	sortEvaluations(out)
	return limit(out, f.Limit), nil
}

// RunInTx implements store.Store.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		s:        s,
		analysts: make(map[string]model.Analyst),
		recs:     make(map[string]model.Recommendation),
		evals:    make(map[string]model.Evaluation),
	}
	if err := fn(tx); err != nil {
		return err
	}

	// Commit.
	for id, a := range tx.analysts {
		s.analysts[id] = a
		s.ranking.upsert(id, a.Score)
	}
	for id, r := range tx.recs {
		s.recs[id] = r
	}
	for recID, e := range tx.evals {
		s.evals[recID] = e
	}
	return nil
}

// Close implements store.Store.
func (s *MemoryStore) Close() error {
	return nil
}

// memTx stages writes; the parent lock is held for its whole life.
type memTx struct {
	s        *MemoryStore
	analysts map[string]model.Analyst
	recs     map[string]model.Recommendation
	evals    map[string]model.Evaluation
}

func (t *memTx) GetAnalyst(id string) (model.Analyst, error) {
	if a, ok := t.analysts[id]; ok {
		return a.Clone(), nil
	}
	a, ok := t.s.analysts[id]
	if !ok {
		return model.Analyst{}, fmt.Errorf("analyst %s: %w", id, model.ErrNotFound)
	}
	return a.Clone(), nil
}

func (t *memTx) PutAnalyst(a model.Analyst) error {
	if a.ID == "" {
		return fmt.Errorf("analyst without id: %w", model.ErrInvalidArgument)
	}
	t.analysts[a.ID] = a.Clone()
	return nil
}

func (t *memTx) GetRecommendation(id string) (model.Recommendation, error) {
	if r, ok := t.recs[id]; ok {
		return r.Clone(), nil
	}
	r, ok := t.s.recs[id]
	if !ok {
		return model.Recommendation{}, fmt.Errorf("recommendation %s: %w", id, model.ErrNotFound)
	}
	return r.Clone(), nil
}

func (t *memTx) PutRecommendation(r model.Recommendation) error {
	if r.ID == "" {
		return fmt.Errorf("recommendation without id: %w", model.ErrInvalidArgument)
	}
	t.recs[r.ID] = r.Clone()
	return nil
}

func (t *memTx) InsertEvaluation(e *model.Evaluation) error {
	if e.RecommendationID == "" {
		return fmt.Errorf("evaluation without recommendation: %w", model.ErrInvalidArgument)
	}
	_, staged := t.evals[e.RecommendationID]
	_, stored := t.s.evals[e.RecommendationID]
	if staged || stored {
		return fmt.Errorf("recommendation %s already evaluated: %w", e.RecommendationID, model.ErrConflict)
	}
	if e.ID == "" {
		e.ID = t.s.newID()
	}
	t.evals[e.RecommendationID] = *e
	return nil
}
