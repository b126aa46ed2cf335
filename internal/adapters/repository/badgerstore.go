package repository

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/okian/callscore/internal/domain/model"
	"github.com/okian/callscore/internal/domain/store"
	"github.com/okian/callscore/pkg/logger"
	"github.com/okian/callscore/pkg/metrics"
)

var _ store.Store = (*BadgerStore)(nil)

// BadgerStore persists the three collections in Badger through badgerhold.
// Analysts and recommendations are keyed by id, evaluations by
// recommendation id. Transactions are optimistic; a lost race surfaces as
// model.ErrConflict.
type BadgerStore struct {
	db *badgerhold.Store

	settings
}

// OpenBadgerStore opens (or creates) a store rooted at path. An empty path
// opens an in-memory database.
func OpenBadgerStore(path string, opts ...Option) (*BadgerStore, error) {
	s := &BadgerStore{settings: defaultSettings()}
	for _, opt := range opts {
		opt(&s.settings)
	}

	options := badgerhold.DefaultOptions
	options.Logger = nil
	if path == "" {
		options.InMemory = true
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		options.Dir = path
		options.ValueDir = path
	}

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	s.db = db
	s.logger.Info(context.Background(), "badger store opened",
		logger.String("path", path),
		logger.Bool("in_memory", path == ""))
	return s, nil
}

// InsertAnalyst implements store.Store.
func (s *BadgerStore) InsertAnalyst(ctx context.Context, a *model.Analyst) error {
	if a.ID == "" {
		a.ID = s.newID()
	}
	if err := s.db.Insert(a.ID, a); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("analyst %s exists: %w", a.ID, model.ErrConflict)
		}
		return fmt.Errorf("insert analyst: %w", err)
	}
	return nil
}

// GetAnalyst implements store.Store.
func (s *BadgerStore) GetAnalyst(ctx context.Context, id string) (model.Analyst, error) {
	var a model.Analyst
	if err := s.db.Get(id, &a); err != nil {
		return model.Analyst{}, notFound("analyst", id, err)
	}
	return a, nil
}

// ListAnalysts implements store.Store.
func (s *BadgerStore) ListAnalysts(ctx context.Context, q store.AnalystQuery) ([]model.Analyst, error) {
	var out []model.Analyst
	if err := s.db.Find(&out, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("list analysts: %w", err)
	}
	if err := sortAnalysts(out, q.OrderBy); err != nil {
		return nil, err
	}
	return limit(out, q.Limit), nil
}

// AnalystRank implements store.Store.
func (s *BadgerStore) AnalystRank(ctx context.Context, id string) (int, error) {
	a, err := s.GetAnalyst(ctx, id)
	if err != nil {
		return 0, err
	}
	above, err := s.db.Count(&model.Analyst{}, badgerhold.Where("Score").Gt(a.Score))
	if err != nil {
		return 0, fmt.Errorf("rank analyst: %w", err)
	}
	return int(above) + 1, nil
}

// CountAnalysts implements store.Store.
func (s *BadgerStore) CountAnalysts(ctx context.Context) (int, error) {
	n, err := s.db.Count(&model.Analyst{}, nil)
	if err != nil {
		return 0, fmt.Errorf("count analysts: %w", err)
	}
	return int(n), nil
}

// InsertRecommendation implements store.Store.
func (s *BadgerStore) InsertRecommendation(ctx context.Context, r *model.Recommendation) error {
	if r.ID == "" {
		r.ID = s.newID()
	}
	if err := s.db.Insert(r.ID, r); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("recommendation %s exists: %w", r.ID, model.ErrConflict)
		}
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

// GetRecommendation implements store.Store.
func (s *BadgerStore) GetRecommendation(ctx context.Context, id string) (model.Recommendation, error) {
	var r model.Recommendation
	if err := s.db.Get(id, &r); err != nil {
		return model.Recommendation{}, notFound("recommendation", id, err)
	}
	return r, nil
}

// FindRecommendations implements store.Store. Equality filters run in
// badgerhold; the time window, ordering and limit are applied here.
func (s *BadgerStore) FindRecommendations(ctx context.Context, f store.RecommendationFilter) ([]model.Recommendation, error) {
	q := badgerhold.Where("ID").Ne("")
	if f.Status != "" {
		q = q.And("Status").Eq(f.Status)
	}
	if f.Ticker != "" {
		q = q.And("Ticker").Eq(f.Ticker)
	}
	if f.AnalystID != "" {
		q = q.And("AnalystID").Eq(f.AnalystID)
	}

	var found []model.Recommendation
	if err := s.db.Find(&found, q); err != nil {
		return nil, fmt.Errorf("find recommendations: %w", err)
	}
	out := found[:0]
	for i := range found {
		if matchRecommendation(&found[i], f) {
			out = append(out, found[i])
		}
	}
	sortRecommendations(out, f.NewestFirst)
	return limit(out, f.Limit), nil
}

// FindEvaluations implements store.Store.
func (s *BadgerStore) FindEvaluations(ctx context.Context, f store.EvaluationFilter) ([]model.Evaluation, error) {
	q := badgerhold.Where("ID").Ne("")
	if f.RecommendationID != "" {
		q = q.And("RecommendationID").Eq(f.RecommendationID)
	}
	if f.AnalystID != "" {
		q = q.And("AnalystID").Eq(f.AnalystID)
	}

	var out []model.Evaluation
	if err := s.db.Find(&out, q); err != nil {
		return nil, fmt.Errorf("find evaluations: %w", err)
	}
	sortEvaluations(out)
	return limit(out, f.Limit), nil
}

// RunInTx implements store.Store.
func (s *BadgerStore) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Badger().Update(func(txn *badger.Txn) error {
		return fn(&badgerTx{s: s, txn: txn})
	})
	if errors.Is(err, badger.ErrConflict) {
		metrics.RecordTxConflict()
		return fmt.Errorf("commit: %w", model.ErrConflict)
	}
	return err
}

// Close implements store.Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

type badgerTx struct {
	s   *BadgerStore
	txn *badger.Txn
}

func (t *badgerTx) GetAnalyst(id string) (model.Analyst, error) {
	var a model.Analyst
	if err := t.s.db.TxGet(t.txn, id, &a); err != nil {
		return model.Analyst{}, notFound("analyst", id, err)
	}
	return a, nil
}

func (t *badgerTx) PutAnalyst(a model.Analyst) error {
	if a.ID == "" {
		return fmt.Errorf("analyst without id: %w", model.ErrInvalidArgument)
	}
	return t.s.db.TxUpsert(t.txn, a.ID, &a)
}

func (t *badgerTx) GetRecommendation(id string) (model.Recommendation, error) {
	var r model.Recommendation
	if err := t.s.db.TxGet(t.txn, id, &r); err != nil {
		return model.Recommendation{}, notFound("recommendation", id, err)
	}
	return r, nil
}

func (t *badgerTx) PutRecommendation(r model.Recommendation) error {
	if r.ID == "" {
		return fmt.Errorf("recommendation without id: %w", model.ErrInvalidArgument)
	}
	return t.s.db.TxUpsert(t.txn, r.ID, &r)
}

func (t *badgerTx) InsertEvaluation(e *model.Evaluation) error {
	if e.RecommendationID == "" {
		return fmt.Errorf("evaluation without recommendation: %w", model.ErrInvalidArgument)
	}
	if e.ID == "" {
		e.ID = t.s.newID()
	}
	err := t.s.db.TxInsert(t.txn, e.RecommendationID, e)
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return fmt.Errorf("recommendation %s already evaluated: %w", e.RecommendationID, model.ErrConflict)
	}
	return err
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, model.ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}
