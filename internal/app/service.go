// Package service wires the engine together: it builds the store and the
// price oracle chain from configuration, exposes the registry, ledger,
// evaluator and consensus operations, and schedules evaluation runs.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/okian/callscore/internal/adapters/oracle"
	"github.com/okian/callscore/internal/adapters/repository"
	"github.com/okian/callscore/internal/config"
	"github.com/okian/callscore/internal/domain/consensus"
	"github.com/okian/callscore/internal/domain/dedupe"
	"github.com/okian/callscore/internal/domain/evaluator"
	"github.com/okian/callscore/internal/domain/ledger"
	"github.com/okian/callscore/internal/domain/model"
	"github.com/okian/callscore/internal/domain/pricing"
	"github.com/okian/callscore/internal/domain/registry"
	"github.com/okian/callscore/internal/domain/store"
	"github.com/okian/callscore/pkg/logger"
)

// RunSummary describes the latest completed evaluation run.
type RunSummary struct {
	At        time.Time
	Evaluated int
	Pending   int
	Skipped   int
	Errors    int
	Took      time.Duration
}

// Service implements the API dependencies for the engine.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	now    func() time.Time
	logger logger.Logger

	// Core components
	store     store.Store
	oracle    pricing.Oracle
	redis     *redis.Client
	registry  *registry.Registry
	ledger    *ledger.Ledger
	evaluator *evaluator.Evaluator
	consensus *consensus.Aggregator
	scheduler *cron.Cron
	dedupe    dedupe.Deduper

	// ownsStore and ownsOracle mark components built by Init; Stop releases
	// only those.
	ownsStore  bool
	ownsOracle bool
	// runs tracks the run-on-start pass.
	runs sync.WaitGroup

	// State
	initialized bool
	started     bool
	running     atomic.Bool
	lastRun     RunSummary
}

// New constructs a new Service. Components are built by Init or Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:    config.New(),
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init builds the store, the oracle chain and the domain services. It is
// idempotent. Use it directly for one-shot commands that need no scheduler.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked(ctx)
}

func (s *Service) initLocked(ctx context.Context) error {
	if s.initialized {
		return nil
	}
	cfg := s.cfg

	if s.store == nil {
		st, err := s.openStore()
		if err != nil {
			return err
		}
		s.store = st
		s.ownsStore = true
	}
	if s.oracle == nil {
		o, err := s.buildOracle(ctx)
		if err != nil {
			s.releaseLocked(ctx)
			return err
		}
		s.oracle = o
		s.ownsOracle = true
	}

	s.registry = registry.New(s.store,
		registry.WithParams(cfg.Scoring),
		registry.WithClock(s.now),
		registry.WithLogger(s.logger.Named("registry")))
	s.ledger = ledger.New(s.store, s.oracle,
		ledger.WithParams(cfg.Scoring),
		ledger.WithBenchmarks(cfg.Benchmarks.Table()),
		ledger.WithOracleTimeout(cfg.Oracle.Timeout),
		ledger.WithClock(s.now),
		ledger.WithLogger(s.logger.Named("ledger")))
	s.evaluator = evaluator.New(s.store, s.oracle,
		evaluator.WithParams(cfg.Scoring),
		evaluator.WithWorkers(cfg.Evaluator.Workers),
		evaluator.WithOracleTimeout(cfg.Oracle.Timeout),
		evaluator.WithLogger(s.logger.Named("evaluator")))
	s.consensus = consensus.New(s.store,
		consensus.WithParams(cfg.Consensus),
		consensus.WithClock(s.now),
		consensus.WithLogger(s.logger.Named("consensus")))

	s.dedupe = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(cfg.Idempotency.MaxKeys),
		dedupe.WithTTL(cfg.Idempotency.TTL),
		dedupe.WithClock(s.now))

	s.initialized = true
	s.logger.Info(ctx, "service initialized",
		logger.String("store", cfg.Store.Driver),
		logger.String("oracle", cfg.Oracle.Driver),
		logger.Bool("price_cache", s.redis != nil))
	return nil
}

func (s *Service) openStore() (store.Store, error) {
	l := s.logger.Named("store")
	switch s.cfg.Store.Driver {
	case config.StoreBadger:
		st, err := repository.OpenBadgerStore(s.cfg.Store.Path, repository.WithLogger(l))
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StoreMemory, "":
		return repository.NewMemoryStore(repository.WithLogger(l)), nil
	default:
		return nil, fmt.Errorf("store driver %q: %w", s.cfg.Store.Driver, config.ErrInvalidConfig)
	}
}

func (s *Service) buildOracle(ctx context.Context) (pricing.Oracle, error) {
	oc := s.cfg.Oracle
	l := s.logger.Named("oracle")

	var base pricing.Oracle
	switch oc.Driver {
	case config.OracleHTTP:
		o, err := oracle.NewHTTPOracle(oc.BaseURL,
			oracle.WithTimeout(oc.Timeout),
			oracle.WithRateLimit(oc.RatePerSecond, oc.Burst),
			oracle.WithBreaker(oc.BreakerFailures, oc.BreakerOpenFor),
			oracle.WithHTTPLogger(l))
		if err != nil {
			return nil, err
		}
		base = o
	case config.OracleStatic, "":
		o := oracle.NewStaticOracle()
		for symbol, points := range oc.StaticPrices {
			for _, p := range points {
				at, err := time.Parse(time.RFC3339, p.At)
				if err != nil {
					return nil, fmt.Errorf("static price %s at %q: %w", symbol, p.At, config.ErrInvalidConfig)
				}
				o.Set(symbol, at, p.Price)
			}
		}
		base = o
	default:
		return nil, fmt.Errorf("oracle driver %q: %w", oc.Driver, config.ErrInvalidConfig)
	}

	if oc.Cache.Addr == "" {
		return base, nil
	}
	s.redis = redis.NewClient(&redis.Options{
		Addr:     oc.Cache.Addr,
		Password: oc.Cache.Password,
		DB:       oc.Cache.DB,
	})
	if err := s.redis.Ping(ctx).Err(); err != nil {
		l.Warn(ctx, "price cache unreachable; lookups will bypass it until it recovers",
			logger.String("addr", oc.Cache.Addr), logger.Error(err))
	}
	return oracle.NewCachedOracle(base, s.redis,
		oracle.WithTTL(oc.Cache.TTL),
		oracle.WithCacheClock(s.now),
		oracle.WithCacheLogger(l)), nil
}

// Start initializes the service and schedules evaluation runs.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := s.initLocked(ctx); err != nil {
		return err
	}

	cl := cronLogger{l: s.logger.Named("scheduler")}
	s.scheduler = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := s.scheduler.AddFunc(s.cfg.Evaluator.Schedule, s.scheduledRun); err != nil {
		return fmt.Errorf("schedule %q: %w: %w", s.cfg.Evaluator.Schedule, config.ErrInvalidConfig, err)
	}
	s.scheduler.Start()
	if s.cfg.Evaluator.RunOnStart {
		s.runs.Add(1)
		go func() {
			defer s.runs.Done()
			s.scheduledRun()
		}()
	}

	s.started = true
	s.logger.Info(ctx, "service started",
		logger.String("schedule", s.cfg.Evaluator.Schedule),
		logger.Int("workers", s.cfg.Evaluator.Workers))
	return nil
}

func (s *Service) scheduledRun() {
	ctx := context.Background()
	if _, err := s.RunEvaluator(ctx, s.now()); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.logger.Info(ctx, "skipping scheduled run; previous run still active")
			return
		}
		s.logger.Error(ctx, "scheduled evaluation failed", logger.Error(err))
	}
}

// Stop waits for active scheduled runs, then releases the store and the
// cache client it opened. Injected components stay open and are reused by a
// later Init.
func (s *Service) Stop(ctx context.Context) {
	// Scheduled runs need s.mu; drain them before taking it.
	s.mu.Lock()
	scheduler := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
			s.logger.Warn(ctx, "scheduler stop timed out")
		}
	}

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn(ctx, "run-on-start pass still active at stop")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked(ctx)
	s.started = false
	s.initialized = false
	s.logger.Info(ctx, "service stopped")
}

func (s *Service) releaseLocked(ctx context.Context) {
	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "error closing store", logger.Error(err))
		}
		s.store = nil
		s.ownsStore = false
	}
	if s.redis != nil {
		_ = s.redis.Close()
		s.redis = nil
	}
	if s.ownsOracle {
		s.oracle = nil
		s.ownsOracle = false
	}
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	return nil
}

// CreateAnalyst registers an analyst.
func (s *Service) CreateAnalyst(ctx context.Context, in registry.NewAnalyst) (model.Analyst, error) {
	if err := s.ready(); err != nil {
		return model.Analyst{}, err
	}
	return s.registry.CreateAnalyst(ctx, in)
}

// GetAnalyst returns one analyst.
func (s *Service) GetAnalyst(ctx context.Context, id string) (model.Analyst, error) {
	if err := s.ready(); err != nil {
		return model.Analyst{}, err
	}
	return s.registry.GetAnalyst(ctx, id)
}

// ListTopAnalysts returns the leaderboard.
func (s *Service) ListTopAnalysts(ctx context.Context, limit int, orderBy string) ([]model.Analyst, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.registry.ListTopAnalysts(ctx, limit, orderBy)
}

// AnalystProfile returns an analyst with rank, history and summary.
func (s *Service) AnalystProfile(ctx context.Context, id string, recentLimit int) (registry.Profile, error) {
	if err := s.ready(); err != nil {
		return registry.Profile{}, err
	}
	return s.registry.Profile(ctx, id, recentLimit)
}

// RecordRecommendation opens a recommendation.
func (s *Service) RecordRecommendation(ctx context.Context, in ledger.Input) (model.Recommendation, error) {
	if err := s.ready(); err != nil {
		return model.Recommendation{}, err
	}
	return s.ledger.Record(ctx, in)
}

// RecordRecommendationOnce records in at most once per idempotency key. A
// repeated key with the same input returns the recommendation recorded first
// with replayed set. A key still being recorded, or reused with a different
// input, fails with model.ErrConflict. Failed writes release the key so the
// client can retry.
func (s *Service) RecordRecommendationOnce(ctx context.Context, key string, in ledger.Input) (model.Recommendation, bool, error) {
	if err := s.ready(); err != nil {
		return model.Recommendation{}, false, err
	}
	id, state := s.dedupe.Claim(ctx, key, in.Fingerprint())
	switch state {
	case dedupe.Mismatch:
		return model.Recommendation{}, false, fmt.Errorf("idempotency key %q reused with a different request: %w", key, model.ErrConflict)
	case dedupe.InFlight:
		return model.Recommendation{}, false, fmt.Errorf("idempotency key %q in flight: %w", key, model.ErrConflict)
	case dedupe.Completed:
		rec, err := s.store.GetRecommendation(ctx, id)
		return rec, err == nil, err
	}

	rec, err := s.ledger.Record(ctx, in)
	if err != nil {
		s.dedupe.Release(ctx, key)
		return model.Recommendation{}, false, err
	}
	s.dedupe.Complete(ctx, key, rec.ID)
	return rec, false, nil
}

// WeightedConsensus returns the credibility-weighted view on ticker.
func (s *Service) WeightedConsensus(ctx context.Context, ticker string, maxAgeDays int) (consensus.Result, error) {
	if err := s.ready(); err != nil {
		return consensus.Result{}, err
	}
	return s.consensus.WeightedConsensus(ctx, ticker, maxAgeDays)
}

// RunEvaluator performs one evaluation pass at now. Only one pass runs at a
// time; an overlapping call returns ErrRunInProgress.
func (s *Service) RunEvaluator(ctx context.Context, now time.Time) (evaluator.RunResult, error) {
	if err := s.ready(); err != nil {
		return evaluator.RunResult{}, err
	}
	if !s.running.CompareAndSwap(false, true) {
		return evaluator.RunResult{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	res, err := s.evaluator.Run(ctx, now)
	if err != nil {
		return res, err
	}

	s.mu.Lock()
	s.lastRun = RunSummary{
		At:        now,
		Evaluated: res.Evaluated,
		Pending:   res.Pending,
		Skipped:   res.Skipped,
		Errors:    len(res.Errors),
		Took:      res.Took,
	}
	s.mu.Unlock()
	return res, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":       s.started,
		"initialized":   s.initialized,
		"store":         s.cfg.Store.Driver,
		"oracle":        s.cfg.Oracle.Driver,
		"priceCache":    s.redis != nil,
		"workers":       s.cfg.Evaluator.Workers,
		"schedule":      s.cfg.Evaluator.Schedule,
		"runInProgress": s.running.Load(),
	}

	if s.initialized {
		if n, err := s.store.CountAnalysts(context.Background()); err == nil {
			stats["totalAnalysts"] = n
		}
		stats["idempotencyKeys"] = s.dedupe.Size()
	}
	if !s.lastRun.At.IsZero() {
		stats["lastRun"] = map[string]interface{}{
			"at":        s.lastRun.At,
			"evaluated": s.lastRun.Evaluated,
			"pending":   s.lastRun.Pending,
			"skipped":   s.lastRun.Skipped,
			"errors":    s.lastRun.Errors,
			"tookMs":    s.lastRun.Took.Milliseconds(),
		}
	}
	if s.scheduler != nil {
		if entries := s.scheduler.Entries(); len(entries) > 0 {
			stats["nextRun"] = entries[0].Next
		}
	}
	return stats
}
