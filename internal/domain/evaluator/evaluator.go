// Package evaluator closes matured recommendations. It prices each one at its
// horizon, scores the call against its benchmark and, in one transaction,
// writes the evaluation, closes the recommendation and updates the analyst.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/callscore/internal/adapters/mq/worker"
	"github.com/okian/callscore/internal/domain/model"
	"github.com/okian/callscore/internal/domain/pricing"
	"github.com/okian/callscore/internal/domain/scoring"
	"github.com/okian/callscore/internal/domain/store"
	"github.com/okian/callscore/pkg/logger"
	"github.com/okian/callscore/pkg/metrics"
	"github.com/okian/callscore/pkg/tracing"
)

const (
	defaultWorkers       = 8
	defaultOracleTimeout = 10 * time.Second
)

// Store is the subset of store.Store the evaluator needs.
type Store interface {
	FindRecommendations(ctx context.Context, f store.RecommendationFilter) ([]model.Recommendation, error)
	RunInTx(ctx context.Context, fn func(tx store.Tx) error) error
}

// RunResult summarizes one evaluation pass.
type RunResult struct {
	// Evaluated counts recommendations closed by this run.
	Evaluated int
	// Pending counts OPEN recommendations whose horizon has not elapsed.
	Pending int
	// Skipped counts items already closed by someone else or not started
	// because the run was canceled.
	Skipped int
	// Errors holds one *ItemError per failed item.
	Errors []error
	Took   time.Duration
}

// Evaluator runs evaluation passes.
type Evaluator struct {
	store         Store
	oracle        pricing.Oracle
	params        scoring.Params
	workers       int
	pool          *worker.Pool
	oracleTimeout time.Duration
	logger        logger.Logger
}

// New creates an evaluator.
func New(st Store, oracle pricing.Oracle, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:         st,
		oracle:        oracle,
		params:        scoring.DefaultParams(),
		workers:       defaultWorkers,
		oracleTimeout: defaultOracleTimeout,
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pool == nil {
		e.pool = worker.NewPool(e.workers, worker.WithName("evaluator"), worker.WithLogger(e.logger))
	}
	return e
}

// Run evaluates every OPEN recommendation due at now. Items of one analyst
// are processed in entry order, one at a time; different analysts run
// concurrently. Item failures are collected in the result; only a failure to
// list recommendations is returned as an error.
func (e *Evaluator) Run(ctx context.Context, now time.Time) (RunResult, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "evaluator.Run")
	defer span.End()

	open, err := e.store.FindRecommendations(ctx, store.RecommendationFilter{Status: model.StatusOpen})
	if err != nil {
		tracing.RecordError(span, err)
		metrics.RecordEvaluatorRun("failed", time.Since(start))
		return RunResult{}, fmt.Errorf("list open recommendations: %w", err)
	}

	var (
		res    RunResult
		lanes  []worker.Lane
		laneOf = make(map[string]int)
	)
	var evaluated, closed atomic.Int64

	// open is sorted by T0 then id, so each lane inherits that order.
	for _, rec := range open {
		if !rec.Due(now) {
			res.Pending++
			continue
		}
		i, ok := laneOf[rec.AnalystID]
		if !ok {
			i = len(lanes)
			laneOf[rec.AnalystID] = i
			lanes = append(lanes, worker.Lane{Key: rec.AnalystID})
		}
		lanes[i].Tasks = append(lanes[i].Tasks, func(ctx context.Context) error {
			_, err := e.EvaluateOne(ctx, rec, now)
			switch {
			case err == nil:
				evaluated.Add(1)
				return nil
			case errors.Is(err, model.ErrAlreadyClosed):
				closed.Add(1)
				return nil
			default:
				return &ItemError{RecommendationID: rec.ID, AnalystID: rec.AnalystID, Err: err}
			}
		})
	}
	metrics.UpdatePending(res.Pending)

	stats := e.pool.Run(ctx, lanes)
	res.Evaluated = int(evaluated.Load())
	res.Skipped = int(closed.Load()) + stats.Skipped
	res.Errors = stats.Errors
	res.Took = time.Since(start)

	result := "ok"
	if len(res.Errors) > 0 {
		result = "partial"
	}
	metrics.RecordEvaluatorRun(result, res.Took)
	span.SetAttributes(
		attribute.Int("evaluated", res.Evaluated),
		attribute.Int("pending", res.Pending),
		attribute.Int("errors", len(res.Errors)))

	e.logger.Info(ctx, "evaluation run finished",
		logger.Int("open", len(open)),
		logger.Int("lanes", len(lanes)),
		logger.Int("evaluated", res.Evaluated),
		logger.Int("pending", res.Pending),
		logger.Int("skipped", res.Skipped),
		logger.Int("errors", len(res.Errors)),
		logger.Duration("took", res.Took))
	return res, nil
}

// EvaluateOne scores rec at t1 and closes it. It returns an error wrapping
// model.ErrAlreadyClosed when the recommendation was closed concurrently,
// model.ErrPriceUnavailable when a price is missing and model.ErrConflict
// when the transaction lost a race. On any error nothing is written.
func (e *Evaluator) EvaluateOne(ctx context.Context, rec model.Recommendation, t1 time.Time) (model.Evaluation, error) {
	ctx, span := tracing.StartSpan(ctx, "evaluator.EvaluateOne",
		attribute.String("recommendation_id", rec.ID),
		attribute.String("analyst_id", rec.AnalystID),
		attribute.String("ticker", rec.Ticker))
	defer span.End()

	eval, err := e.evaluate(ctx, rec, t1)
	if err != nil {
		if !errors.Is(err, model.ErrAlreadyClosed) {
			tracing.RecordError(span, err)
			metrics.RecordEvaluationError(errorKind(err))
			e.logger.Warn(ctx, "evaluation failed",
				logger.String("recommendation_id", rec.ID),
				logger.String("analyst_id", rec.AnalystID),
				logger.Error(err))
		}
		return model.Evaluation{}, err
	}

	metrics.RecordEvaluation(string(eval.Action), string(eval.Outcome), eval.ScoreDelta)
	e.logger.Debug(ctx, "recommendation evaluated",
		logger.String("recommendation_id", rec.ID),
		logger.String("outcome", string(eval.Outcome)),
		logger.Float64("alpha", eval.Alpha),
		logger.Float64("score_delta", eval.ScoreDelta),
		logger.Float64("score_after", eval.ScoreAfter))
	return eval, nil
}

func (e *Evaluator) evaluate(ctx context.Context, rec model.Recommendation, t1 time.Time) (model.Evaluation, error) {
	p1, err := e.price(ctx, rec.Ticker, t1)
	if err != nil {
		return model.Evaluation{}, err
	}
	bench0, err := e.price(ctx, rec.Benchmark, rec.T0)
	if err != nil {
		return model.Evaluation{}, err
	}
	bench1, err := e.price(ctx, rec.Benchmark, t1)
	if err != nil {
		return model.Evaluation{}, err
	}

	var eval model.Evaluation
	err = e.store.RunInTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetRecommendation(rec.ID)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusOpen {
			return fmt.Errorf("recommendation %s: %w", rec.ID, model.ErrAlreadyClosed)
		}
		analyst, err := tx.GetAnalyst(cur.AnalystID)
		if err != nil {
			return err
		}

		a, err := e.params.Assess(scoring.Input{
			Action:     cur.Action,
			Confidence: cur.Confidence,
			Score:      analyst.Score,
			P0:         cur.P0,
			P1:         p1,
			Bench0:     bench0,
			Bench1:     bench1,
			Elapsed:    t1.Sub(cur.T0),
		})
		if err != nil {
			return err
		}

		eval = model.Evaluation{
			RecommendationID: cur.ID,
			AnalystID:        cur.AnalystID,
			Ticker:           cur.Ticker,
			Action:           cur.Action,
			Benchmark:        cur.Benchmark,
			HorizonDays:      cur.HorizonDays,
			T1:               t1,
			P1:               p1,
			Bench0:           bench0,
			Bench1:           bench1,
			BenchReturn:      a.BenchReturn,
			AbsReturn:        a.AbsReturn,
			Alpha:            a.Alpha,
			Outcome:          a.Outcome,
			ScoreDelta:       a.Delta,
			ScoreBefore:      analyst.Score,
			ScoreAfter:       a.NewScore,
			CreatedAt:        t1,
		}
		if err := tx.InsertEvaluation(&eval); err != nil {
			return err
		}

		cur.Status = model.StatusClosed
		cur.ClosedAt = t1
		if err := tx.PutRecommendation(cur); err != nil {
			return err
		}

		analyst.Score = a.NewScore
		analyst.LifetimeCalls++
		analyst.Tier = e.params.Tier(analyst.Score, analyst.LifetimeCalls)
		analyst.UpdatedAt = t1
		return tx.PutAnalyst(analyst)
	})
	if err != nil {
		return model.Evaluation{}, err
	}
	return eval, nil
}

// price looks up one price under its own timeout.
func (e *Evaluator) price(ctx context.Context, symbol string, at time.Time) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()

	p, err := e.oracle.PriceAt(ctx, symbol, at)
	if err != nil {
		if errors.Is(err, model.ErrPriceUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%s at %s: %w: %w", symbol, at.Format(time.RFC3339), model.ErrPriceUnavailable, err)
	}
	return p, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrPriceUnavailable):
		return "price_unavailable"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
