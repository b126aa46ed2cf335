// Package ledger opens recommendations. Each one is pinned to its entry
// price and benchmark at creation and is never edited afterwards except by
// the evaluator closing it.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/callscore/internal/domain/benchmark"
	"github.com/okian/callscore/internal/domain/model"
	"github.com/okian/callscore/internal/domain/pricing"
	"github.com/okian/callscore/internal/domain/scoring"
	"github.com/okian/callscore/pkg/logger"
	"github.com/okian/callscore/pkg/metrics"
	"github.com/okian/callscore/pkg/tracing"
)

const defaultOracleTimeout = 10 * time.Second

// Store is the subset of store.Store the ledger writes to.
type Store interface {
	InsertRecommendation(ctx context.Context, r *model.Recommendation) error
}

// Input is a new call. Nil optional fields take configured defaults.
type Input struct {
	AnalystID   string
	Ticker      string
	Action      string
	Confidence  *float64
	HorizonDays *int
	TargetPrice *float64
	Note        string
	Sector      string
}

// Fingerprint identifies the request as sent, before defaults apply. Two
// inputs with the same fields share a fingerprint.
func (in Input) Fingerprint() string {
	b, _ := json.Marshal(in)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Ledger records recommendations.
type Ledger struct {
	store         Store
	oracle        pricing.Oracle
	params        scoring.Params
	benchmarks    benchmark.Table
	oracleTimeout time.Duration
	now           func() time.Time
	logger        logger.Logger
}

// New creates a ledger writing to st and pricing entries with oracle.
func New(st Store, oracle pricing.Oracle, opts ...Option) *Ledger {
	l := &Ledger{
		store:         st,
		oracle:        oracle,
		params:        scoring.DefaultParams(),
		benchmarks:    benchmark.DefaultTable(),
		oracleTimeout: defaultOracleTimeout,
		now:           time.Now,
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record validates in, prices the ticker at now and persists an OPEN
// recommendation. Nothing is written when validation or pricing fails. The
// analyst is referenced by id only and is not required to exist.
func (l *Ledger) Record(ctx context.Context, in Input) (model.Recommendation, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Record",
		attribute.String("analyst_id", in.AnalystID),
		attribute.String("ticker", in.Ticker))
	defer span.End()

	rec, err := l.build(in)
	if err != nil {
		tracing.RecordError(span, err)
		return model.Recommendation{}, err
	}

	pctx, cancel := context.WithTimeout(ctx, l.oracleTimeout)
	p0, err := l.oracle.PriceAt(pctx, rec.Ticker, rec.T0)
	cancel()
	if err != nil {
		tracing.RecordError(span, err)
		l.logger.Warn(ctx, "entry price unavailable",
			logger.String("ticker", rec.Ticker),
			logger.Error(err))
		return model.Recommendation{}, fmt.Errorf("entry price for %s: %w", rec.Ticker, asUnavailable(err))
	}
	if p0 <= 0 || math.IsNaN(p0) {
		err := fmt.Errorf("entry price %g for %s: %w", p0, rec.Ticker, model.ErrPriceUnavailable)
		tracing.RecordError(span, err)
		return model.Recommendation{}, err
	}
	rec.P0 = p0

	if err := l.store.InsertRecommendation(ctx, &rec); err != nil {
		tracing.RecordError(span, err)
		return model.Recommendation{}, fmt.Errorf("record recommendation: %w", err)
	}

	metrics.RecordRecommendation(string(rec.Action))
	l.logger.Info(ctx, "recommendation recorded",
		logger.String("recommendation_id", rec.ID),
		logger.String("analyst_id", rec.AnalystID),
		logger.String("ticker", rec.Ticker),
		logger.String("action", string(rec.Action)),
		logger.String("benchmark", rec.Benchmark),
		logger.Float64("p0", rec.P0))
	return rec, nil
}

func (l *Ledger) build(in Input) (model.Recommendation, error) {
	analystID := strings.TrimSpace(in.AnalystID)
	if analystID == "" {
		return model.Recommendation{}, fmt.Errorf("analyst id is required: %w", model.ErrInvalidArgument)
	}
	ticker := strings.ToUpper(strings.TrimSpace(in.Ticker))
	if ticker == "" {
		return model.Recommendation{}, fmt.Errorf("ticker is required: %w", model.ErrInvalidArgument)
	}
	action, err := model.ParseAction(in.Action)
	if err != nil {
		return model.Recommendation{}, err
	}

	confidence := l.params.DefaultConfidence
	if in.Confidence != nil && !math.IsNaN(*in.Confidence) {
		confidence = scoring.ClampConfidence(*in.Confidence)
	}
	horizon := l.params.DefaultHorizonDays
	if in.HorizonDays != nil && *in.HorizonDays > 0 {
		horizon = *in.HorizonDays
	}
	var target *float64
	if in.TargetPrice != nil {
		tp := *in.TargetPrice
		target = &tp
	}

	now := l.now().UTC()
	return model.Recommendation{
		AnalystID:   analystID,
		Ticker:      ticker,
		Action:      action,
		Confidence:  confidence,
		HorizonDays: horizon,
		TargetPrice: target,
		Note:        strings.TrimSpace(in.Note),
		Sector:      strings.TrimSpace(in.Sector),
		Benchmark:   l.benchmarks.Resolve(in.Sector),
		T0:          now,
		Status:      model.StatusOpen,
		CreatedAt:   now,
	}, nil
}

func asUnavailable(err error) error {
	if errors.Is(err, model.ErrPriceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrPriceUnavailable, err)
}
