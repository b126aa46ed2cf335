// Package consensus derives a credibility-weighted BUY/HOLD/SELL view per
// ticker from the open calls of rated analysts.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/callscore/internal/domain/model"
	"github.com/okian/callscore/internal/domain/store"
	"github.com/okian/callscore/pkg/logger"
	"github.com/okian/callscore/pkg/metrics"
)

const (
	defaultWeightFloor = 0.2
	defaultWindowDays  = 30
)

// Params weights each call by WeightFloor + (1-WeightFloor) * score/100.
type Params struct {
	WeightFloor       float64 `koanf:"weight_floor" validate:"gte=0,lte=1"`
	DefaultWindowDays int     `koanf:"default_window_days" validate:"gt=0"`
}

// DefaultParams returns the production weighting.
func DefaultParams() Params {
	return Params{
		WeightFloor:       defaultWeightFloor,
		DefaultWindowDays: defaultWindowDays,
	}
}

// Weight maps an analyst score in [0,100] to a vote weight.
func (p Params) Weight(score float64) float64 {
	return p.WeightFloor + (1-p.WeightFloor)*score/100
}

// Participant is one weighted vote.
type Participant struct {
	AnalystID string
	Action    model.Action
	Weight    float64
	Score     float64
}

// Result is the consensus for a ticker. An empty book is HOLD with zero
// confidence.
type Result struct {
	Ticker       string
	Consensus    model.Action
	Confidence   float64
	Participants []Participant
}

// Tally sums weights per action. The heaviest action wins; any tie for the
// top resolves to HOLD. Confidence is the winning weight over the total.
func Tally(participants []Participant) (model.Action, float64) {
	totals := make(map[model.Action]float64, len(model.Actions))
	var total float64
	for _, p := range participants {
		totals[p.Action] += p.Weight
		total += p.Weight
	}
	if total <= 0 {
		return model.ActionHold, 0
	}

	var (
		best model.Action
		top  float64
		ties int
	)
	for _, a := range model.Actions {
		switch w := totals[a]; {
		case w > top:
			best, top, ties = a, w, 1
		case w == top && w > 0:
			ties++
		}
	}
	if ties > 1 {
		best = model.ActionHold
	}
	return best, top / total
}

// Store is the subset of store.Store the aggregator reads.
type Store interface {
	GetAnalyst(ctx context.Context, id string) (model.Analyst, error)
	FindRecommendations(ctx context.Context, f store.RecommendationFilter) ([]model.Recommendation, error)
}

// Aggregator computes consensus views.
type Aggregator struct {
	store  Store
	params Params
	now    func() time.Time
	logger logger.Logger
}

// New creates an aggregator over st.
func New(st Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:  st,
		params: DefaultParams(),
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WeightedConsensus weighs the OPEN calls on ticker created within the last
// maxAgeDays (non-positive selects the default window) by each analyst's
// current score. Calls from analysts that no longer exist are ignored.
func (a *Aggregator) WeightedConsensus(ctx context.Context, ticker string, maxAgeDays int) (Result, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return Result{}, fmt.Errorf("ticker is required: %w", model.ErrInvalidArgument)
	}
	if maxAgeDays <= 0 {
		maxAgeDays = a.params.DefaultWindowDays
	}

	since := a.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	recs, err := a.store.FindRecommendations(ctx, store.RecommendationFilter{
		Status:       model.StatusOpen,
		Ticker:       ticker,
		CreatedSince: since,
	})
	if err != nil {
		return Result{}, fmt.Errorf("load recommendations for %s: %w", ticker, err)
	}

	res := Result{Ticker: ticker, Consensus: model.ActionHold, Participants: []Participant{}}
	scores := make(map[string]float64)
	for _, rec := range recs {
		score, ok := scores[rec.AnalystID]
		if !ok {
			analyst, err := a.store.GetAnalyst(ctx, rec.AnalystID)
			if errors.Is(err, model.ErrNotFound) {
				a.logger.Debug(ctx, "skipping call from unknown analyst",
					logger.String("analyst_id", rec.AnalystID),
					logger.String("recommendation_id", rec.ID))
				continue
			}
			if err != nil {
				return Result{}, fmt.Errorf("load analyst %s: %w", rec.AnalystID, err)
			}
			score = analyst.Score
			scores[rec.AnalystID] = score
		}
		res.Participants = append(res.Participants, Participant{
			AnalystID: rec.AnalystID,
			Action:    rec.Action,
			Weight:    a.params.Weight(score),
			Score:     score,
		})
	}

	res.Consensus, res.Confidence = Tally(res.Participants)
	metrics.RecordConsensus(string(res.Consensus))
	return res, nil
}
