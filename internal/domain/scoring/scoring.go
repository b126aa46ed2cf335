// Package scoring holds the credibility math: outcome classification, the
// time-decayed confidence-weighted K factor and the Elo-style score update.
// Everything here is pure; callers fetch prices and persist results.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/callscore/internal/domain/model"
)

// Default scoring configuration constants.
const (
	defaultPositiveAlpha = 0.02
	defaultNegativeAlpha = -0.02
	defaultHoldUpper     = 0.01
	defaultHoldLower     = -0.01
	defaultDecayDays     = 180
	defaultBaseK         = 6
	defaultEloPivot      = 50
	defaultEloScale      = 20
	defaultMinScore      = 0
	defaultMaxScore      = 100
	defaultInitialScore  = 50
	defaultConfidence    = 0.7
	defaultHorizonDays   = 30
	defaultTierMinCalls  = 5
	defaultTopTierScore  = 80
	defaultRisingScore   = 65

	hoursPerDay = 24
)

// Params is the immutable scoring configuration. Copy it, adjust fields and
// call Validate to build alternates.
type Params struct {
	// BUY/SELL thresholds on alpha.
	PositiveAlpha float64 `koanf:"positive_alpha"`
	NegativeAlpha float64 `koanf:"negative_alpha"`
	// HOLD is correct strictly inside (HoldLower, HoldUpper).
	HoldUpper float64 `koanf:"hold_upper"`
	HoldLower float64 `koanf:"hold_lower"`

	// DecayDays is the e-folding time of the freshness factor.
	DecayDays float64 `koanf:"decay_days"`
	// BaseK is the sensitivity at full freshness and full confidence.
	BaseK float64 `koanf:"base_k"`
	// EloPivot is the score with an expected probability of one half.
	EloPivot float64 `koanf:"elo_pivot"`
	// EloScale is the score distance that moves the odds tenfold.
	EloScale float64 `koanf:"elo_scale"`

	MinScore     float64 `koanf:"min_score"`
	MaxScore     float64 `koanf:"max_score"`
	InitialScore float64 `koanf:"initial_score"`

	DefaultConfidence  float64 `koanf:"default_confidence"`
	DefaultHorizonDays int     `koanf:"default_horizon_days"`

	TierMinCalls int     `koanf:"tier_min_calls"`
	TopTierScore float64 `koanf:"top_tier_score"`
	RisingScore  float64 `koanf:"rising_score"`
}

// DefaultParams returns the production scoring configuration.
func DefaultParams() Params {
	return Params{
		PositiveAlpha:      defaultPositiveAlpha,
		NegativeAlpha:      defaultNegativeAlpha,
		HoldUpper:          defaultHoldUpper,
		HoldLower:          defaultHoldLower,
		DecayDays:          defaultDecayDays,
		BaseK:              defaultBaseK,
		EloPivot:           defaultEloPivot,
		EloScale:           defaultEloScale,
		MinScore:           defaultMinScore,
		MaxScore:           defaultMaxScore,
		InitialScore:       defaultInitialScore,
		DefaultConfidence:  defaultConfidence,
		DefaultHorizonDays: defaultHorizonDays,
		TierMinCalls:       defaultTierMinCalls,
		TopTierScore:       defaultTopTierScore,
		RisingScore:        defaultRisingScore,
	}
}

// Validate checks the internal consistency of p.
func (p Params) Validate() error {
	switch {
	case p.NegativeAlpha >= p.PositiveAlpha:
		return fmt.Errorf("negative_alpha must be below positive_alpha: %w", ErrInvalidParams)
	case p.HoldLower >= p.HoldUpper:
		return fmt.Errorf("hold_lower must be below hold_upper: %w", ErrInvalidParams)
	case p.DecayDays <= 0:
		return fmt.Errorf("decay_days must be positive: %w", ErrInvalidParams)
	case p.BaseK < 0:
		return fmt.Errorf("base_k must not be negative: %w", ErrInvalidParams)
	case p.EloScale <= 0:
		return fmt.Errorf("elo_scale must be positive: %w", ErrInvalidParams)
	case p.MinScore >= p.MaxScore:
		return fmt.Errorf("min_score must be below max_score: %w", ErrInvalidParams)
	case p.InitialScore < p.MinScore || p.InitialScore > p.MaxScore:
		return fmt.Errorf("initial_score outside score range: %w", ErrInvalidParams)
	case p.DefaultConfidence < 0 || p.DefaultConfidence > 1:
		return fmt.Errorf("default_confidence outside [0,1]: %w", ErrInvalidParams)
	case p.DefaultHorizonDays <= 0:
		return fmt.Errorf("default_horizon_days must be positive: %w", ErrInvalidParams)
	case p.TierMinCalls < 0:
		return fmt.Errorf("tier_min_calls must not be negative: %w", ErrInvalidParams)
	case p.RisingScore > p.TopTierScore:
		return fmt.Errorf("rising_score must not exceed top_tier_score: %w", ErrInvalidParams)
	}
	return nil
}

// Classify maps an action and its realized alpha to an outcome. HOLD is
// never INCORRECT.
func (p Params) Classify(action model.Action, alpha float64) model.Outcome {
	switch action {
	case model.ActionBuy:
		switch {
		case alpha >= p.PositiveAlpha:
			return model.OutcomeCorrect
		case alpha <= p.NegativeAlpha:
			return model.OutcomeIncorrect
		}
	case model.ActionSell:
		switch {
		case alpha <= p.NegativeAlpha:
			return model.OutcomeCorrect
		case alpha >= p.PositiveAlpha:
			return model.OutcomeIncorrect
		}
	case model.ActionHold:
		if p.HoldLower < alpha && alpha < p.HoldUpper {
			return model.OutcomeCorrect
		}
	}
	return model.OutcomeNeutral
}

// OutcomeValue is the realized score of an outcome: 1, 0.5 or 0.
func OutcomeValue(o model.Outcome) float64 {
	switch o {
	case model.OutcomeCorrect:
		return 1.0
	case model.OutcomeIncorrect:
		return 0.0
	default:
		return 0.5
	}
}

// Freshness is exp(-days/DecayDays).
func (p Params) Freshness(days float64) float64 {
	return math.Exp(-days / p.DecayDays)
}

// KFactor scales BaseK by freshness and by confidence, which is clamped to
// [0,1]; zero confidence keeps half the weight.
func (p Params) KFactor(freshness, confidence float64) float64 {
	return p.BaseK * freshness * (0.5 + 0.5*ClampConfidence(confidence))
}

// ExpectedProb is the logistic expectation that an analyst with score is
// judged correct. Strictly increasing in score.
func (p Params) ExpectedProb(score float64) float64 {
	return 1 / (1 + math.Pow(10, (p.EloPivot-score)/p.EloScale))
}

// ClampScore bounds score to [MinScore, MaxScore].
func (p Params) ClampScore(score float64) float64 {
	return math.Max(p.MinScore, math.Min(p.MaxScore, score))
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	return math.Max(0, math.Min(1, c))
}

// Tier derives the analyst label. Analysts below TierMinCalls are NEW, and
// experienced analysts under RisingScore fall back to NEW as well.
func (p Params) Tier(score float64, lifetimeCalls int) model.Tier {
	switch {
	case lifetimeCalls < p.TierMinCalls:
		return model.TierNew
	case score >= p.TopTierScore:
		return model.TierTopTier
	case score >= p.RisingScore:
		return model.TierRising
	default:
		return model.TierNew
	}
}

// Input is everything needed to score one matured recommendation.
type Input struct {
	Action     model.Action
	Confidence float64
	Score      float64
	P0, P1     float64
	Bench0     float64
	Bench1     float64
	Elapsed    time.Duration
}

// Assessment is the full result of scoring one recommendation.
type Assessment struct {
	AbsReturn   float64
	BenchReturn float64
	Alpha       float64
	Outcome     model.Outcome
	Freshness   float64
	K           float64
	Expected    float64
	Delta       float64
	NewScore    float64
}

// Assess computes returns, alpha, outcome and the score update. Entry prices
// must be positive; otherwise the returns are undefined and
// model.ErrPriceUnavailable is returned.
func (p Params) Assess(in Input) (Assessment, error) {
	if in.P0 <= 0 || in.Bench0 <= 0 || in.P1 <= 0 || in.Bench1 <= 0 {
		return Assessment{}, fmt.Errorf("non-positive price (p0=%g p1=%g bench0=%g bench1=%g): %w",
			in.P0, in.P1, in.Bench0, in.Bench1, model.ErrPriceUnavailable)
	}

	var a Assessment
	a.AbsReturn = (in.P1 - in.P0) / in.P0
	a.BenchReturn = (in.Bench1 - in.Bench0) / in.Bench0
	a.Alpha = a.AbsReturn - a.BenchReturn
	a.Outcome = p.Classify(in.Action, a.Alpha)

	days := in.Elapsed.Hours() / hoursPerDay
	a.Freshness = p.Freshness(days)
	a.K = p.KFactor(a.Freshness, in.Confidence)
	a.Expected = p.ExpectedProb(in.Score)
	a.Delta = a.K * (OutcomeValue(a.Outcome) - a.Expected)
	a.NewScore = p.ClampScore(in.Score + a.Delta)
	return a, nil
}
