package model

import "time"

// Outcome classifies a recommendation against realized alpha.
type Outcome string

const (
	OutcomeCorrect   Outcome = "CORRECT"
	OutcomeNeutral   Outcome = "NEUTRAL"
	OutcomeIncorrect Outcome = "INCORRECT"
)

// Evaluation is the immutable verdict written when a recommendation closes.
// There is exactly one per closed recommendation.
type Evaluation struct {
	ID               string
	RecommendationID string
	AnalystID        string
	Ticker           string
	Action           Action
	Benchmark        string
	HorizonDays      int
	T1               time.Time
	P1               float64
	Bench0           float64
	Bench1           float64
	BenchReturn      float64
	AbsReturn        float64
	Alpha            float64
	Outcome          Outcome
	ScoreDelta       float64
	ScoreBefore      float64
	ScoreAfter       float64
	CreatedAt        time.Time
}
