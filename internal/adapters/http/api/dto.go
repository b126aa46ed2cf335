package api

import (
	"errors"
	"time"

	"github.com/okian/callscore/internal/domain/consensus"
	"github.com/okian/callscore/internal/domain/evaluator"
	"github.com/okian/callscore/internal/domain/model"
	"github.com/okian/callscore/internal/domain/registry"
)

type createAnalystRequest struct {
	DisplayName     string   `json:"displayName" validate:"required,max=200"`
	Firm            string   `json:"firm" validate:"max=200"`
	Specializations []string `json:"specializations" validate:"max=32,dive,max=100"`
	InitialScore    *float64 `json:"initialScore"`
}

type recordRequest struct {
	AnalystID   string   `json:"analystId" validate:"required"`
	Ticker      string   `json:"ticker" validate:"required,max=16"`
	Action      string   `json:"action" validate:"required"`
	Confidence  *float64 `json:"confidence"`
	HorizonDays *int     `json:"horizonDays"`
	TargetPrice *float64 `json:"targetPrice" validate:"omitempty,gt=0"`
	Note        string   `json:"note" validate:"max=2000"`
	Sector      string   `json:"sector" validate:"max=100"`
}

type runRequest struct {
	// At overrides the evaluation instant; RFC3339.
	At *time.Time `json:"at"`
}

type analystResponse struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"displayName"`
	Firm            string    `json:"firm,omitempty"`
	Specializations []string  `json:"specializations"`
	Score           float64   `json:"score"`
	LifetimeCalls   int       `json:"lifetimeCalls"`
	Tier            string    `json:"tier"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toAnalyst(a model.Analyst) analystResponse {
	specs := a.Specializations
	if specs == nil {
		specs = []string{}
	}
	return analystResponse{
		ID:              a.ID,
		DisplayName:     a.DisplayName,
		Firm:            a.Firm,
		Specializations: specs,
		Score:           a.Score,
		LifetimeCalls:   a.LifetimeCalls,
		Tier:            string(a.Tier),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type recommendationResponse struct {
	ID          string     `json:"id"`
	AnalystID   string     `json:"analystId"`
	Ticker      string     `json:"ticker"`
	Action      string     `json:"action"`
	Confidence  float64    `json:"confidence"`
	HorizonDays int        `json:"horizonDays"`
	TargetPrice *float64   `json:"targetPrice,omitempty"`
	Note        string     `json:"note,omitempty"`
	Sector      string     `json:"sector,omitempty"`
	Benchmark   string     `json:"benchmark"`
	T0          time.Time  `json:"t0"`
	P0          float64    `json:"p0"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
}

func toRecommendation(r model.Recommendation) recommendationResponse {
	out := recommendationResponse{
		ID:          r.ID,
		AnalystID:   r.AnalystID,
		Ticker:      r.Ticker,
		Action:      string(r.Action),
		Confidence:  r.Confidence,
		HorizonDays: r.HorizonDays,
		TargetPrice: r.TargetPrice,
		Note:        r.Note,
		Sector:      r.Sector,
		Benchmark:   r.Benchmark,
		T0:          r.T0,
		P0:          r.P0,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
	}
	if !r.ClosedAt.IsZero() {
		closed := r.ClosedAt
		out.ClosedAt = &closed
	}
	return out
}

type evaluationResponse struct {
	ID               string    `json:"id"`
	RecommendationID string    `json:"recommendationId"`
	Ticker           string    `json:"ticker"`
	Action           string    `json:"action"`
	Benchmark        string    `json:"benchmark"`
	T1               time.Time `json:"t1"`
	P1               float64   `json:"p1"`
	AbsReturn        float64   `json:"absReturn"`
	BenchReturn      float64   `json:"benchReturn"`
	Alpha            float64   `json:"alpha"`
	Outcome          string    `json:"outcome"`
	ScoreDelta       float64   `json:"scoreDelta"`
	ScoreAfter       float64   `json:"scoreAfter"`
}

func toEvaluation(e model.Evaluation) evaluationResponse {
	return evaluationResponse{
		ID:               e.ID,
		RecommendationID: e.RecommendationID,
		Ticker:           e.Ticker,
		Action:           string(e.Action),
		Benchmark:        e.Benchmark,
		T1:               e.T1,
		P1:               e.P1,
		AbsReturn:        e.AbsReturn,
		BenchReturn:      e.BenchReturn,
		Alpha:            e.Alpha,
		Outcome:          string(e.Outcome),
		ScoreDelta:       e.ScoreDelta,
		ScoreAfter:       e.ScoreAfter,
	}
}

type summaryResponse struct {
	TotalCalls      int        `json:"totalCalls"`
	OpenCalls       int        `json:"openCalls"`
	Correct         int        `json:"correct"`
	Neutral         int        `json:"neutral"`
	Incorrect       int        `json:"incorrect"`
	HitRate         float64    `json:"hitRate"`
	AvgAlpha        float64    `json:"avgAlpha"`
	TotalScoreDelta float64    `json:"totalScoreDelta"`
	LastEvaluatedAt *time.Time `json:"lastEvaluatedAt,omitempty"`
}

type profileResponse struct {
	Analyst               analystResponse          `json:"analyst"`
	Rank                  int                      `json:"rank"`
	RecentRecommendations []recommendationResponse `json:"recentRecommendations"`
	Evaluations           []evaluationResponse     `json:"evaluations"`
	PerformanceSummary    summaryResponse          `json:"performanceSummary"`
}

func toProfile(p registry.Profile) profileResponse {
	out := profileResponse{
		Analyst:               toAnalyst(p.Analyst),
		Rank:                  p.Rank,
		RecentRecommendations: make([]recommendationResponse, 0, len(p.RecentRecommendations)),
		Evaluations:           make([]evaluationResponse, 0, len(p.Evaluations)),
		PerformanceSummary: summaryResponse{
			TotalCalls:      p.Summary.TotalCalls,
			OpenCalls:       p.Summary.OpenCalls,
			Correct:         p.Summary.Correct,
			Neutral:         p.Summary.Neutral,
			Incorrect:       p.Summary.Incorrect,
			HitRate:         p.Summary.HitRate,
			AvgAlpha:        p.Summary.AvgAlpha,
			TotalScoreDelta: p.Summary.TotalScoreDelta,
		},
	}
	if !p.Summary.LastEvaluatedAt.IsZero() {
		last := p.Summary.LastEvaluatedAt
		out.PerformanceSummary.LastEvaluatedAt = &last
	}
	for _, r := range p.RecentRecommendations {
		out.RecentRecommendations = append(out.RecentRecommendations, toRecommendation(r))
	}
	for _, e := range p.Evaluations {
		out.Evaluations = append(out.Evaluations, toEvaluation(e))
	}
	return out
}

type participantResponse struct {
	AnalystID string  `json:"analystId"`
	Action    string  `json:"action"`
	Weight    float64 `json:"weight"`
	Score     float64 `json:"score"`
}

type consensusResponse struct {
	Ticker       string                `json:"ticker"`
	Consensus    string                `json:"consensus"`
	Confidence   float64               `json:"confidence"`
	Participants []participantResponse `json:"participants"`
}

func toConsensus(res consensus.Result) consensusResponse {
	out := consensusResponse{
		Ticker:       res.Ticker,
		Consensus:    string(res.Consensus),
		Confidence:   res.Confidence,
		Participants: make([]participantResponse, 0, len(res.Participants)),
	}
	for _, p := range res.Participants {
		out.Participants = append(out.Participants, participantResponse{
			AnalystID: p.AnalystID,
			Action:    string(p.Action),
			Weight:    p.Weight,
			Score:     p.Score,
		})
	}
	return out
}

type itemErrorResponse struct {
	RecommendationID string `json:"recommendationId"`
	AnalystID        string `json:"analystId"`
	Error            string `json:"error"`
}

type runResponse struct {
	Evaluated int                 `json:"evaluated"`
	Pending   int                 `json:"pending"`
	Skipped   int                 `json:"skipped"`
	Errors    []itemErrorResponse `json:"errors"`
	TookMs    int64               `json:"tookMs"`
}

func toRun(res evaluator.RunResult) runResponse {
	out := runResponse{
		Evaluated: res.Evaluated,
		Pending:   res.Pending,
		Skipped:   res.Skipped,
		Errors:    make([]itemErrorResponse, 0, len(res.Errors)),
		TookMs:    res.Took.Milliseconds(),
	}
	for _, err := range res.Errors {
		item := itemErrorResponse{Error: err.Error()}
		var ie *evaluator.ItemError
		if errors.As(err, &ie) {
			item.RecommendationID = ie.RecommendationID
			item.AnalystID = ie.AnalystID
			item.Error = ie.Err.Error()
		}
		out.Errors = append(out.Errors, item)
	}
	return out
}
