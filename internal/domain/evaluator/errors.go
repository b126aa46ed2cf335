package evaluator

import "fmt"

// ItemError is the failure of a single recommendation inside a run. The
// recommendation stays OPEN and is retried by the next run.
type ItemError struct {
	RecommendationID string
	AnalystID        string
	Err              error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("recommendation %s (analyst %s): %v", e.RecommendationID, e.AnalystID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}
