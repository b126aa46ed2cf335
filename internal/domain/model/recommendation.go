package model

import (
	"fmt"
	"strings"
	"time"
)

// Action is the call an analyst makes on a ticker.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionHold Action = "HOLD"
	ActionSell Action = "SELL"
)

// Actions lists every valid action in a stable order.
var Actions = []Action{ActionBuy, ActionHold, ActionSell}

// ParseAction accepts BUY, HOLD or SELL in any case.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionBuy, ActionHold, ActionSell:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q: %w", s, ErrInvalidArgument)
	}
}

// Status is the lifecycle state of a recommendation. OPEN moves to CLOSED
// exactly once.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Recommendation is a timestamped call pinned to its entry price and
// benchmark.
type Recommendation struct {
	ID        string
	AnalystID string
	Ticker    string
	Action    Action
	// Confidence is within [0, 1].
	Confidence  float64
	HorizonDays int
	TargetPrice *float64
	Note        string
	// Sector is the input the benchmark was resolved from.
	Sector    string
	Benchmark string
	T0        time.Time
	P0        float64
	Status    Status
	CreatedAt time.Time
	ClosedAt  time.Time
}

// Horizon returns the holding period as a duration.
func (r Recommendation) Horizon() time.Duration {
	return time.Duration(r.HorizonDays) * 24 * time.Hour
}

// Due reports whether the horizon has elapsed at now.
func (r Recommendation) Due(now time.Time) bool {
	return r.Status == StatusOpen && now.Sub(r.T0) >= r.Horizon()
}

// Clone returns a copy that shares no pointers with r.
func (r Recommendation) Clone() Recommendation {
	if r.TargetPrice != nil {
		tp := *r.TargetPrice
		r.TargetPrice = &tp
	}
	return r
}
