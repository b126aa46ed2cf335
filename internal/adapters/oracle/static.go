// Package oracle provides price oracle adapters: a rate-limited HTTP client
// guarded by a circuit breaker, a Redis read-through cache and an in-memory
// series for tests and demos.
package oracle

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/okian/callscore/internal/domain/model"
	"github.com/okian/callscore/internal/domain/pricing"
)

var _ pricing.Oracle = (*StaticOracle)(nil)

// Point is one observation in a price series.
type Point struct {
	At    time.Time
	Price float64
}

// StaticOracle answers from in-memory series. The price at an instant is the
// latest observation at or before it.
type StaticOracle struct {
	mu     sync.RWMutex
	series map[string][]Point
}

// NewStaticOracle returns an empty oracle.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{series: make(map[string][]Point)}
}

// Set records price for symbol at instant at, replacing an existing
// observation at the same instant.
func (o *StaticOracle) Set(symbol string, at time.Time, price float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	key := strings.ToUpper(symbol)
	pts := o.series[key]
	i, found := slices.BinarySearchFunc(pts, at, func(p Point, t time.Time) int {
		return p.At.Compare(t)
	})
	if found {
		pts[i].Price = price
		return
	}
	o.series[key] = slices.Insert(pts, i, Point{At: at, Price: price})
}

// PriceAt implements pricing.Oracle.
func (o *StaticOracle) PriceAt(ctx context.Context, symbol string, when time.Time) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s at %s: %w: %w", symbol, when.Format(time.RFC3339), model.ErrPriceUnavailable, err)
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	pts := o.series[strings.ToUpper(symbol)]
	// First index strictly after when; the point before it is the answer.
	i, _ := slices.BinarySearchFunc(pts, when, func(p Point, t time.Time) int {
		if p.At.After(t) {
			return 1
		}
		return -1
	})
	if i == 0 {
		return 0, fmt.Errorf("no %s price at or before %s: %w", symbol, when.Format(time.RFC3339), model.ErrPriceUnavailable)
	}
	return pts[i-1].Price, nil
}
