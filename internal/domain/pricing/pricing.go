// Package pricing defines the price oracle port.
package pricing

import (
	"context"
	"time"
)

// Oracle returns the price of a symbol at or near an instant. Failures wrap
// model.ErrPriceUnavailable.
type Oracle interface {
	PriceAt(ctx context.Context, symbol string, when time.Time) (float64, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, symbol string, when time.Time) (float64, error)

// PriceAt calls f.
func (f OracleFunc) PriceAt(ctx context.Context, symbol string, when time.Time) (float64, error) {
	return f(ctx, symbol, when)
}
