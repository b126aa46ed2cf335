package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/okian/callscore/internal/domain/model"
	"github.com/okian/callscore/internal/domain/pricing"
	"github.com/okian/callscore/pkg/logger"
	"github.com/okian/callscore/pkg/metrics"
)

const (
	defaultHTTPTimeout   = 5 * time.Second
	defaultRatePerSecond = 10
	defaultRateBurst     = 10
	defaultTripFailures  = 5
	defaultOpenFor       = 30 * time.Second
	maxBodyBytes         = 1 << 16

	sourceHTTP = "http"
)

var _ pricing.Oracle = (*HTTPOracle)(nil)

// errNoQuote marks a definitive "no price" answer from the upstream. It does
// not count against the circuit breaker.
var errNoQuote = errors.New("no quote")

type quote struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}

// HTTPOracle fetches prices from a market-data service:
//
//	GET {base}/prices/{symbol}?at=RFC3339 -> {"symbol","price","at"}
//
// Calls are rate limited, time bounded and wrapped in a circuit breaker.
// Every failure wraps model.ErrPriceUnavailable.
type HTTPOracle struct {
	base    *url.URL
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  logger.Logger

	ratePerSecond float64
	burst         int
	tripAfter     uint32
	openFor       time.Duration
}

// HTTPOption configures an HTTPOracle.
type HTTPOption func(*HTTPOracle)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(o *HTTPOracle) {
		if c != nil {
			o.client = c
		}
	}
}

// WithTimeout bounds each upstream call.
func WithTimeout(d time.Duration) HTTPOption {
	return func(o *HTTPOracle) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRateLimit sets the token bucket refill rate and burst size.
func WithRateLimit(perSecond float64, burst int) HTTPOption {
	return func(o *HTTPOracle) {
		if perSecond > 0 {
			o.ratePerSecond = perSecond
		}
		if burst > 0 {
			o.burst = burst
		}
	}
}

// WithBreaker opens the circuit after consecutive failures and keeps it open
// for openFor.
func WithBreaker(consecutiveFailures uint32, openFor time.Duration) HTTPOption {
	return func(o *HTTPOracle) {
		if consecutiveFailures > 0 {
			o.tripAfter = consecutiveFailures
		}
		if openFor > 0 {
			o.openFor = openFor
		}
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l logger.Logger) HTTPOption {
	return func(o *HTTPOracle) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewHTTPOracle builds an oracle against baseURL.
func NewHTTPOracle(baseURL string, opts ...HTTPOption) (*HTTPOracle, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("oracle base url %q: %w", baseURL, model.ErrInvalidArgument)
	}

	o := &HTTPOracle{
		base:          base,
		client:        &http.Client{},
		timeout:       defaultHTTPTimeout,
		logger:        logger.Nop(),
		ratePerSecond: defaultRatePerSecond,
		burst:         defaultRateBurst,
		tripAfter:     defaultTripFailures,
		openFor:       defaultOpenFor,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.limiter = rate.NewLimiter(rate.Limit(o.ratePerSecond), o.burst)
	o.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "price-oracle",
		Timeout: o.openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= o.tripAfter
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNoQuote)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.logger.Warn(context.Background(), "oracle breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	return o, nil
}

// PriceAt implements pricing.Oracle.
func (o *HTTPOracle) PriceAt(ctx context.Context, symbol string, when time.Time) (float64, error) {
	start := time.Now()
	defer func() {
		metrics.RecordOracleLatency(sourceHTTP, float64(time.Since(start).Milliseconds()))
	}()

	if err := o.limiter.Wait(ctx); err != nil {
		metrics.RecordOracleError("rate_limited")
		return 0, fmt.Errorf("%s: %w: %w", symbol, model.ErrPriceUnavailable, err)
	}

	res, err := o.breaker.Execute(func() (interface{}, error) {
		return o.fetch(ctx, symbol, when)
	})
	if err != nil {
		switch {
		case errors.Is(err, errNoQuote):
			metrics.RecordOracleError("not_found")
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.RecordOracleError("breaker_open")
		default:
			metrics.RecordOracleError("upstream")
		}
		return 0, fmt.Errorf("%s at %s: %w: %w", symbol, when.Format(time.RFC3339), model.ErrPriceUnavailable, err)
	}
	return res.(float64), nil
}

func (o *HTTPOracle) fetch(ctx context.Context, symbol string, when time.Time) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	u := o.base.JoinPath("prices", strings.ToUpper(symbol))
	u.RawQuery = url.Values{"at": []string{when.UTC().Format(time.RFC3339)}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, errNoQuote
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	var q quote
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&q); err != nil {
		return 0, fmt.Errorf("decode quote: %w", err)
	}
	if q.Price <= 0 {
		return 0, fmt.Errorf("non-positive price %g: %w", q.Price, errNoQuote)
	}
	return q.Price, nil
}

// BreakerState reports the circuit state, for health output.
func (o *HTTPOracle) BreakerState() string {
	return o.breaker.State().String()
}
