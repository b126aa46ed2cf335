// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/callscore/internal/adapters/http/swagger"
	"github.com/okian/callscore/internal/domain/consensus"
	"github.com/okian/callscore/internal/domain/evaluator"
	"github.com/okian/callscore/internal/domain/ledger"
	"github.com/okian/callscore/internal/domain/model"
	"github.com/okian/callscore/internal/domain/registry"
	"github.com/okian/callscore/pkg/logger"
	"github.com/okian/callscore/pkg/metrics"
)

const defaultMaxListLimit = 100

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CreateAnalyst(ctx context.Context, in registry.NewAnalyst) (model.Analyst, error)
	ListTopAnalysts(ctx context.Context, limit int, orderBy string) ([]model.Analyst, error)
	AnalystProfile(ctx context.Context, id string, recentLimit int) (registry.Profile, error)
	RecordRecommendation(ctx context.Context, in ledger.Input) (model.Recommendation, error)
	RecordRecommendationOnce(ctx context.Context, key string, in ledger.Input) (model.Recommendation, bool, error)
	WeightedConsensus(ctx context.Context, ticker string, maxAgeDays int) (consensus.Result, error)
	RunEvaluator(ctx context.Context, now time.Time) (evaluator.RunResult, error)
	GetStats() map[string]interface{}
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxListLimit caps the limit accepted by GET /analysts.
func WithMaxListLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxListLimit = n
		}
	}
}

// WithClock overrides the instant used by manual evaluator runs.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps         Dependencies
	validate     *validator.Validate
	maxListLimit int
	now          func() time.Time
	logger       logger.Logger
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:         deps,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		maxListLimit: defaultMaxListLimit,
		now:          time.Now,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns a router with every route registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.Register(r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/healthz", MetricsMiddleware(s.handleHealth, "healthz")).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/stats", MetricsMiddleware(s.handleStats, "stats")).Methods(http.MethodGet)
	swagger.Register(r)

	r.HandleFunc("/analysts", MetricsMiddleware(s.handleCreateAnalyst, "analysts_create")).Methods(http.MethodPost)
	r.HandleFunc("/analysts", MetricsMiddleware(s.handleListAnalysts, "analysts_list")).Methods(http.MethodGet)
	r.HandleFunc("/analysts/{id}", MetricsMiddleware(s.handleProfile, "analysts_profile")).Methods(http.MethodGet)

	r.HandleFunc("/recommendations", MetricsMiddleware(s.handleRecord, "recommendations")).Methods(http.MethodPost)
	r.HandleFunc("/consensus/{ticker}", MetricsMiddleware(s.handleConsensus, "consensus")).Methods(http.MethodGet)
	r.HandleFunc("/evaluator/run", MetricsMiddleware(s.handleRunEvaluator, "evaluator_run")).Methods(http.MethodPost)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps engine error kinds to status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidArgument), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrAlreadyClosed):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, model.ErrPriceUnavailable):
		writeError(w, http.StatusBadGateway, "price_unavailable", err)
	default:
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// decode reads a JSON body into v and validates its struct tags.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrBadRequest, err)
	}
	if err := s.validate.Struct(v); err != nil {
		return errors.Join(ErrBadRequest, err)
	}
	return nil
}
