package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/okian/callscore/internal/domain/ledger"
	"github.com/okian/callscore/internal/domain/registry"
	"github.com/okian/callscore/pkg/logger"
)

// handleCreateAnalyst handles POST /analysts.
func (s *Server) handleCreateAnalyst(w http.ResponseWriter, r *http.Request) {
	var req createAnalystRequest
	if err := s.decode(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	a, err := s.deps.CreateAnalyst(r.Context(), registry.NewAnalyst{
		DisplayName:     req.DisplayName,
		Firm:            req.Firm,
		Specializations: req.Specializations,
		InitialScore:    req.InitialScore,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAnalyst(a))
}

// handleListAnalysts handles GET /analysts?limit=N&order_by=score|lifetimeCalls.
func (s *Server) handleListAnalysts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n := s.maxListLimit
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("limit %q: %w", raw, ErrBadRequest))
			return
		}
		if v > s.maxListLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded",
				fmt.Errorf("limit %d exceeds %d: %w", v, s.maxListLimit, ErrBadRequest))
			return
		}
		n = v
	}
	list, err := s.deps.ListTopAnalysts(r.Context(), n, q.Get("order_by"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	out := make([]analystResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAnalyst(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleProfile handles GET /analysts/{id}?recent=N.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	recent := 0
	if raw := r.URL.Query().Get("recent"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("recent %q: %w", raw, ErrBadRequest))
			return
		}
		recent = v
	}
	p, err := s.deps.AnalystProfile(r.Context(), mux.Vars(r)["id"], recent)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfile(p))
}

// idempotencyHeader lets clients retry POST /recommendations safely.
const idempotencyHeader = "Idempotency-Key"

// handleRecord handles POST /recommendations. With an Idempotency-Key header
// a repeated request returns the first recommendation with 200.
func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := s.decode(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	in := ledger.Input{
		AnalystID:   req.AnalystID,
		Ticker:      req.Ticker,
		Action:      req.Action,
		Confidence:  req.Confidence,
		HorizonDays: req.HorizonDays,
		TargetPrice: req.TargetPrice,
		Note:        req.Note,
		Sector:      req.Sector,
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key == "" {
		rec, err := s.deps.RecordRecommendation(r.Context(), in)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toRecommendation(rec))
		return
	}

	rec, replayed, err := s.deps.RecordRecommendationOnce(r.Context(), key, in)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, toRecommendation(rec))
}

// handleConsensus handles GET /consensus/{ticker}?max_age_days=N.
func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("max_age_days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("max_age_days %q: %w", raw, ErrBadRequest))
			return
		}
		days = v
	}
	res, err := s.deps.WeightedConsensus(r.Context(), mux.Vars(r)["ticker"], days)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsensus(res))
}

// handleRunEvaluator handles POST /evaluator/run. An empty body evaluates at
// the current instant; an explicit at may only look back, since a closed
// recommendation cannot be reopened.
func (s *Server) handleRunEvaluator(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	at := now
	if r.ContentLength != 0 {
		var req runRequest
		if err := s.decode(r, &req); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		if req.At != nil {
			at = *req.At
		}
	}
	if at.After(now) {
		writeError(w, http.StatusBadRequest, "bad_request",
			fmt.Errorf("at %s is after the current time: %w", at.Format(time.RFC3339), ErrBadRequest))
		return
	}
	res, err := s.deps.RunEvaluator(r.Context(), at)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info(r.Context(), "manual evaluation run",
		logger.Time("at", at),
		logger.Int("evaluated", res.Evaluated),
		logger.Int("errors", len(res.Errors)))
	writeJSON(w, http.StatusOK, toRun(res))
}

