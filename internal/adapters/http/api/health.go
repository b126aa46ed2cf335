package api

import "net/http"

type healthResponse struct {
	Status string `json:"status"`
}

// handleHealth handles GET /healthz. Prometheus metrics live on /metrics.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
