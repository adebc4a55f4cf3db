package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-finder/internal/bundle"
)

// StatsHandler reports what the served bundle contains.
type StatsHandler struct {
	bundle *bundle.Bundle
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(b *bundle.Bundle) *StatsHandler {
	return &StatsHandler{bundle: b}
}

// StatsResponse represents the stats response.
type StatsResponse struct {
	Bundle string `json:"bundle"`
	bundle.Stats
}

// Get handles GET /api/v1/stats.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatsResponse{
		Bundle: h.bundle.Dir,
		Stats:  h.bundle.Stats(),
	})
}
