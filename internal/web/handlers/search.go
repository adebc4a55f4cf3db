package handlers

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-finder/internal/bundle"
	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/logging"
	"github.com/kozaktomas/face-finder/internal/search"
	"go.uber.org/zap"
)

// SearchHandler answers face queries against one bundle snapshot.
type SearchHandler struct {
	searcher *search.Searcher
	bundle   *bundle.Bundle
	logger   *zap.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(searcher *search.Searcher, b *bundle.Bundle, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		searcher: searcher,
		bundle:   b,
		logger:   logging.OrNop(logger),
	}
}

// SearchResponse is the body of a successful search.
type SearchResponse struct {
	ID        string         `json:"id"`
	Query     string         `json:"query"`
	Threshold float64        `json:"threshold"`
	Count     int            `json:"count"`
	Matches   []search.Match `json:"matches"`
}

// Search handles POST /api/v1/search. The form carries the query image in
// "image", the similarity threshold in "threshold" and optionally the
// neighbour count in "k".
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	threshold, err := search.ParseThreshold(r.FormValue("threshold"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	k := 0
	if s := r.FormValue("k"); s != "" {
		k, err = strconv.Atoi(s)
		if err != nil || k <= 0 {
			respondError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
	}

	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}

	queryID := uuid.NewString()
	tempDir, err := os.MkdirTemp("", "face-finder-query-*")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create temp directory")
		return
	}
	defer os.RemoveAll(tempDir)

	queryPath, err := saveUpload(files[0], tempDir)
	if err != nil {
		h.logger.Error("failed to store query image", zap.String("id", queryID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	matches, err := h.searcher.Search(r.Context(), h.bundle, queryPath, threshold, k)
	switch {
	case errors.Is(err, search.ErrNoFaceDetected):
		respondError(w, http.StatusUnprocessableEntity, search.ErrNoFaceDetected.Error())
		return
	case err != nil:
		h.logger.Error("search failed",
			zap.String("id", queryID),
			zap.String("query", sanitizeForLog(files[0].Filename)),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	if matches == nil {
		matches = []search.Match{}
	}
	respondJSON(w, http.StatusOK, SearchResponse{
		ID:        queryID,
		Query:     files[0].Filename,
		Threshold: threshold,
		Count:     len(matches),
		Matches:   matches,
	})
}
