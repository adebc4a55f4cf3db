package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-finder/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	searchHandler := handlers.NewSearchHandler(s.searcher, s.bundle, s.logger)
	statsHandler := handlers.NewStatsHandler(s.bundle)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", statsHandler.Get)
		r.Post("/search", searchHandler.Search)
	})
}
