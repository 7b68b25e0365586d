// Package server exposes the synchronized state over a small HTTP
// surface: current sessions, discovery feeds, cache diagnostics, and an
// image passthrough so browsers never see server tokens.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"jellysync/internal/coordinator"
)

type Server struct {
	registry *coordinator.Registry
	log      *zap.Logger
	router   chi.Router
}

func New(registry *coordinator.Registry, log *zap.Logger) *Server {
	s := &Server{
		registry: registry,
		log:      log,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/servers", s.handleListServers)
	s.router.Route("/api/servers/{id}", func(r chi.Router) {
		r.Get("/sessions", s.handleSessions)
		r.Get("/discovery/{userID}", s.handleDiscovery)
		r.Post("/discovery/{userID}/refresh", s.handleDiscoveryRefresh)
		r.Get("/cache/stats", s.handleCacheStats)
		r.Get("/thumb/{itemID}", s.handleThumb)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encoding response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// coord resolves the coordinator for the {id} route param, writing a 404
// when it is not registered.
func (s *Server) coord(w http.ResponseWriter, r *http.Request) (*coordinator.Coordinator, bool) {
	id := chi.URLParam(r, "id")
	c, ok := s.registry.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown server")
		return nil, false
	}
	return c, true
}
