// Package server is the engine's inbound HTTP surface: the Download
// Manager pulls submitted DAR documents from it, and it exposes health
// and metrics endpoints.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/eo-tools/eoingest/internal/dm"
)

// DARSource hands out queued DAR documents by sequence id. The dm
// controller implements it.
type DARSource interface {
	NextDAR(seqID string) *dm.DAR
}

type Server struct {
	dars    DARSource
	metrics http.Handler
	logger  *slog.Logger
}

func New(dars DARSource, metricsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{dars: dars, metrics: metricsHandler, logger: logger}
}

// Router builds the HTTP routes. The /ingest/dar path segment is part
// of the DM contract: submitted darUrl values point here.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/ingest/dar/{seqID}", s.serveDAR)
	return r
}

// serveDAR returns the DAR document previously submitted under the
// sequence id. Each document is handed out once.
func (s *Server) serveDAR(w http.ResponseWriter, r *http.Request) {
	seqID := chi.URLParam(r, "seqID")
	dar := s.dars.NextDAR(seqID)
	if dar == nil {
		s.logger.Warn("DM pulled unknown DAR", "seqID", seqID)
		http.Error(w, "no DAR for sequence id", http.StatusNotFound)
		return
	}

	body, err := dar.Marshal()
	if err != nil {
		s.logger.Error("cannot marshal DAR", "seqID", seqID, "error", err)
		http.Error(w, "cannot marshal DAR", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
