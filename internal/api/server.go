package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/contextsynth/internal/extract"
	"github.com/dgallion1/contextsynth/internal/pipeline"
)

// Server is the HTTP API server for contextsynth.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	stats        *extract.LLMStats
	model        string
	apiKey       string
	log          *slog.Logger
}

// NewServer creates and configures the HTTP server. stats may be nil when
// model routing is not configured.
func NewServer(orch *pipeline.Orchestrator, stats *extract.LLMStats, model, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		orchestrator: orch,
		stats:        stats,
		model:        model,
		apiKey:       apiKey,
		log:          log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKey))

		r.Post("/api/runs", s.handleCreateRun)
		r.Get("/api/runs/{runID}", s.handleGetRun)
		r.Get("/api/slots", s.handleSlots)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
