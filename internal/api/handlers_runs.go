package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/contextsynth/internal/config"
	"github.com/dgallion1/contextsynth/internal/doctree"
	"github.com/dgallion1/contextsynth/internal/pipeline"
)

const maxRequestBytes = 64 << 10

type createRunRequest struct {
	Config      string `json:"config"`       // Relative to the workspace root; empty means discover
	RoutingMode string `json:"routing_mode"` // Optional override of routing.mode
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req createRunRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.RoutingMode != "" {
		mode, err := config.ParseRoutingMode(req.RoutingMode)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.RoutingMode = mode
	}

	// Fail fast on a config the worker could not load.
	if _, err := s.orchestrator.LoadConfig(req.Config); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	run := pipeline.NewRun(req.Config, req.RoutingMode)
	if err := s.orchestrator.Submit(run); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	snap := run.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":   snap.ID,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/runs/%s", snap.ID),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run := s.orchestrator.GetRun(chi.URLParam(r, "runID"))
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run.Snapshot())
}

// handleSlots lists the routable slots of the template named by the config
// query parameter's run configuration, or of the built-in template when the
// workspace has no configuration.
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.orchestrator.LoadConfig(r.URL.Query().Get("config"))
	switch {
	case errors.Is(err, config.ErrNotFound):
		cfg = &config.Config{}
	case err != nil:
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tmpl, err := pipeline.LoadTemplate(cfg, s.orchestrator.Root())
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	slots := tmpl.Slots()
	if slots == nil {
		slots = []doctree.Slot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"template": templateName(cfg),
		"slots":    slots,
	})
}

func templateName(cfg *config.Config) string {
	if cfg.Template == "" {
		return "(built-in)"
	}
	return cfg.Template
}
