package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/contextsynth/internal/config"
	"github.com/dgallion1/contextsynth/internal/extract"
	"github.com/dgallion1/contextsynth/internal/pipeline"
	"github.com/dgallion1/contextsynth/internal/router"
)

const testKey = "secret"

func workspace(t *testing.T, withConfig bool) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"TEMPLATE.md":   "# Title\n\n## Overview {#overview}\n\n## Setup {#setup}\n",
		"docs/guide.md": "## Overview\nWhat this is.\n",
	}
	if withConfig {
		files["cs.yaml"] = "sources: [{id: docs, path: 'docs/*.md'}]\ntemplate: TEMPLATE.md\n"
	}
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func newTestServer(t *testing.T, root string, start bool, stats *extract.LLMStats) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := config.Env{WorkerCount: 1, MaxQueueSize: 1, RunTTL: time.Hour}
	orch := pipeline.NewOrchestrator(env, root, func(cfg *config.Config) router.Router {
		return pipeline.NewRouter(cfg, nil, "", log)
	}, log)
	if start {
		orch.Start(context.Background())
		t.Cleanup(orch.Stop)
	}
	return NewServer(orch, stats, "claude-test", testKey, log)
}

func do(t *testing.T, s *Server, method, path, body string, auth bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if auth {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, workspace(t, true), false, nil)
	rec, body := do(t, s, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, workspace(t, true), false, nil)

	rec, body := do(t, s, http.MethodGet, "/api/slots", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing authorization", body["error"])

	req := httptest.NewRequest(http.MethodGet, "/api/slots", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthRejectsEverythingWithoutKey(t *testing.T) {
	root := workspace(t, true)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := pipeline.NewOrchestrator(config.Env{WorkerCount: 1, MaxQueueSize: 1, RunTTL: time.Hour}, root, nil, log)
	s := NewServer(orch, nil, "", "", log)

	req := httptest.NewRequest(http.MethodGet, "/api/slots", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndPollRun(t *testing.T) {
	root := workspace(t, true)
	s := newTestServer(t, root, true, nil)

	rec, body := do(t, s, http.MethodPost, "/api/runs", `{"config":"cs.yaml"}`, true)
	require.Equal(t, http.StatusAccepted, rec.Code, body)
	runID, _ := body["run_id"].(string)
	require.NotEmpty(t, runID)
	assert.Equal(t, "/api/runs/"+runID, body["poll_url"])

	var snap map[string]any
	require.Eventually(t, func() bool {
		_, snap = do(t, s, http.MethodGet, "/api/runs/"+runID, "", true)
		return snap["status"] == string(pipeline.StatusCompleted) || snap["status"] == string(pipeline.StatusFailed)
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, string(pipeline.StatusCompleted), snap["status"], snap["error"])
	summary := snap["summary"].(map[string]any)
	assert.EqualValues(t, 1, summary["filled_slots"])
	assert.EqualValues(t, 2, summary["total_slots"])

	out, err := os.ReadFile(filepath.Join(root, "CONTEXT.md"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "What this is.")
}

func TestCreateRunRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown field", `{"cfg":"cs.yaml"}`, "invalid request body"},
		{"bad routing mode", `{"routing_mode":"magic"}`, "unknown routing mode"},
		{"escaping config path", `{"config":"../cs.yaml"}`, "relative to the workspace root"},
		{"missing config", `{"config":"nope.yaml"}`, "read config"},
	}
	s := newTestServer(t, workspace(t, true), false, nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := do(t, s, http.MethodPost, "/api/runs", tc.body, true)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, body["error"], tc.want)
		})
	}
}

func TestCreateRunQueueFull(t *testing.T) {
	s := newTestServer(t, workspace(t, true), false, nil)

	rec, _ := do(t, s, http.MethodPost, "/api/runs", "", true)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec, body := do(t, s, http.MethodPost, "/api/runs", "", true)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, body["error"], "queue is full")
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestServer(t, workspace(t, true), false, nil)
	rec, body := do(t, s, http.MethodGet, "/api/runs/nope", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "run not found", body["error"])
}

func TestSlots(t *testing.T) {
	s := newTestServer(t, workspace(t, true), false, nil)
	rec, body := do(t, s, http.MethodGet, "/api/slots", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TEMPLATE.md", body["template"])
	assert.Equal(t, []any{
		map[string]any{"slot_id": "overview", "heading": "Overview"},
		map[string]any{"slot_id": "setup", "heading": "Setup"},
	}, body["slots"])
}

func TestSlotsFallBackToBuiltInTemplate(t *testing.T) {
	s := newTestServer(t, workspace(t, false), false, nil)
	rec, body := do(t, s, http.MethodGet, "/api/slots", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "(built-in)", body["template"])
	assert.NotEmpty(t, body["slots"])
}

func TestLLMStats(t *testing.T) {
	s := newTestServer(t, workspace(t, true), false, nil)
	rec, _ := do(t, s, http.MethodGet, "/api/stats/llm", "", true)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	stats := extract.NewLLMStats(time.Hour)
	stats.Record("claude-test", 120)
	s = newTestServer(t, workspace(t, true), false, stats)
	rec, body := do(t, s, http.MethodGet, "/api/stats/llm", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, 1, body["stats"].(map[string]any)["count"])
}
