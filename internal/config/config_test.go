package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
sources:
  - id: docs
    path: "docs/**/*.md"
  - id: notes
    path: "notes/*.md"
    weight: 0.5
`))
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, []Source{
		{ID: "docs", Path: "docs/**/*.md", Weight: 1.0},
		{ID: "notes", Path: "notes/*.md", Weight: 0.5},
	}, cfg.Sources)
	assert.Empty(t, cfg.Template)
	assert.Equal(t, Routing{Mode: RoutingHeuristic}, cfg.Routing)
	assert.Equal(t, DefaultOutputPath, cfg.Output)
	assert.True(t, cfg.Emit.Citations)
	assert.Equal(t, Chunking{Mode: ChunkingHeadings, Frontmatter: FrontmatterKeep}, cfg.Chunking)
}

func TestParse_OverridesEveryField(t *testing.T) {
	cfg, err := Parse([]byte(`
version: 1
sources:
  - id: docs
    path: docs/*.md
    weight: 0
template: templates/CONTEXT.md
routing:
  mode: model
  model: sonnet
context:
  path: out/CONTEXT.md
emit:
  citations: false
chunking:
  mode: headings
  frontmatter: strip
`))
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.Sources[0].Weight)
	assert.Equal(t, "templates/CONTEXT.md", cfg.Template)
	assert.Equal(t, Routing{Mode: RoutingModel, Model: "sonnet"}, cfg.Routing)
	assert.Equal(t, "out/CONTEXT.md", cfg.Output)
	assert.False(t, cfg.Emit.Citations)
	assert.Equal(t, FrontmatterStrip, cfg.Chunking.Frontmatter)
}

func TestParse_CursorModeIsModelAlias(t *testing.T) {
	cfg, err := Parse([]byte(`
sources: [{id: docs, path: "*.md"}]
routing: {mode: cursor}
`))
	require.NoError(t, err)
	assert.Equal(t, RoutingModel, cfg.Routing.Mode)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty document", ``, "config is empty"},
		{"wrong version", "version: 2\nsources: [{id: a, path: x}]", "must be 1"},
		{"no sources", "version: 1", "sources: must be a non-empty list"},
		{"empty sources", "sources: []", "sources: must be a non-empty list"},
		{"missing id", "sources: [{path: x}]", "source #0"},
		{"blank path", "sources: [{id: a, path: '  '}]", "source a"},
		{"duplicate id", "sources: [{id: a, path: x}, {id: a, path: y}]", `duplicate source id "a"`},
		{"weight above one", "sources: [{id: a, path: x, weight: 1.5}]", "between 0 and 1"},
		{"negative weight", "sources: [{id: a, path: x, weight: -0.1}]", "between 0 and 1"},
		{"nan weight", "sources: [{id: a, path: x, weight: .nan}]", "between 0 and 1"},
		{"bad routing mode", "sources: [{id: a, path: x}]\nrouting: {mode: magic}", "routing"},
		{"bad chunking mode", "sources: [{id: a, path: x}]\nchunking: {mode: paragraphs}", "chunking"},
		{"bad frontmatter", "sources: [{id: a, path: x}]\nchunking: {frontmatter: drop}", "chunking"},
		{"blank template", "sources: [{id: a, path: x}]\ntemplate: ' '", "template must be a non-empty string"},
		{"blank output", "sources: [{id: a, path: x}]\ncontext: {path: ''}", "context_path"},
		{"unknown field", "sources: [{id: a, path: x}]\nextra: true", "parse yaml"},
		{"unknown nested field", "sources: [{id: a, path: x, wieght: 1}]", "parse yaml"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected *ValidationError, got %T", err)
			assert.Contains(t, err.Error(), tc.want)
			assert.Contains(t, err.Error(), "config validation error")
		})
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources: [{id: docs, path: '*.md'}]\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "docs", cfg.Sources[0].ID)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()

	_, err := Discover(dir)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "context-synth.yml"), []byte("x"), 0o644))
	got, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "context-synth.yml"), got)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cs.yaml"), []byte("x"), 0o644))
	got, err = Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cs.yaml"), got, "cs.yaml takes precedence")
}

func TestLoadEnv_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("WORKER_COUNT", "-3")
	t.Setenv("RUN_TTL", "not-a-duration")
	t.Setenv("ANTHROPIC_MODEL", "")

	env := LoadEnv()
	assert.Equal(t, "8090", env.Port)
	assert.Equal(t, 2, env.WorkerCount)
	assert.Equal(t, time.Hour, env.RunTTL)
	assert.Equal(t, "claude-sonnet-4-5-20250929", env.AnthropicModel)
	assert.Equal(t, 16, env.MaxConcurrentReads)
}

func TestEnv_ValidateServe(t *testing.T) {
	assert.Error(t, Env{}.ValidateServe())
	assert.NoError(t, Env{APIKey: "secret"}.ValidateServe())
}

func TestParseRoutingMode(t *testing.T) {
	for in, want := range map[string]string{"heuristic": RoutingHeuristic, " Model ": RoutingModel, "cursor": RoutingModel} {
		got, err := ParseRoutingMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseRoutingMode("magic")
	assert.ErrorContains(t, err, `unknown routing mode "magic"`)
}
