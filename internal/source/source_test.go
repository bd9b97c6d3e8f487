package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/contextsynth/internal/config"
	"github.com/dgallion1/contextsynth/internal/doctree"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func paths(files []doctree.File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.SourceID+":"+f.Path)
	}
	return out
}

func TestLoad_TotalOrder(t *testing.T) {
	root := writeTree(t, map[string]string{
		"docs/b.md":       "# B",
		"docs/a.md":       "# A",
		"docs/.hidden.md": "hidden",
		"docs/sub/c.md":   "# C",
		"notes/z.md":      "z",
		"notes/a.md":      "a",
		"notes/skip.txt":  "not markdown",
	})

	sources := []config.Source{
		{ID: "notes", Path: "notes/*.md", Weight: 0.5},
		{ID: "docs", Path: "docs/**/*.md", Weight: 1.0},
	}
	files, err := Load(context.Background(), sources, root, Options{MaxConcurrentReads: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"notes:notes/a.md",
		"notes:notes/z.md",
		"docs:docs/.hidden.md",
		"docs:docs/a.md",
		"docs:docs/b.md",
		"docs:docs/sub/c.md",
	}, paths(files))

	assert.Equal(t, 0, files[0].SourceOrder)
	assert.Equal(t, 0.5, files[0].SourceWeight)
	assert.Equal(t, 1, files[2].SourceOrder)
	assert.Equal(t, 1.0, files[2].SourceWeight)
	assert.Equal(t, "# A", files[3].Content)
	assert.Equal(t, doctree.ContentHashHex([]byte("# A")), files[3].Hash)
}

func TestLoad_RelativePrefixes(t *testing.T) {
	root := writeTree(t, map[string]string{
		"docs/a.md": "a",
	})
	files, err := Load(context.Background(), []config.Source{{ID: "docs", Path: "./docs/*.md", Weight: 1}}, root, Options{})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "docs/a.md", files[0].Path)
}

func TestLoad_AbsolutePattern(t *testing.T) {
	root := writeTree(t, map[string]string{
		"docs/a.md": "a",
	})
	pattern := filepath.ToSlash(filepath.Join(root, "docs")) + "/*.md"
	files, err := Load(context.Background(), []config.Source{{ID: "docs", Path: pattern, Weight: 1}}, t.TempDir(), Options{})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.ToSlash(filepath.Join(root, "docs", "a.md")), files[0].Path)
}

func TestLoad_SameFileInTwoSources(t *testing.T) {
	root := writeTree(t, map[string]string{"shared.md": "x"})
	files, err := Load(context.Background(), []config.Source{
		{ID: "one", Path: "*.md", Weight: 1},
		{ID: "two", Path: "shared.md", Weight: 1},
	}, root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"one:shared.md", "two:shared.md"}, paths(files))
}

func TestLoad_NoMatches(t *testing.T) {
	root := writeTree(t, map[string]string{"docs/a.txt": "a"})
	_, err := Load(context.Background(), []config.Source{
		{ID: "docs", Path: "docs/*.md", Weight: 1},
		{ID: "missing", Path: "nowhere/**/*.md", Weight: 1},
	}, root, Options{})

	var nm *NoMatchError
	require.True(t, errors.As(err, &nm), "expected *NoMatchError, got %v", err)
	assert.Equal(t, []string{"docs/*.md", "nowhere/**/*.md"}, nm.Patterns)
	assert.Contains(t, err.Error(), "zero files")
}

func TestLoad_InvalidPattern(t *testing.T) {
	root := writeTree(t, map[string]string{"a.md": "a"})
	_, err := Load(context.Background(), []config.Source{{ID: "bad", Path: "docs/[.md", Weight: 1}}, root, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source bad")
}

func TestLoad_CanceledContext(t *testing.T) {
	root := writeTree(t, map[string]string{"a.md": "a", "b.md": "b"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, []config.Source{{ID: "docs", Path: "*.md", Weight: 1}}, root, Options{})
	require.ErrorIs(t, err, context.Canceled)
}
