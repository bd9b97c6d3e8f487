// Package source expands weighted source patterns into an ordered list of
// loaded markdown files.
package source

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/contextsynth/internal/config"
	"github.com/dgallion1/contextsynth/internal/doctree"
)

// NoMatchError is returned when no source pattern matched any file.
type NoMatchError struct {
	Patterns []string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("glob matches across all sources yielded zero files (patterns: %s)", strings.Join(e.Patterns, ", "))
}

// Options tunes loading.
type Options struct {
	MaxConcurrentReads int
}

type match struct {
	source config.Source
	order  int
	path   string // Reported path, forward slashes
	abs    string // Path on disk
}

// Load expands every source pattern relative to root, reads the matched files
// and returns them ordered by (source order, path).
func Load(ctx context.Context, sources []config.Source, root string, opts Options) ([]doctree.File, error) {
	if opts.MaxConcurrentReads <= 0 {
		opts.MaxConcurrentReads = 16
	}

	var matches []match
	patterns := make([]string, 0, len(sources))
	for idx, src := range sources {
		patterns = append(patterns, src.Path)
		paths, err := expand(root, src.Path)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, err)
		}
		for _, p := range paths {
			matches = append(matches, match{source: src, order: idx, path: p.rel, abs: p.abs})
		}
	}
	if len(matches) == 0 {
		return nil, &NoMatchError{Patterns: patterns}
	}

	files := make([]doctree.File, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxConcurrentReads)
	for i, m := range matches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(m.abs)
			if err != nil {
				return fmt.Errorf("read %s: %w", m.path, err)
			}
			files[i] = doctree.File{
				SourceID:     m.source.ID,
				SourceWeight: m.source.Weight,
				SourceOrder:  m.order,
				Path:         m.path,
				Content:      string(data),
				Hash:         doctree.ContentHashHex(data),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(files, func(a, b doctree.File) int {
		if a.SourceOrder != b.SourceOrder {
			return a.SourceOrder - b.SourceOrder
		}
		return strings.Compare(a.Path, b.Path)
	})
	return files, nil
}

type expanded struct {
	rel string
	abs string
}

// expand globs pattern against root. Dotfiles match like any other name and
// `**` crosses directories. Relative patterns report paths relative to root;
// absolute patterns report absolute paths.
func expand(root, pattern string) ([]expanded, error) {
	slashRoot := filepath.ToSlash(root)
	pat := filepath.ToSlash(pattern)
	absolute := path.IsAbs(pat) || filepath.IsAbs(pattern)
	if !absolute {
		pat = path.Join(slashRoot, pat)
	}

	base, rest := doublestar.SplitPattern(pat)
	if !doublestar.ValidatePattern(rest) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}
	found, err := doublestar.Glob(os.DirFS(filepath.FromSlash(base)), rest, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}

	out := make([]expanded, 0, len(found))
	for _, f := range found {
		full := path.Join(base, f)
		rel := full
		if !absolute {
			r, err := filepath.Rel(filepath.FromSlash(slashRoot), filepath.FromSlash(full))
			if err != nil {
				return nil, fmt.Errorf("relativize %s: %w", full, err)
			}
			rel = filepath.ToSlash(r)
		}
		out = append(out, expanded{rel: rel, abs: filepath.FromSlash(full)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rel < out[j].rel })
	return out, nil
}
