package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dgallion1/contextsynth/internal/chunker"
	"github.com/dgallion1/contextsynth/internal/config"
	"github.com/dgallion1/contextsynth/internal/doctree"
	"github.com/dgallion1/contextsynth/internal/parser"
	"github.com/dgallion1/contextsynth/internal/render"
	"github.com/dgallion1/contextsynth/internal/router"
	"github.com/dgallion1/contextsynth/internal/source"
	"github.com/dgallion1/contextsynth/internal/synth"
)

// ErrCanceled is returned when a run stops because its context was canceled.
var ErrCanceled = errors.New("operation canceled")

// Progress messages, reported once per stage.
const (
	MsgLoading      = "Loading sources…"
	MsgChunking     = "Chunking sources…"
	MsgTemplate     = "Loading template…"
	MsgRouting      = "Routing chunks…"
	MsgSynthesizing = "Synthesizing…"
	MsgWriting      = "Writing output…"
)

// Reporter receives a short human-readable message as each stage starts.
type Reporter func(message string)

// Options carries everything a run needs besides its configuration.
type Options struct {
	Root   string
	Router router.Router

	Reporter           Reporter
	Log                *slog.Logger
	MaxConcurrentReads int
	RouterTimeout      time.Duration // Zero means no limit beyond ctx
}

// Summary describes a finished run.
type Summary struct {
	OutputPath         string `json:"output_path"`         // Absolute
	OutputDisplayPath  string `json:"output_display_path"` // As configured
	LoadedFileCount    int    `json:"loaded_file_count"`
	ChunkCount         int    `json:"chunk_count"`
	FilledSlots        int    `json:"filled_slots"`
	TotalSlots         int    `json:"total_slots"`
	OrphanCount        int    `json:"orphan_count"`
	DroppedAssignments int    `json:"dropped_assignments"`
	EstimatedTokens    int    `json:"estimated_tokens"`
	DurationMs         int64  `json:"duration_ms"`
}

// Execute runs load, chunk, template, route, synthesize and write in order.
// No output is written unless every earlier stage succeeds.
func Execute(ctx context.Context, cfg *config.Config, opts Options) (*Summary, error) {
	start := time.Now()
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	report := opts.Reporter
	if report == nil {
		report = func(string) {}
	}
	if opts.Router == nil {
		return nil, fmt.Errorf("no router configured")
	}

	report(MsgLoading)
	files, err := source.Load(ctx, cfg.Sources, opts.Root, source.Options{MaxConcurrentReads: opts.MaxConcurrentReads})
	if err != nil {
		return nil, stageErr(ctx, err)
	}
	log.Info("sources loaded", "stage", "load", "files", len(files), "duration_ms", time.Since(start).Milliseconds())
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	report(MsgChunking)
	chunks, err := chunkFiles(cfg, files)
	if err != nil {
		return nil, err
	}
	log.Info("sources chunked", "stage", "chunk", "chunks", len(chunks))
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	report(MsgTemplate)
	tmpl, err := LoadTemplate(cfg, opts.Root)
	if err != nil {
		return nil, err
	}
	slots := tmpl.Slots()
	log.Info("template loaded", "stage", "template", "headings", len(tmpl.Headings), "slots", len(slots))
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	report(MsgRouting)
	routable := make([]doctree.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if !c.IsEmpty() {
			routable = append(routable, c)
		}
	}
	routeStart := time.Now()
	assignments, err := route(ctx, opts, routable, slots)
	if err != nil {
		return nil, stageErr(ctx, fmt.Errorf("route: %w", err))
	}
	log.Info("chunks routed", "stage", "route", "mode", cfg.Routing.Mode, "routable", len(routable),
		"assignments", len(assignments), "duration_ms", time.Since(routeStart).Milliseconds())
	if err := canceled(ctx); err != nil {
		return nil, err
	}

	report(MsgSynthesizing)
	res := synth.Synthesize(*tmpl, chunks, assignments)
	out := render.Render(res, render.Options{Citations: cfg.Emit.Citations})
	if res.Dropped > 0 {
		log.Warn("dropped invalid assignments", "stage", "synthesize", "dropped", res.Dropped)
	}

	report(MsgWriting)
	outputPath := resolve(opts.Root, cfg.Output)
	if err := WriteOutput(outputPath, []byte(out)); err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}

	summary := &Summary{
		OutputPath:         outputPath,
		OutputDisplayPath:  cfg.Output,
		LoadedFileCount:    len(files),
		ChunkCount:         len(chunks),
		FilledSlots:        res.Filled(),
		TotalSlots:         len(res.Slots),
		OrphanCount:        len(res.Orphans),
		DroppedAssignments: res.Dropped,
		EstimatedTokens:    chunker.EstimateTokens(out),
		DurationMs:         time.Since(start).Milliseconds(),
	}
	log.Info("output written", "stage", "write", "path", outputPath, "filled", summary.FilledSlots,
		"total", summary.TotalSlots, "orphans", summary.OrphanCount, "duration_ms", summary.DurationMs)
	return summary, nil
}

// LoadChunks reads every configured source under root and chunks the files.
func LoadChunks(ctx context.Context, cfg *config.Config, root string, maxReads int) ([]doctree.File, []doctree.Chunk, error) {
	files, err := source.Load(ctx, cfg.Sources, root, source.Options{MaxConcurrentReads: maxReads})
	if err != nil {
		return nil, nil, err
	}
	chunks, err := chunkFiles(cfg, files)
	if err != nil {
		return nil, nil, err
	}
	return files, chunks, nil
}

func chunkFiles(cfg *config.Config, files []doctree.File) ([]doctree.Chunk, error) {
	chunks, err := chunker.ChunkFiles(files, chunker.Config{
		StripFrontmatter: cfg.Chunking.Frontmatter == config.FrontmatterStrip,
	})
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	return chunks, nil
}

// LoadTemplate parses the configured template relative to root, or the
// built-in default when none is configured.
func LoadTemplate(cfg *config.Config, root string) (*doctree.Template, error) {
	if cfg.Template == "" {
		return parser.LoadTemplate("")
	}
	return parser.LoadTemplate(resolve(root, cfg.Template))
}

func route(ctx context.Context, opts Options, chunks []doctree.Chunk, slots []doctree.Slot) ([]doctree.Assignment, error) {
	if opts.RouterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.RouterTimeout)
		defer cancel()
	}
	return opts.Router.Route(ctx, chunks, slots)
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	abs, err := filepath.Abs(filepath.Join(root, p))
	if err != nil {
		return filepath.Join(root, p)
	}
	return abs
}

func canceled(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
}

// stageErr reports err as a cancellation when the run's context is done.
func stageErr(ctx context.Context, err error) error {
	if c := canceled(ctx); c != nil {
		return c
	}
	return err
}
