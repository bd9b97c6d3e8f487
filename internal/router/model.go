package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/contextsynth/internal/doctree"
	"github.com/dgallion1/contextsynth/internal/extract"
)

var (
	// ErrNoCapability means no language model is reachable: there is no
	// client configured or the provider lists no models.
	ErrNoCapability = errors.New("no language models available")

	// ErrUnparseable means the model reply held no JSON array of assignments.
	ErrUnparseable = errors.New("model did not return a valid JSON array of routing assignments")
)

// promptContentLimit caps how many characters of each chunk go into the prompt.
const promptContentLimit = 600

// Completer is the language model surface the model router needs.
// *extract.Client satisfies it.
type Completer interface {
	ListModels(ctx context.Context) ([]extract.ModelInfo, error)
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// Model routes every chunk in one batched prompt to a language model.
type Model struct {
	client       Completer
	preferred    string
	defaultModel string
	log          *slog.Logger
	backoff      func(attempt int) time.Duration
}

type ModelOption func(*Model)

// WithPreferredModel selects the first listed model whose id or display name
// contains hint, case-insensitively.
func WithPreferredModel(hint string) ModelOption {
	return func(m *Model) { m.preferred = strings.ToLower(strings.TrimSpace(hint)) }
}

// WithDefaultModel names the model to use when the model list cannot be fetched.
func WithDefaultModel(id string) ModelOption {
	return func(m *Model) { m.defaultModel = id }
}

func WithLogger(log *slog.Logger) ModelOption {
	return func(m *Model) {
		if log != nil {
			m.log = log
		}
	}
}

// WithBackoff overrides the delay between retries of transient failures.
func WithBackoff(fn func(attempt int) time.Duration) ModelOption {
	return func(m *Model) { m.backoff = fn }
}

// NewModel returns a model-backed router. A nil client yields a router whose
// Route always fails with ErrNoCapability.
func NewModel(client Completer, opts ...ModelOption) *Model {
	m := &Model{
		client:  client,
		log:     slog.Default(),
		backoff: extract.Backoff,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Route(ctx context.Context, chunks []doctree.Chunk, slots []doctree.Slot) ([]doctree.Assignment, error) {
	if m.client == nil {
		return nil, ErrNoCapability
	}
	model, err := m.selectModel(ctx)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 || len(slots) == 0 {
		return nil, nil
	}

	prompt := BuildPrompt(chunks, slots)
	m.log.Debug("routing with model", "model", model, "chunks", len(chunks), "slots", len(slots), "prompt_chars", len(prompt))

	var reply string
	err = m.retry(ctx, "complete", func() error {
		var err error
		reply, err = m.client.Complete(ctx, model, prompt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", model, err)
	}

	parsed := ExtractJSONArray(reply)
	if !parsed.OK() {
		return nil, fmt.Errorf("%w (response was: %s)", ErrUnparseable, extract.Truncate(reply, 500))
	}
	out := assignmentsFrom(parsed.Items, chunks, slots)
	m.log.Debug("model routing parsed", "via", string(parsed.Via), "items", len(parsed.Items), "kept", len(out))
	return out, nil
}

func (m *Model) selectModel(ctx context.Context) (string, error) {
	var models []extract.ModelInfo
	err := m.retry(ctx, "list models", func() error {
		var err error
		models, err = m.client.ListModels(ctx)
		return err
	})
	if err != nil {
		if m.defaultModel != "" && ctx.Err() == nil {
			m.log.Warn("model list unavailable, using default model", "model", m.defaultModel, "error", err)
			return m.defaultModel, nil
		}
		return "", fmt.Errorf("list models: %w", err)
	}
	if len(models) == 0 {
		return "", ErrNoCapability
	}
	if m.preferred != "" {
		for _, info := range models {
			hay := strings.ToLower(info.ID + " " + info.DisplayName)
			if strings.Contains(hay, m.preferred) {
				return info.ID, nil
			}
		}
		m.log.Warn("preferred model not found, using first listed", "hint", m.preferred, "model", models[0].ID)
	}
	return models[0].ID, nil
}

func (m *Model) retry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := range extract.MaxRetries {
		lastErr = fn()
		if lastErr == nil || !extract.IsRetryable(lastErr) {
			return lastErr
		}
		m.log.Warn("retryable model error", "op", op, "attempt", attempt, "error", lastErr)
		if attempt == extract.MaxRetries-1 {
			break
		}
		if err := extract.Sleep(ctx, m.backoff(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

// BuildPrompt renders the batched routing prompt. Chunks with blank content
// are left out.
func BuildPrompt(chunks []doctree.Chunk, slots []doctree.Slot) string {
	var sb strings.Builder
	sb.WriteString("You are a document routing engine. Your job is to assign document chunks to the most appropriate template slot.\n")
	sb.WriteString("\nTEMPLATE SLOTS (assign to exactly one of these):\n")
	for _, s := range slots {
		fmt.Fprintf(&sb, "  - %s: %s\n", s.ID, s.Heading)
	}

	sb.WriteString("\nCHUNKS TO ROUTE:\n")
	i := 0
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "--- CHUNK %d ---\nchunkId: %s\nsource: %s | file: %s\nheading: %s\ncontent:\n%s",
			i, c.ID, c.SourceID, c.FilePath, c.Heading, truncateContent(c.Content))
		i++
	}

	sb.WriteString("\n\nINSTRUCTIONS:\n")
	sb.WriteString("- For each chunk, determine which template slot best matches its content.\n")
	sb.WriteString("- Only include chunks that clearly belong to a slot. Omit chunks that don't fit anywhere.\n")
	sb.WriteString("- Return ONLY a JSON array, no other text. Each element must be:\n")
	sb.WriteString(`  {"chunkId": "<exact chunkId>", "slotId": "<exact slotId>"}` + "\n")
	sb.WriteString("\nReturn the JSON array now:")
	return sb.String()
}

func truncateContent(s string) string {
	r := []rune(s)
	if len(r) <= promptContentLimit {
		return s
	}
	return string(r[:promptContentLimit]) + "\n[...truncated]"
}
