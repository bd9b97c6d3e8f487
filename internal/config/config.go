package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Routing modes.
const (
	RoutingHeuristic = "heuristic"
	RoutingModel     = "model"

	// routingCursor is the legacy name of the model-backed mode.
	routingCursor = "cursor"
)

// Chunking modes and front-matter handling.
const (
	ChunkingHeadings = "headings"

	FrontmatterKeep  = "keep"
	FrontmatterStrip = "strip"
)

// DefaultOutputPath is where the merged document goes when none is configured.
const DefaultOutputPath = "CONTEXT.md"

// FileNames are the config file names looked up in a run root, in order.
var FileNames = []string{"cs.yaml", "cs.yml", "context-synth.yaml", "context-synth.yml"}

// Config is a fully specified run configuration. Every optional field of the
// file has been replaced by its default.
type Config struct {
	Version  int      `json:"version"`
	Sources  []Source `json:"sources"`
	Template string   `json:"template,omitempty"` // Empty means the built-in default template
	Routing  Routing  `json:"routing"`
	Output   string   `json:"context_path"`
	Emit     Emit     `json:"emit"`
	Chunking Chunking `json:"chunking"`
}

// Source is one weighted collection of markdown files.
type Source struct {
	ID     string  `json:"id"`
	Path   string  `json:"path"`
	Weight float64 `json:"weight"`
}

type Routing struct {
	Mode  string `json:"mode"`
	Model string `json:"model,omitempty"` // Preferred model hint, matched as a substring
}

type Emit struct {
	Citations bool `json:"citations"`
}

type Chunking struct {
	Mode        string `json:"mode"`
	Frontmatter string `json:"frontmatter"`
}

// ValidationError reports a configuration that violates the run contract.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "config validation error: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ErrNotFound is returned by Discover when no config file exists in the root.
var ErrNotFound = errors.New("no config file found")

// fileConfig mirrors the YAML layout. Pointers distinguish "absent" from
// zero values so defaults can be applied field by field.
type fileConfig struct {
	Version  *int          `yaml:"version"`
	Sources  []fileSource  `yaml:"sources"`
	Template *string       `yaml:"template"`
	Routing  *fileRouting  `yaml:"routing"`
	Context  *fileContext  `yaml:"context"`
	Emit     *fileEmit     `yaml:"emit"`
	Chunking *fileChunking `yaml:"chunking"`
}

type fileSource struct {
	ID     string   `yaml:"id"`
	Path   string   `yaml:"path"`
	Weight *float64 `yaml:"weight"`
}

type fileRouting struct {
	Mode  *string `yaml:"mode"`
	Model *string `yaml:"model"`
}

type fileContext struct {
	Path *string `yaml:"path"`
}

type fileEmit struct {
	Citations *bool `yaml:"citations"`
}

type fileChunking struct {
	Mode        *string `yaml:"mode"`
	Frontmatter *string `yaml:"frontmatter"`
}

// Discover returns the first config file from FileNames present in root.
func Discover(root string) (string, error) {
	for _, name := range FileNames {
		p := filepath.Join(root, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w in %s (looked for %s)", ErrNotFound, root, strings.Join(FileNames, ", "))
}

// Load reads, defaults and validates the YAML config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var raw fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ValidationError{Err: errors.New("config is empty")}
		}
		return nil, &ValidationError{Err: fmt.Errorf("parse yaml: %w", err)}
	}

	if raw.Template != nil && strings.TrimSpace(*raw.Template) == "" {
		return nil, &ValidationError{Err: errors.New("template must be a non-empty string when provided")}
	}

	cfg := applyDefaults(raw)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(raw fileConfig) *Config {
	cfg := &Config{
		Version:  1,
		Routing:  Routing{Mode: RoutingHeuristic},
		Output:   DefaultOutputPath,
		Emit:     Emit{Citations: true},
		Chunking: Chunking{Mode: ChunkingHeadings, Frontmatter: FrontmatterKeep},
	}

	if raw.Version != nil {
		cfg.Version = *raw.Version
	}
	for _, s := range raw.Sources {
		src := Source{ID: s.ID, Path: s.Path, Weight: 1.0}
		if s.Weight != nil {
			src.Weight = *s.Weight
		}
		cfg.Sources = append(cfg.Sources, src)
	}
	if raw.Template != nil {
		cfg.Template = strings.TrimSpace(*raw.Template)
	}
	if raw.Routing != nil {
		if raw.Routing.Mode != nil {
			cfg.Routing.Mode = *raw.Routing.Mode
		}
		if raw.Routing.Model != nil {
			cfg.Routing.Model = strings.TrimSpace(*raw.Routing.Model)
		}
	}
	if cfg.Routing.Mode == routingCursor {
		cfg.Routing.Mode = RoutingModel
	}
	if raw.Context != nil && raw.Context.Path != nil {
		cfg.Output = *raw.Context.Path
	}
	if raw.Emit != nil && raw.Emit.Citations != nil {
		cfg.Emit.Citations = *raw.Emit.Citations
	}
	if raw.Chunking != nil {
		if raw.Chunking.Mode != nil {
			cfg.Chunking.Mode = *raw.Chunking.Mode
		}
		if raw.Chunking.Frontmatter != nil {
			cfg.Chunking.Frontmatter = *raw.Chunking.Frontmatter
		}
	}
	return cfg
}

// Validate checks the configuration against the run contract.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Version, validation.By(func(value any) error {
			if value.(int) != 1 {
				return validation.NewError("config.version", "must be 1")
			}
			return nil
		})),
		validation.Field(&c.Sources, validation.Required.Error("must be a non-empty list"), validation.Skip),
		validation.Field(&c.Output, validation.By(nonBlank)),
		validation.Field(&c.Routing),
		validation.Field(&c.Chunking),
	)
	if err != nil {
		return &ValidationError{Err: err}
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if err := s.Validate(); err != nil {
			label := s.ID
			if label == "" {
				label = fmt.Sprintf("#%d", i)
			}
			return &ValidationError{Err: fmt.Errorf("source %s: %w", label, err)}
		}
		if seen[s.ID] {
			return &ValidationError{Err: fmt.Errorf("duplicate source id %q", s.ID)}
		}
		seen[s.ID] = true
	}
	return nil
}

func (s Source) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.ID, validation.Required),
		validation.Field(&s.Path, validation.By(nonBlank)),
		validation.Field(&s.Weight, validation.By(func(value any) error {
			w := value.(float64)
			if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 || w > 1 {
				return validation.NewError("config.source.weight", "must be a finite number between 0 and 1")
			}
			return nil
		})),
	)
}

func (r Routing) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Mode, validation.Required, validation.In(RoutingHeuristic, RoutingModel).
			Error("must be 'heuristic' or 'model'")),
	)
}

func (c Chunking) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Mode, validation.Required, validation.In(ChunkingHeadings).
			Error("must be 'headings'")),
		validation.Field(&c.Frontmatter, validation.Required, validation.In(FrontmatterKeep, FrontmatterStrip).
			Error("must be 'keep' or 'strip'")),
	)
}

// ParseRoutingMode normalizes a routing mode name, accepting the legacy alias.
func ParseRoutingMode(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case RoutingHeuristic:
		return RoutingHeuristic, nil
	case RoutingModel, routingCursor:
		return RoutingModel, nil
	}
	return "", fmt.Errorf("unknown routing mode %q (want %q or %q)", mode, RoutingHeuristic, RoutingModel)
}

func nonBlank(value any) error {
	if strings.TrimSpace(value.(string)) == "" {
		return validation.NewError("config.blank", "must be a non-empty string")
	}
	return nil
}
