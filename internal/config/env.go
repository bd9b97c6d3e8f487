package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Env holds process-level settings read from the environment. These never
// come from the run configuration file.
type Env struct {
	Port string

	// Auth for the HTTP API
	APIKey string

	// Model-backed routing
	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string
	RouterTimeout    time.Duration

	// Run pool
	WorkerCount  int
	MaxQueueSize int
	RunTTL       time.Duration

	// Source loading
	MaxConcurrentReads int
}

func LoadEnv() Env {
	env := Env{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("CONTEXTSYNTH_API_KEY"),

		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:   envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		AnthropicBaseURL: envOr("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		RouterTimeout:    envDuration("ROUTER_TIMEOUT", 2*time.Minute),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 16),
		RunTTL:       envDuration("RUN_TTL", 1*time.Hour),

		MaxConcurrentReads: envInt("MAX_CONCURRENT_READS", 16),
	}

	if env.WorkerCount <= 0 {
		env.WorkerCount = 2
	}
	if env.MaxQueueSize <= 0 {
		env.MaxQueueSize = 16
	}
	if env.RunTTL <= 0 {
		env.RunTTL = 1 * time.Hour
	}
	if env.MaxConcurrentReads <= 0 {
		env.MaxConcurrentReads = 16
	}
	if env.RouterTimeout <= 0 {
		env.RouterTimeout = 2 * time.Minute
	}

	return env
}

// ValidateServe checks the settings the HTTP server cannot run without.
func (e Env) ValidateServe() error {
	if e.APIKey == "" {
		return fmt.Errorf("CONTEXTSYNTH_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
