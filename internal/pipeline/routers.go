package pipeline

import (
	"log/slog"

	"github.com/dgallion1/contextsynth/internal/config"
	"github.com/dgallion1/contextsynth/internal/router"
)

// NewRouter returns the router for cfg's routing mode. completer may be nil,
// in which case model routing fails with router.ErrNoCapability.
func NewRouter(cfg *config.Config, completer router.Completer, defaultModel string, log *slog.Logger) router.Router {
	if cfg.Routing.Mode != config.RoutingModel {
		return router.NewHeuristic()
	}
	return router.NewModel(completer,
		router.WithPreferredModel(cfg.Routing.Model),
		router.WithDefaultModel(defaultModel),
		router.WithLogger(log),
	)
}
