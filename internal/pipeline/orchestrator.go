package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgallion1/contextsynth/internal/config"
	"github.com/dgallion1/contextsynth/internal/router"
)

// ErrQueueFull is returned by Submit when no queue slot is free.
var ErrQueueFull = errors.New("run queue is full")

// RouterFactory builds the router for a loaded run configuration.
type RouterFactory func(cfg *config.Config) router.Router

// Orchestrator executes queued runs against one workspace root on a fixed
// pool of workers.
type Orchestrator struct {
	runs      *RunStore
	queue     chan *Run
	root      string
	env       config.Env
	newRouter RouterFactory
	log       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(env config.Env, root string, newRouter RouterFactory, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		runs:      NewRunStore(env.RunTTL),
		queue:     make(chan *Run, env.MaxQueueSize),
		root:      root,
		env:       env,
		newRouter: newRouter,
		log:       log,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.env.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case run, ok := <-o.queue:
					if !ok {
						return
					}
					o.process(workerCtx, run)
				}
			}
		}()
	}

	// Start run store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.runs.Cleanup()
			}
		}
	}()
}

// Stop cancels in-flight runs and waits for workers to exit.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a run for processing.
func (o *Orchestrator) Submit(run *Run) error {
	o.runs.Put(run)
	select {
	case o.queue <- run:
		return nil
	default:
		run.Fail(StatusFailed, ErrQueueFull)
		return fmt.Errorf("%w (%d)", ErrQueueFull, cap(o.queue))
	}
}

// GetRun returns a run by ID.
func (o *Orchestrator) GetRun(id string) *Run {
	return o.runs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Root is the workspace every run resolves its paths against.
func (o *Orchestrator) Root() string {
	return o.root
}

// LoadConfig resolves and loads the run configuration at rel inside the
// workspace root, discovering it when rel is empty.
func (o *Orchestrator) LoadConfig(rel string) (*config.Config, error) {
	path, err := o.configPath(rel)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func (o *Orchestrator) configPath(rel string) (string, error) {
	if rel == "" {
		return config.Discover(o.root)
	}
	if !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", fmt.Errorf("config path %q must be relative to the workspace root", rel)
	}
	return filepath.Join(o.root, filepath.FromSlash(rel)), nil
}

func (o *Orchestrator) process(ctx context.Context, run *Run) {
	log := o.log.With("run_id", run.ID)
	run.SetStatus(StatusRunning, "starting")

	cfg, err := o.LoadConfig(run.ConfigPath)
	if err == nil && run.RoutingMode != "" {
		cfg.Routing.Mode = run.RoutingMode
		err = cfg.Validate()
	}
	if err != nil {
		log.Error("config failed", "error", err)
		run.Fail(StatusFailed, err)
		return
	}

	summary, err := Execute(ctx, cfg, Options{
		Root:               o.root,
		Router:             o.newRouter(cfg),
		Reporter:           run.SetStage,
		Log:                log,
		MaxConcurrentReads: o.env.MaxConcurrentReads,
		RouterTimeout:      o.env.RouterTimeout,
	})
	switch {
	case errors.Is(err, ErrCanceled):
		log.Warn("run canceled")
		run.Fail(StatusCanceled, err)
	case err != nil:
		log.Error("run failed", "error", err)
		run.Fail(StatusFailed, err)
	default:
		log.Info("run completed", "output", summary.OutputDisplayPath, "filled", summary.FilledSlots, "total", summary.TotalSlots)
		run.Complete(summary)
	}
}
