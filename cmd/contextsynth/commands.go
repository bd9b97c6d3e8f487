package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/contextsynth/internal/api"
	"github.com/dgallion1/contextsynth/internal/config"
	"github.com/dgallion1/contextsynth/internal/extract"
	"github.com/dgallion1/contextsynth/internal/pipeline"
)

func newSynthCmd(g *globalFlags) *cobra.Command {
	var (
		asJSON  bool
		routing string
	)
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Build the context document from the configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := g.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			root, err := g.rootPath()
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig(root)
			if err != nil {
				return err
			}
			if routing != "" {
				if cfg.Routing.Mode, err = config.ParseRoutingMode(routing); err != nil {
					return err
				}
			}

			env := config.LoadEnv()
			client := newCompleter(env)
			if client != nil {
				defer client.Close()
			}

			summary, err := pipeline.Execute(cmd.Context(), cfg, pipeline.Options{
				Root:   root,
				Router: routerFactory(client, env, log)(cfg),
				Reporter: func(msg string) {
					log.Debug(msg)
				},
				Log:                log,
				MaxConcurrentReads: env.MaxConcurrentReads,
				RouterTimeout:      env.RouterTimeout,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			fmt.Fprintf(out, "Wrote %s: %d/%d slots filled, %d unassigned, %d chunks from %d files.\n",
				summary.OutputDisplayPath, summary.FilledSlots, summary.TotalSlots,
				summary.OrphanCount, summary.ChunkCount, summary.LoadedFileCount)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print machine-readable run summary")
	cmd.Flags().StringVar(&routing, "routing", "", "Override routing.mode: heuristic|model")
	return cmd
}

func newSlotsCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List the routable slots of the configured template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := g.rootPath()
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig(root)
			if err != nil {
				return err
			}
			tmpl, err := pipeline.LoadTemplate(cfg, root)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			slots := tmpl.Slots()
			if asJSON {
				return json.NewEncoder(out).Encode(slots)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, s := range slots {
				fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.Heading)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print slots as JSON")
	return cmd
}

func newChunksCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunks",
		Short: "Print the chunks the configured sources produce, as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := g.rootPath()
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig(root)
			if err != nil {
				return err
			}
			_, chunks, err := pipeline.LoadChunks(cmd.Context(), cfg, root, config.LoadEnv().MaxConcurrentReads)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(chunks)
		},
	}
	return cmd
}

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("log-format") {
				g.logFormat = "json"
			}
			log, err := g.logger(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			root, err := g.rootPath()
			if err != nil {
				return err
			}
			env := config.LoadEnv()
			if err := env.ValidateServe(); err != nil {
				return err
			}
			return serve(cmd.Context(), root, env, log)
		},
	}
}

func serve(ctx context.Context, root string, env config.Env, log *slog.Logger) error {
	client := newCompleter(env)
	var stats *extract.LLMStats
	if client != nil {
		stats = client.Stats
		defer client.Close()
	}

	orch := pipeline.NewOrchestrator(env, root, routerFactory(client, env, log), log)
	orch.Start(context.WithoutCancel(ctx))

	srv := api.NewServer(orch, stats, env.AnthropicModel, env.APIKey, log)
	httpServer := &http.Server{
		Addr:         ":" + env.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		orch.Stop()
	}()

	log.Info("starting contextsynth", "port", env.Port, "root", root, "workers", env.WorkerCount)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	<-shutdownDone
	return nil
}
