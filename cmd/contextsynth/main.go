package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dgallion1/contextsynth/internal/config"
	"github.com/dgallion1/contextsynth/internal/extract"
	"github.com/dgallion1/contextsynth/internal/pipeline"
	"github.com/dgallion1/contextsynth/internal/router"
)

var version = "0.1.0-dev"

const exitCanceled = 130

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pipeline.ErrCanceled):
		fmt.Fprintln(stderr, "canceled")
		return exitCanceled
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
}

type globalFlags struct {
	root      string
	config    string
	verbose   bool
	logFormat string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "contextsynth",
		Short: "Merge weighted markdown sources into one templated context document",
		Long: `contextsynth reads markdown files from weighted sources, splits them on
headings, routes each section to a slot of a markdown template and writes
the merged document (CONTEXT.md by default).

Configuration is read from cs.yaml (or cs.yml, context-synth.yaml,
context-synth.yml) in the root directory.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.root, "root", ".", "Workspace root that source patterns and output paths resolve against")
	rootCmd.PersistentFlags().StringVarP(&g.config, "config", "c", "", "Run configuration file (default: discovered in root)")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "Log format: text|json")

	rootCmd.AddCommand(
		newSynthCmd(g),
		newSlotsCmd(g),
		newChunksCmd(g),
		newServeCmd(g),
	)
	return rootCmd
}

func (g *globalFlags) logger(w io.Writer) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if g.verbose {
		opts.Level = slog.LevelDebug
	}
	switch g.logFormat {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid --log-format %q (want text or json)", g.logFormat)
}

func (g *globalFlags) rootPath() (string, error) {
	root, err := filepath.Abs(g.root)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", g.root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("access root %q: %w", root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root %q is not a directory", root)
	}
	return root, nil
}

// loadConfig reads --config, or discovers the config file in root.
func (g *globalFlags) loadConfig(root string) (*config.Config, error) {
	path := g.config
	if path == "" {
		found, err := config.Discover(root)
		if err != nil {
			return nil, err
		}
		path = found
	}
	return config.Load(path)
}

// newCompleter returns nil when no Anthropic key is configured.
func newCompleter(env config.Env) *extract.Client {
	if env.AnthropicAPIKey == "" {
		return nil
	}
	return extract.NewClient(env.AnthropicAPIKey, env.AnthropicBaseURL, env.RouterTimeout)
}

func routerFactory(client *extract.Client, env config.Env, log *slog.Logger) pipeline.RouterFactory {
	var completer router.Completer
	if client != nil {
		completer = client
	}
	return func(cfg *config.Config) router.Router {
		return pipeline.NewRouter(cfg, completer, env.AnthropicModel, log)
	}
}
