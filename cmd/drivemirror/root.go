package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivemirror/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagVerbose    bool
	flagQuiet      bool
)

// cliContextKey is the context key CLIContext is threaded through under.
type cliContextKey struct{}

// CLIContext bundles the resolved configuration and logger, built once in
// PersistentPreRunE and read by every subcommand's RunE, following
// the prior engine's root.go CLIContext/cliContextFrom pattern — this eliminates
// redundant config loads and logger construction per command.
type CLIContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// newRootCmd builds the drivemirror command tree. Command Surface breadth
// (multi-account, watch mode, conflict resolution UI, ...) is out of scope
// here — this is a thin demonstration wrapper over the core engine, not a
// full product CLI.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "drivemirror",
		Short:         "Cloud-drive mirror sync engine",
		Long:          "A one-way cloud-drive mirror: downloads a remote drive's contents into a local directory tree.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadCLIContext(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", defaultConfigPath(), "config file path")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "drivemirror.toml"
	}

	return home + "/.config/drivemirror/drivemirror.toml"
}

// loadCLIContext resolves configuration and builds a logger, stashing both
// in the command's context for RunE handlers to read via cliContextFrom.
func loadCLIContext(cmd *cobra.Command) error {
	logger := buildLogger()

	cfg, err := config.LoadOrDefault(flagConfigPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, &CLIContext{Cfg: cfg, Logger: logger}))

	return nil
}

// buildLogger creates an slog.Logger whose level is set by --verbose/--quiet,
// following the root.go buildLogger (CLI flags always win).
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
