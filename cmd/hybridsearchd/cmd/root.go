// Package cmd provides the CLI boundary for hybridsearchd: a thin
// wrapper around internal/supervisor.Supervisor that lets an operator
// drive the search core from a terminal instead of an HTTP/MCP
// surface. It owns no logic of its own beyond flag parsing and output
// formatting.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cerplabs/hybridsearch/internal/config"
	"github.com/cerplabs/hybridsearch/internal/logging"
	"github.com/cerplabs/hybridsearch/internal/supervisor"
)

var (
	configPath string
	debug      bool
)

// NewRootCmd builds the hybridsearchd root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hybridsearchd",
		Short: "Local hybrid code-and-documentation search service",
		Long: `hybridsearchd indexes source repositories and directories into a
keyword index and a vector index, and answers queries by fusing both
with Reciprocal Rank Fusion.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the source configuration YAML file")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newSourceCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// newSupervisor loads configuration and constructs a Supervisor, but
// does not start its watchers (most CLI commands are one-shot calls
// that don't need a live filesystem subscription).
func newSupervisor() (*supervisor.Supervisor, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logCfg := logging.DefaultConfig()
	if debug {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}
	slog.SetDefault(logger)

	sup, err := supervisor.New(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("construct supervisor: %w", err)
	}

	teardown := func() {
		if err := sup.Stop(); err != nil {
			slog.Error("stopping supervisor", slog.String("error", err.Error()))
		}
		cleanup()
	}
	return sup, teardown, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
