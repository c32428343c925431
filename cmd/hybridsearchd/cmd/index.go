package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	var sources []string
	var kinds []string
	var full bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run an incremental or full-rebuild indexing pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), sources, kinds, full)
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "source ids to index (default: all enabled sources)")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "keyword, vector, or both (default: both)")
	cmd.Flags().BoolVar(&full, "full-rebuild", false, "clear and re-scan instead of indexing only changed files")

	cmd.AddCommand(newIndexStopCmd())
	return cmd
}

func runIndex(ctx context.Context, sources, kinds []string, full bool) error {
	sup, teardown, err := newSupervisor()
	if err != nil {
		fail(err)
		return nil
	}
	defer teardown()

	run, err := sup.Reindex(ctx, sources, kinds, full)
	if err != nil {
		fail(err)
		return nil
	}

	fmt.Printf("run %s started: sources=%v kinds=%v mode=%s\n", run.ID, run.Sources, run.Kinds, run.Mode)
	for {
		st, err := sup.Stats()
		if err != nil || !st.IsIndexing {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

func newIndexStopCmd() *cobra.Command {
	var kinds []string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Request cooperative cancellation of running indexing",
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, teardown, err := newSupervisor()
			if err != nil {
				fail(err)
				return nil
			}
			defer teardown()
			sup.StopIndexing(kinds)
			fmt.Println("stop requested")
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "keyword, vector, or both (default: both)")
	return cmd
}
