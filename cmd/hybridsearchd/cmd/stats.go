package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate indexing state",
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, teardown, err := newSupervisor()
			if err != nil {
				fail(err)
				return nil
			}
			defer teardown()

			st, err := sup.Stats()
			if err != nil {
				fail(err)
				return nil
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			fmt.Printf("keyword documents: %d\n", st.KeywordDocuments)
			fmt.Printf("vector chunks:     %d\n", st.VectorChunks)
			fmt.Printf("indexing:          %v\n", st.IsIndexing)
			for _, s := range st.PerSource {
				fmt.Printf("  %-30s files=%-6d last_duration=%.2fs\n", s.SourceID, s.FileCount, s.LastDurationSeconds)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print stats as JSON")
	cmd.AddCommand(newIndexInfoCmd())
	return cmd
}

func newIndexInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index-info",
		Short: "Show the embedding model the vector index was built with",
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, teardown, err := newSupervisor()
			if err != nil {
				fail(err)
				return nil
			}
			defer teardown()

			info, err := sup.IndexInfo()
			if err != nil {
				fail(err)
				return nil
			}

			fmt.Printf("index model:   %s (%d dims)\n", info.IndexModel, info.IndexDimensions)
			fmt.Printf("current model: %s (%d dims)\n", info.CurrentModel, info.CurrentDimensions)
			fmt.Printf("compatible:    %v\n", info.Compatible)
			return nil
		},
	}
}
