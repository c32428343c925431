package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cerplabs/hybridsearch/internal/supervisor"
)

func newSearchCmd() *cobra.Command {
	var limit int
	var kind string
	var minScore float64
	var repository string
	var extension string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid, keyword, or semantic search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), strings.Join(args, " "), limit, kind, minScore, repository, extension, jsonOut)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results (1-100)")
	cmd.Flags().StringVar(&kind, "kind", "hybrid", "hybrid, keyword, or semantic")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "drop results below this fused score")
	cmd.Flags().StringVar(&repository, "repository", "", "filter to one repository name")
	cmd.Flags().StringVar(&extension, "extension", "", "filter to one file extension")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print results as JSON")

	return cmd
}

func runSearch(ctx context.Context, query string, limit int, kind string, minScore float64, repository, extension string, jsonOut bool) error {
	sup, teardown, err := newSupervisor()
	if err != nil {
		fail(err)
		return nil
	}
	defer teardown()

	req := supervisor.SearchRequest{
		Query:    query,
		Limit:    limit,
		Kind:     kind,
		MinScore: minScore,
	}
	if repository != "" {
		req.Filters.Repository = &repository
	}
	if extension != "" {
		req.Filters.Extension = &extension
	}

	results, err := sup.Search(ctx, req)
	if err != nil {
		fail(err)
		return nil
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%2d. %-60s  score=%.4f  %s\n", i+1, r.RelativePath, r.Score, r.Source)
		if r.Snippet != "" {
			fmt.Printf("    %s\n", r.Snippet)
		}
	}
	return nil
}
