package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDiscoverCmd() *cobra.Command {
	var maxDepth int

	cmd := &cobra.Command{
		Use:   "discover <root>",
		Short: "Walk a directory tree looking for unregistered VCS-root sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, teardown, err := newSupervisor()
			if err != nil {
				fail(err)
				return nil
			}
			defer teardown()

			candidates, err := sup.Discover(args[0], maxDepth)
			if err != nil {
				fail(err)
				return nil
			}

			if len(candidates) == 0 {
				fmt.Println("no candidates found")
				return nil
			}
			for _, c := range candidates {
				status := "new"
				if c.AlreadyKnown {
					status = "already indexed"
				}
				fmt.Printf("%-60s  %s  %s\n", c.Path, c.CloneIdentity, status)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxDepth, "max-depth", 4, "maximum directory depth to walk")
	return cmd
}
