package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cerplabs/hybridsearch/internal/supervisor"
)

func newSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Add, enable, disable, or remove a catalogued source",
	}
	cmd.AddCommand(newSourceAddCmd())
	cmd.AddCommand(newSourceEnableCmd())
	cmd.AddCommand(newSourceDisableCmd())
	cmd.AddCommand(newSourceRemoveCmd())
	return cmd
}

func newSourceAddCmd() *cobra.Command {
	var name, priority, kind string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a new source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, teardown, err := newSupervisor()
			if err != nil {
				fail(err)
				return nil
			}
			defer teardown()

			id := name
			if id == "" {
				id = args[0]
			}
			req := supervisor.AddSourceRequest{
				ID:       id,
				Kind:     kind,
				Name:     name,
				Path:     args[0],
				Priority: priority,
			}
			if err := sup.AddSources([]supervisor.AddSourceRequest{req}); err != nil {
				fail(err)
				return nil
			}
			fmt.Printf("added source %s (%s)\n", id, args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "source name/id (default: the path)")
	cmd.Flags().StringVar(&priority, "priority", "medium", "high, medium, or low")
	cmd.Flags().StringVar(&kind, "kind", "repository", "repository or directory")
	return cmd
}

func newSourceEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable <id>",
		Short: "Re-enable a disabled source and resume watching it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, teardown, err := newSupervisor()
			if err != nil {
				fail(err)
				return nil
			}
			defer teardown()
			if err := sup.EnableSource(args[0]); err != nil {
				fail(err)
			}
			return nil
		},
	}
}

func newSourceDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Stop watching a source without deleting its indexed data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, teardown, err := newSupervisor()
			if err != nil {
				fail(err)
				return nil
			}
			defer teardown()
			if err := sup.DisableSource(args[0]); err != nil {
				fail(err)
			}
			return nil
		},
	}
}

func newSourceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Unregister a source and purge its indexed data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, teardown, err := newSupervisor()
			if err != nil {
				fail(err)
				return nil
			}
			defer teardown()
			if err := sup.RemoveSource(args[0]); err != nil {
				fail(err)
			}
			return nil
		},
	}
}
