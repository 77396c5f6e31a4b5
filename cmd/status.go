package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the repository working-tree status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			coordinator, auditLog, err := openCoordinator()
			if err != nil {
				return err
			}
			defer auditLog.Close()

			status, err := coordinator.GetRepoStatus()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			state := "dirty"
			if status.Clean {
				state = "clean"
			}
			fmt.Fprintf(out, "On branch %s (%s)\n", status.Branch, state)
			fmt.Fprintf(out, "  %d modified, %d untracked\n", status.ModifiedCount, status.UntrackedCount)
			return nil
		},
	}
}
