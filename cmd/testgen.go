package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTestgenCmd() *cobra.Command {
	var (
		file  string
		force bool
	)

	testgenCmd := &cobra.Command{
		Use:   "testgen",
		Short: "Generate unit-test files for sources that lack them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := buildOrchestrator(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer orch.Close()

			report, err := orch.GenerateTests(cmd.Context(), file, force)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated tests for %d of %d files\n", report.SuccessCount, report.TotalFiles)
			for _, path := range report.Generated {
				fmt.Fprintf(out, "  %s\n", path)
			}
			return nil
		},
	}

	testgenCmd.Flags().StringVar(&file, "file", "", "generate tests for this one file (relative to the repo root)")
	testgenCmd.Flags().BoolVar(&force, "force", false, "overwrite existing test files")
	return testgenCmd
}
