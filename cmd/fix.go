package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/suture-cli/api/schemas"
)

func newFixCmd() *cobra.Command {
	var (
		dryRun bool
		task   string
		asJSON bool
	)

	fixCmd := &cobra.Command{
		Use:   "fix",
		Short: "Detect issues, propose validated fixes, apply them, and commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			override, err := parseTask(task)
			if err != nil {
				return err
			}

			orch, err := buildOrchestrator(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer orch.Close()

			report, err := orch.Fix(cmd.Context(), override, dryRun)
			if report == nil {
				return err
			}
			if asJSON {
				if printErr := printJSON(cmd, report); printErr != nil {
					return printErr
				}
				return err
			}

			out := cmd.OutOrStdout()
			mode := "applied"
			if report.DryRun {
				mode = "validated (dry run)"
			}
			fmt.Fprintf(out, "%d fixes %s, %d failed\n", report.FixesApplied, mode, report.FixesFailed)
			for _, record := range report.Commits {
				marker := ""
				if record.Projected {
					marker = " (projected)"
				}
				fmt.Fprintf(out, "  commit %s%s: %s\n", shortID(record.CommitID), marker, firstLine(record.Message))
			}
			return err
		},
	}

	fixCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate fixes without writing files or committing")
	fixCmd.Flags().StringVar(&task, "task", "", "force one remediation strategy: bug-fix, refactor, complexity-reduction, docstring-addition, style")
	fixCmd.Flags().BoolVar(&asJSON, "json", false, "emit the full report as JSON")
	return fixCmd
}

func parseTask(raw string) (schemas.TaskType, error) {
	if raw == "" {
		return "", nil
	}
	switch t := schemas.TaskType(raw); t {
	case schemas.TaskBugFix, schemas.TaskRefactor, schemas.TaskComplexity, schemas.TaskDocstring, schemas.TaskStyle:
		return t, nil
	default:
		return "", fmt.Errorf("unknown task type %q", raw)
	}
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
