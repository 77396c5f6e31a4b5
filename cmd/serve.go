package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/suture-cli/internal/observability"
	"github.com/xkilldash9x/suture-cli/internal/server"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only JSON API for the audit log and reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				port, err := cmd.Flags().GetInt("port")
				if err != nil {
					return err
				}
				cfg.Server.Port = port
			}
			if err := cfg.Server.Validate(); err != nil {
				return err
			}

			orch, err := buildOrchestrator(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer orch.Close()

			srv := server.New(cfg.Server, orch, observability.GetLogger())
			return srv.Run(cmd.Context())
		},
	}

	serveCmd.Flags().Int("port", 0, "port to listen on (overrides server.port)")
	return serveCmd
}
