package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tobil/qmx/internal/mcp"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "mcp",
		Aliases: []string{"serve"},
		Short:   "Serve the index to AI clients over MCP (stdio)",
		Long: `Starts an MCP server on stdio. Nothing is written to stdout besides
JSON-RPC; diagnostics go to the log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			srv, err := mcp.NewServer(st,
				a.searchEngine(st, a.models()),
				a.indexEngine(st, true),
				slog.Default())
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
}
