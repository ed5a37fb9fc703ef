package main

import (
	"github.com/spf13/cobra"

	"github.com/choplin/dirsim/internal/mcp"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp [name]",
		Short: "Start MCP server",
		Long:  "Start the Model Context Protocol server. Tools operate on the named directory unless they name another one.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "default"
			if len(args) == 1 {
				name = args[0]
			}

			manager, logger, err := openManager(cmd, flags)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			server := mcp.NewServer(manager, name, logger)
			return server.Run(cmd.Context())
		},
	}

	return cmd
}
