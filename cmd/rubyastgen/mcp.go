package main

import (
	"github.com/spf13/cobra"

	"github.com/jward/rubyastgen/internal/mcptools"
)

func newMCPCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve lower_template and parse_source as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol; logs go to stderr.
			logger := newLogger(cmd.ErrOrStderr(), flags.Debug)
			server := mcptools.NewMCPServer(mcptools.NewService(logger))
			return mcptools.RunMCPServerStdio(cmd.Context(), server)
		},
	}
}
