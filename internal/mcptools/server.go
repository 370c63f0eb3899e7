package mcptools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with the lowering and parsing tools
// registered.
func NewMCPServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "rubyastgen",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lower_template",
		Description: "Lower an ERB template into Ruby source that parses cleanly. Output appends to joern__buffer and wraps interpolations in joern__template_out_escape / joern__template_out_raw. Templates whose blocks do not balance are returned wrapped in a heredoc with fallback set.",
	}, svc.LowerTemplate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "parse_source",
		Description: "Parse Ruby source or an ERB template (lowered first) and return the syntax tree document as JSON, or the syntax error location.",
	}, svc.ParseSource)

	return server
}

// RunMCPServerStdio runs the MCP server on stdio transport, blocking
// until stdin is closed or the context is cancelled.
func RunMCPServerStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
