package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pbaille/moods/internal/journal"
)

// Version is set at build time via ldflags.
var Version = "dev"

const instructions = "Mood journal. Use mood_save when the user describes how they feel, " +
	"mood_tags to reuse existing tag names, and mood_trends or mood_entries to look back."

// Tool is one MCP tool handler
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Tools returns every tool bound to j
func Tools(j *journal.Journal) []Tool {
	return []Tool{
		NewSaveTool(j),
		NewLatestTool(j),
		NewEntriesTool(j),
		NewTrendsTool(j),
		NewTagsTool(j),
		NewResolveTagTool(j),
	}
}

// NewServer creates the MCP server with every tool registered
func NewServer(j *journal.Journal) *server.MCPServer {
	s := server.NewMCPServer(
		"moods",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, t := range Tools(j) {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

// ServeStdio serves s over stdin and stdout until the client disconnects
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
