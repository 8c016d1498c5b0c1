// Package mcptools exposes the mood journal to MCP clients.
//
// Each tool is a struct holding its dependencies, with Definition()
// returning the mcp.Tool schema and Handle() serving calls. Failures are
// reported as tool errors, never as protocol errors.
package mcptools

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// intArg extracts an integer argument, returning defaultVal when the key is
// missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// textResult trims the trailing newline printers leave behind
func textResult(sb *strings.Builder) *mcp.CallToolResult {
	return mcp.NewToolResultText(strings.TrimRight(sb.String(), "\n"))
}
