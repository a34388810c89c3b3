// Package mcpserver exposes the bundle codec and the diff reporter as MCP
// tools.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentflux/fluxdiff/fluxdiff"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with every tool registered.
func New(app *fluxdiff.App) *server.MCPServer {
	s := server.NewMCPServer(
		"fluxdiff",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	decode := &DecodeTool{app: app}
	s.AddTool(decode.Definition(), decode.Handle)

	encode := &EncodeTool{app: app}
	s.AddTool(encode.Definition(), encode.Handle)

	diff := &DiffTool{app: app}
	s.AddTool(diff.Definition(), diff.Handle)

	return s
}

// ServeStdio runs the server over stdin and stdout until stdin closes.
func ServeStdio(app *fluxdiff.App) error {
	return server.ServeStdio(New(app))
}

const instructions = "fluxdiff packs several files into one marked string and back. " +
	"Use encode_bundle before sending a codebase to a model, decode_bundle on the answer, " +
	"and diff_files to see what changed in one file."
