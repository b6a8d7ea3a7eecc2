// Package mcpserver exposes the router itself as an MCP server over stdio.
//
// Each tool follows the same shape: a struct holding the control plane
// service, Definition() returning the schema and Handle() serving calls.
package mcpserver

import (
	"github.com/HeadyMe/heady-mcp-router/internal/controlplane"
	"github.com/mark3labs/mcp-go/server"
)

// Name is the server name reported to MCP clients.
const Name = "heady-mcp-router"

// New creates the MCP server with all router tools registered.
func New(svc *controlplane.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		Name,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	listTool := NewListServicesTool(svc)
	s.AddTool(listTool.Definition(), listTool.Handle)

	recommendTool := NewRecommendTool(svc)
	s.AddTool(recommendTool.Definition(), recommendTool.Handle)

	selectTool := NewSelectTool(svc)
	s.AddTool(selectTool.Definition(), selectTool.Handle)

	callTool := NewCallTool(svc)
	s.AddTool(callTool.Definition(), callTool.Handle)

	return s
}

// Serve runs s on stdin and stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const instructions = `Heady MCP router. Use recommend_services or select_services to pick
backends for a task, list_services to browse the registry, and
call_backend_tool to forward a tool call to a connected backend.
Destructive calls (delete, remove, drop, truncate, destroy) must set confirmed=true.`
