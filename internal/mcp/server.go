// Package mcp exposes structure resolution to MCP clients over stdio.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/crystal-viewer/internal/resolver"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes structure tools.
type Server struct {
	resolver *resolver.Resolver
	mcp      *server.MCPServer
}

// NewServer creates a new MCP server backed by r.
func NewServer(r *resolver.Resolver) *Server {
	s := &Server{resolver: r}

	s.mcp = server.NewMCPServer(
		"crystalviewer",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(resolveStructureTool, s.handleResolveStructure)
	s.mcp.AddTool(listFormatsTool, s.handleListFormats)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
