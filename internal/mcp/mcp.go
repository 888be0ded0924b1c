// Package mcp implements the Model Context Protocol server for DocBox.
//
// The MCP server exposes the triage and Shadow Router operations of the HTTP
// API as tools, resources and prompts, so an MCP-compatible assistant can
// work the inbox on behalf of the authenticated user.
package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Knowmad79/Docbox2026/internal/service/shadow"
	"github.com/Knowmad79/Docbox2026/internal/service/triage"
)

// Server wraps the MCP server with DocBox's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	triage    *triage.Service
	shadow    *shadow.Service
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools and prompts.
func New(triageSvc *triage.Service, shadowSvc *shadow.Service, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		triage: triageSvc,
		shadow: shadowSvc,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"docbox",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions("DocBox triages a medical practice inbox. "+
			"Use classify_email to preview a zone, ingest_email to store a message, "+
			"correct_zone when a zone is wrong, and daily_deck to see what each role owns today."),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// jsonResult renders v as a single text content block.
func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal result: %w", err)
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
