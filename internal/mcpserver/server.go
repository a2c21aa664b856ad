// Package mcpserver exposes the sift moderation API as MCP tools so LLM
// agents can scan content and inspect moderation state over stdio. Each
// tool is a thin formatter over the pkg/client SDK.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/sift/pkg/client"
)

// Config holds the configuration for connecting to the sift API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
}

// NewMCPServer creates a configured MCP server with all sift tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("sift", "1.0.0")
	h := NewHandlers(client.New(cfg.APIURL))

	s.AddTool(ToolScanContent, h.HandleScanContent)
	s.AddTool(ToolGetDashboard, h.HandleGetDashboard)
	s.AddTool(ToolListSuspiciousActors, h.HandleListSuspiciousActors)
	s.AddTool(ToolGetUserActivity, h.HandleGetUserActivity)

	return s
}
