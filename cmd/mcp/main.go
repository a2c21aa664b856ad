// Sift MCP server. Exposes the moderation API as MCP tools over stdio.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/sift/internal/mcpserver"
)

func main() {
	apiURL := flag.String("api-url", "", "moderation API base URL (defaults to $SIFT_API_URL, then localhost)")
	flag.Parse()

	url := *apiURL
	if url == "" {
		url = os.Getenv("SIFT_API_URL")
	}
	if url == "" {
		url = "http://localhost:8080"
	}

	s := mcpserver.NewMCPServer(mcpserver.Config{APIURL: url})
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "mcp server: %v\n", err)
		os.Exit(1)
	}
}
