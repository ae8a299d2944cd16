// ArcPay MCP Server - Exposes escrow operations as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/arclabs/arcpay/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:       envOrDefault("ARCPAY_API_URL", "http://localhost:8080"),
		APIKey:       os.Getenv("ARCPAY_API_KEY"),
		AgentAddress: os.Getenv("ARCPAY_AGENT_ADDRESS"),
	}

	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "ARCPAY_API_KEY is required")
		os.Exit(1)
	}
	if cfg.AgentAddress == "" {
		fmt.Fprintln(os.Stderr, "ARCPAY_AGENT_ADDRESS is required")
		os.Exit(1)
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
