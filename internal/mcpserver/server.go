package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all ArcPay tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("arcpay", "1.0.0")
	client := NewArcPayClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolCreateEscrow, h.HandleCreateEscrow)
	s.AddTool(ToolReleaseEscrow, h.HandleReleaseEscrow)
	s.AddTool(ToolRefundEscrow, h.HandleRefundEscrow)
	s.AddTool(ToolGetEscrow, h.HandleGetEscrow)
	s.AddTool(ToolEscrowTimeout, h.HandleEscrowTimeout)
	s.AddTool(ToolCheckBalance, h.HandleCheckBalance)
	s.AddTool(ToolListEscrows, h.HandleListEscrows)

	return s
}
