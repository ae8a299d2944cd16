package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *ArcPayClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *ArcPayClient) *Handlers {
	return &Handlers{client: client}
}

// HandleCreateEscrow opens a new escrow for the seller.
func (h *Handlers) HandleCreateEscrow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	seller := req.GetString("seller", "")
	if seller == "" {
		return mcp.NewToolResultError("seller is required"), nil
	}
	amount := req.GetString("amount", "")
	if amount == "" {
		return mcp.NewToolResultError("amount is required"), nil
	}

	raw, err := h.client.CreateEscrow(ctx, seller, amount)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Escrow creation failed: %v", err)), nil
	}

	e, err := parseEscrow(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse escrow: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Escrow created.\n"+
			"Escrow ID: %d\n"+
			"Seller: %s\n"+
			"Amount held: %s USDC\n\n"+
			"Release with release_escrow once the seller delivers, "+
			"or wait for the seller (or the timeout) to refund.",
		e.ID, e.Seller, e.Amount)), nil
}

// HandleReleaseEscrow pays the seller.
func (h *Handlers) HandleReleaseEscrow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	escrowID := req.GetString("escrow_id", "")
	if escrowID == "" {
		return mcp.NewToolResultError("escrow_id is required"), nil
	}

	raw, err := h.client.ReleaseEscrow(ctx, escrowID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Release failed: %v", err)), nil
	}

	e, err := parseEscrow(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse escrow: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Escrow %d released.\n"+
			"Paid: %s USDC to %s",
		e.ID, e.Amount, e.Seller)), nil
}

// HandleRefundEscrow returns the funds to the buyer.
func (h *Handlers) HandleRefundEscrow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	escrowID := req.GetString("escrow_id", "")
	if escrowID == "" {
		return mcp.NewToolResultError("escrow_id is required"), nil
	}

	raw, err := h.client.RefundEscrow(ctx, escrowID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Refund failed: %v", err)), nil
	}

	e, err := parseEscrow(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse escrow: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Escrow %d refunded.\n"+
			"Returned: %s USDC to %s",
		e.ID, e.Amount, e.Buyer)), nil
}

// HandleGetEscrow returns a single escrow record.
func (h *Handlers) HandleGetEscrow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	escrowID := req.GetString("escrow_id", "")
	if escrowID == "" {
		return mcp.NewToolResultError("escrow_id is required"), nil
	}

	raw, err := h.client.GetEscrow(ctx, escrowID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get escrow: %v", err)), nil
	}

	e, err := parseEscrow(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse escrow: %v", err)), nil
	}

	return mcp.NewToolResultText(formatEscrow(e)), nil
}

// HandleEscrowTimeout reports refund eligibility for an escrow.
func (h *Handlers) HandleEscrowTimeout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	escrowID := req.GetString("escrow_id", "")
	if escrowID == "" {
		return mcp.NewToolResultError("escrow_id is required"), nil
	}

	raw, err := h.client.GetEscrowTimeout(ctx, escrowID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check timeout: %v", err)), nil
	}

	var resp struct {
		TimedOut         bool  `json:"timedOut"`
		RemainingSeconds int64 `json:"remainingSeconds"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse timeout: %v", err)), nil
	}

	if resp.TimedOut {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Escrow %s has timed out. Anyone can now refund it with refund_escrow.",
			escrowID)), nil
	}

	remaining := time.Duration(resp.RemainingSeconds) * time.Second
	return mcp.NewToolResultText(fmt.Sprintf(
		"Escrow %s is still inside its timeout window.\n"+
			"Time until permissionless refund: %s\n"+
			"Until then only the seller can refund it.",
		escrowID, remaining)), nil
}

// HandleCheckBalance returns the agent's USDC balance.
func (h *Handlers) HandleCheckBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetBalance(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check balance: %v", err)), nil
	}

	var resp struct {
		Balance struct {
			Available string `json:"available"`
		} `json:"balance"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse balance: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Available balance: %s USDC", resp.Balance.Available)), nil
}

// HandleListEscrows lists the agent's escrows.
func (h *Handlers) HandleListEscrows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListEscrows(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list escrows: %v", err)), nil
	}

	var resp struct {
		Escrows []escrowInfo `json:"escrows"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse escrows: %v", err)), nil
	}

	if len(resp.Escrows) == 0 {
		return mcp.NewToolResultText("No escrows found for your agent."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d escrow(s):\n\n", len(resp.Escrows))
	for i, e := range resp.Escrows {
		fmt.Fprintf(&sb, "%d. Escrow %d: %s USDC [%s]\n", i+1, e.ID, e.Amount, e.State)
		fmt.Fprintf(&sb, "   Buyer: %s\n   Seller: %s\n", e.Buyer, e.Seller)
		if i < len(resp.Escrows)-1 {
			sb.WriteString("\n")
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// --- Formatting helpers ---

type escrowInfo struct {
	ID            uint64     `json:"id"`
	Buyer         string     `json:"buyer"`
	Seller        string     `json:"seller"`
	Amount        string     `json:"amount"`
	State         string     `json:"state"`
	CreatedAt     time.Time  `json:"createdAt"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
	TransferError string     `json:"transferError,omitempty"`
}

// parseEscrow accepts both {"escrow": {...}} and a bare escrow object.
func parseEscrow(raw json.RawMessage) (escrowInfo, error) {
	var wrapper struct {
		Escrow *escrowInfo `json:"escrow"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Escrow != nil {
		return *wrapper.Escrow, nil
	}

	var e escrowInfo
	if err := json.Unmarshal(raw, &e); err != nil {
		return escrowInfo{}, fmt.Errorf("unexpected escrow response format")
	}
	return e, nil
}

func formatEscrow(e escrowInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Escrow %d:\n", e.ID)
	fmt.Fprintf(&sb, "  State: %s\n", e.State)
	fmt.Fprintf(&sb, "  Buyer: %s\n", e.Buyer)
	fmt.Fprintf(&sb, "  Seller: %s\n", e.Seller)
	fmt.Fprintf(&sb, "  Amount: %s USDC\n", e.Amount)
	fmt.Fprintf(&sb, "  Created: %s\n", e.CreatedAt.Format(time.RFC3339))
	if e.ResolvedAt != nil {
		fmt.Fprintf(&sb, "  Resolved: %s\n", e.ResolvedAt.Format(time.RFC3339))
	}
	if e.TransferError != "" {
		fmt.Fprintf(&sb, "  Transfer error: %s\n", e.TransferError)
	}
	return sb.String()
}
