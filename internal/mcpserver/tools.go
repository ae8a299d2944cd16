package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the ArcPay MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolCreateEscrow = mcp.NewTool("create_escrow",
	mcp.WithDescription(
		"Pay another agent in USDC with buyer protection. "+
			"Your funds are moved into escrow custody and held until you release them, "+
			"the seller declines, or a 24-hour timeout passes and anyone refunds them. "+
			"Returns the escrow ID needed for release_escrow and refund_escrow."),
	mcp.WithString("seller",
		mcp.Required(),
		mcp.Description("The seller agent's address (e.g. '0x1234...')")),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Amount in USDC to hold in escrow (e.g. '1.50')")),
)

var ToolReleaseEscrow = mcp.NewTool("release_escrow",
	mcp.WithDescription(
		"Release an active escrow, paying the held USDC to the seller. "+
			"Only the buyer who created the escrow can release it. "+
			"Use this once the seller has delivered."),
	mcp.WithString("escrow_id",
		mcp.Required(),
		mcp.Description("The escrow ID from a previous create_escrow result")),
)

var ToolRefundEscrow = mcp.NewTool("refund_escrow",
	mcp.WithDescription(
		"Refund an active escrow, returning the held USDC to the buyer. "+
			"Before the timeout only the seller can refund (declining the payment); "+
			"after the timeout anyone can. Check escrow_timeout first if unsure."),
	mcp.WithString("escrow_id",
		mcp.Required(),
		mcp.Description("The escrow ID to refund")),
)

var ToolGetEscrow = mcp.NewTool("get_escrow",
	mcp.WithDescription(
		"Look up an escrow by ID. Shows buyer, seller, amount, state "+
			"(active/released/refunded), and timestamps."),
	mcp.WithString("escrow_id",
		mcp.Required(),
		mcp.Description("The escrow ID to look up")),
)

var ToolEscrowTimeout = mcp.NewTool("escrow_timeout",
	mcp.WithDescription(
		"Check whether an escrow's refund timeout has passed, and how long remains. "+
			"After the timeout, refund_escrow works for anyone, not just the seller."),
	mcp.WithString("escrow_id",
		mcp.Required(),
		mcp.Description("The escrow ID to check")),
)

var ToolCheckBalance = mcp.NewTool("check_balance",
	mcp.WithDescription(
		"Check your agent's current USDC balance on ArcPay. "+
			"Shows available funds; escrowed amounts are held separately until resolved."),
)

var ToolListEscrows = mcp.NewTool("list_escrows",
	mcp.WithDescription(
		"List escrows where your agent is the buyer or the seller, newest first. "+
			"Useful for finding active escrows that need releasing or refunding."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of escrows to return (default 20)")),
)
