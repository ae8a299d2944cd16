package funds

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/arclabs/arcpay/internal/identity"
)

// DepositVerifier confirms an on-chain USDC transfer into the custody
// wallet. Implemented by wallet.Wallet.
type DepositVerifier interface {
	VerifyEscrowDeposit(ctx context.Context, from identity.Address, minAmount string, txHash string) (bool, error)
}

// Handler provides HTTP endpoints for balances and deposits.
type Handler struct {
	book     *Book
	verifier DepositVerifier
	credited sync.Map // tx hash -> struct{}; each transaction credits once
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithVerifier enables on-chain deposit verification.
func WithVerifier(v DepositVerifier) HandlerOption {
	return func(h *Handler) { h.verifier = v }
}

// NewHandler creates a new funds handler.
func NewHandler(book *Book, opts ...HandlerOption) *Handler {
	h := &Handler{book: book}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes sets up public balance routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/agents/:address/balance", h.GetBalance)
	r.GET("/agents/:address/ledger", h.GetHistory)
}

// RegisterProtectedRoutes sets up auth-required routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/deposits/verify", h.VerifyDeposit)
}

// RegisterAdminRoutes sets up admin-only routes. The group must already
// require the admin secret.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/deposits", h.RecordDeposit)
}

// GetBalance handles GET /agents/:address/balance.
func (h *Handler) GetBalance(c *gin.Context) {
	agent, err := identity.Parse(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Address must be a valid 0x-prefixed hex address",
		})
		return
	}

	balance, err := h.book.Balance(c.Request.Context(), agent)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "balance_error",
			"message": "Failed to retrieve balance",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// GetHistory handles GET /agents/:address/ledger.
func (h *Handler) GetHistory(c *gin.Context) {
	agent, err := identity.Parse(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Address must be a valid 0x-prefixed hex address",
		})
		return
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := h.book.History(c.Request.Context(), agent, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "ledger_error",
			"message": "Failed to retrieve ledger history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// VerifyDepositRequest names an on-chain transfer to credit.
type VerifyDepositRequest struct {
	TxHash string `json:"txHash" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// VerifyDeposit handles POST /deposits/verify. The authenticated agent
// names a transaction that sent USDC to the custody wallet; once the
// receipt checks out the amount is credited to their available balance.
func (h *Handler) VerifyDeposit(c *gin.Context) {
	caller, err := identity.ParseParticipant(c.GetString("authAgentAddr"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Authentication required",
		})
		return
	}

	if h.verifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "verification_unavailable",
			"message": "On-chain deposit verification is not enabled",
		})
		return
	}

	var req VerifyDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "txHash and amount are required",
		})
		return
	}

	txHash := strings.ToLower(strings.TrimSpace(req.TxHash))
	if _, dup := h.credited.Load(txHash); dup {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_credited",
			"message": "This transaction has already been credited",
		})
		return
	}

	ok, err := h.verifier.VerifyEscrowDeposit(c.Request.Context(), caller, req.Amount, txHash)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "verification_failed",
			"message": "Could not verify the transaction",
		})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "deposit_not_verified",
			"message": "No matching USDC transfer from the caller was found in the transaction",
		})
		return
	}

	if _, raced := h.credited.LoadOrStore(txHash, struct{}{}); raced {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_credited",
			"message": "This transaction has already been credited",
		})
		return
	}

	if err := h.book.Deposit(c.Request.Context(), caller, req.Amount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Amount must be a positive decimal with at most 6 decimals",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "credited",
		"txHash": txHash,
		"amount": req.Amount,
	})
}

// DepositRequest is the body for crediting an agent balance.
type DepositRequest struct {
	AgentAddress string `json:"agentAddress" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
}

// RecordDeposit handles POST /admin/deposits.
func (h *Handler) RecordDeposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	agent, err := identity.ParseParticipant(req.AgentAddress)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "agentAddress must be a valid non-zero 0x-prefixed hex address",
		})
		return
	}

	if err := h.book.Deposit(c.Request.Context(), agent, req.Amount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Amount must be a positive decimal with at most 6 decimals",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":  "credited",
		"message": "Deposit credited to agent balance",
	})
}
