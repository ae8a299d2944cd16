package escrow

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arclabs/arcpay/internal/funds"
	"github.com/arclabs/arcpay/internal/identity"
)

// Handler provides HTTP endpoints for escrow operations.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a new escrow handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes sets up public (read-only) escrow routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/escrow/stats", h.GetStats)
	r.GET("/escrow/:id", h.GetEscrow)
	r.GET("/escrow/:id/timeout", h.GetTimeout)
	r.GET("/agents/:address/escrows", h.ListEscrows)
}

// RegisterProtectedRoutes sets up protected (auth-required) escrow routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/escrow", h.CreateEscrow)
	r.POST("/escrow/:id/release", h.ReleaseEscrow)
	r.POST("/escrow/:id/refund", h.RefundEscrow)
}

type createRequest struct {
	Seller        string `json:"seller" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	FundsProvided string `json:"fundsProvided" binding:"required"`
}

// CreateEscrow handles POST /v1/escrow. The authenticated agent is the buyer.
func (h *Handler) CreateEscrow(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	caller, ok := callerAddress(c)
	if !ok {
		return
	}

	seller, err := identity.Parse(req.Seller)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_seller",
			"message": "Seller must be a valid address",
		})
		return
	}

	e, err := h.ledger.Create(c.Request.Context(), caller, CreateRequest{
		Seller:        seller,
		Amount:        req.Amount,
		FundsProvided: req.FundsProvided,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"escrow": e})
}

// ReleaseEscrow handles POST /v1/escrow/:id/release
func (h *Handler) ReleaseEscrow(c *gin.Context) {
	id, ok := escrowID(c)
	if !ok {
		return
	}
	caller, ok := callerAddress(c)
	if !ok {
		return
	}

	e, err := h.ledger.Release(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": e})
}

// RefundEscrow handles POST /v1/escrow/:id/refund
func (h *Handler) RefundEscrow(c *gin.Context) {
	id, ok := escrowID(c)
	if !ok {
		return
	}
	caller, ok := callerAddress(c)
	if !ok {
		return
	}

	e, err := h.ledger.Refund(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": e})
}

// GetEscrow handles GET /v1/escrow/:id
func (h *Handler) GetEscrow(c *gin.Context) {
	id, ok := escrowID(c)
	if !ok {
		return
	}

	e, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": e})
}

// GetTimeout handles GET /v1/escrow/:id/timeout
func (h *Handler) GetTimeout(c *gin.Context) {
	id, ok := escrowID(c)
	if !ok {
		return
	}

	timedOut, err := h.ledger.IsTimedOut(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	remaining, err := h.ledger.TimeUntilTimeout(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"timedOut":         timedOut,
		"remainingSeconds": int64(remaining.Seconds()),
	})
}

// GetStats handles GET /v1/escrow/stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.ledger.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListEscrows handles GET /v1/agents/:address/escrows
func (h *Handler) ListEscrows(c *gin.Context) {
	addr, err := identity.Parse(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Address must be a valid 0x-prefixed hex address",
		})
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 200 {
				limit = 200
			}
		}
	}

	escrows, err := h.ledger.ListByAgent(c.Request.Context(), addr, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"escrows": escrows,
		"count":   len(escrows),
	})
}

// escrowID parses the :id path parameter.
func escrowID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_id",
			"message": "Escrow ID must be a non-negative integer",
		})
		return 0, false
	}
	return id, true
}

// callerAddress reads the authenticated agent set by the auth middleware.
func callerAddress(c *gin.Context) (identity.Address, bool) {
	caller, err := identity.ParseParticipant(c.GetString("authAgentAddr"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Authentication required",
		})
		return identity.Zero, false
	}
	return caller, true
}

// respondError maps ledger errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrInvalidBuyer):
		status, code = http.StatusBadRequest, "invalid_buyer"
	case errors.Is(err, ErrInvalidSeller):
		status, code = http.StatusBadRequest, "invalid_seller"
	case errors.Is(err, ErrInvalidAmount):
		status, code = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, ErrAmountMismatch):
		status, code = http.StatusBadRequest, "amount_mismatch"
	case errors.Is(err, funds.ErrInsufficientBalance):
		status, code = http.StatusBadRequest, "insufficient_funds"
	case errors.Is(err, ErrEscrowNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, ErrOnlyBuyer), errors.Is(err, ErrRefundNotAllowed):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, ErrEscrowNotActive):
		status, code = http.StatusConflict, "not_active"
	case errors.Is(err, ErrTransferFailed):
		status, code = http.StatusBadGateway, "transfer_failed"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
