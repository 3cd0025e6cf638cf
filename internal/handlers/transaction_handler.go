// Transaction Handlers - the deposit and withdrawal flows.
package handlers

import (
	"encoding/base64"
	"net/http"

	"shadowpool/internal/services"

	"github.com/gin-gonic/gin"
)

// TransactionHandler handles deposit and withdrawal requests.
type TransactionHandler struct {
	poolService *services.PoolService
}

// NewTransactionHandler creates a new TransactionHandler instance.
func NewTransactionHandler(poolService *services.PoolService) *TransactionHandler {
	return &TransactionHandler{poolService: poolService}
}

type depositRequest struct {
	Commitment string `json:"commitment" binding:"required"`
	Depositor  string `json:"depositor" binding:"required"`
}

// DepositHandler escrows one denomination and appends the commitment.
// POST /api/pools/:id/deposit
func (h *TransactionHandler) DepositHandler(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "commitment and depositor are required"})
		return
	}

	result, err := h.poolService.Deposit(c.Request.Context(), c.Param("id"), req.Commitment, req.Depositor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deposit": result})
}

type withdrawRequest struct {
	Proof         string `json:"proof" binding:"required"` // base64
	Root          string `json:"root" binding:"required"`
	NullifierHash string `json:"nullifier_hash" binding:"required"`
	Recipient     string `json:"recipient" binding:"required"`
	FeeRecipient  string `json:"fee_recipient" binding:"required"`
}

// WithdrawHandler verifies the proof and releases funds to the recipient.
// POST /api/pools/:id/withdraw
func (h *TransactionHandler) WithdrawHandler(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "proof, root, nullifier_hash, recipient and fee_recipient are required"})
		return
	}

	proof, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "proof must be base64 encoded"})
		return
	}

	result, err := h.poolService.Withdraw(c.Request.Context(), services.WithdrawParams{
		PoolID:        c.Param("id"),
		Proof:         proof,
		Root:          req.Root,
		NullifierHash: req.NullifierHash,
		Recipient:     req.Recipient,
		FeeRecipient:  req.FeeRecipient,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "withdrawal": result})
}
