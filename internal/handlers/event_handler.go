// Event Handlers - reconciliation queries over the append-only event logs.
package handlers

import (
	"net/http"
	"strconv"

	"shadowpool/internal/repository"

	"github.com/gin-gonic/gin"
)

// EventHandler serves deposit and withdrawal event queries.
type EventHandler struct {
	events repository.EventRepository
}

// NewEventHandler creates a new EventHandler instance.
func NewEventHandler(events repository.EventRepository) *EventHandler {
	return &EventHandler{events: events}
}

func pagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}
	return page, pageSize
}

// ListDepositsHandler returns the deposit log of a pool, oldest first.
// GET /api/pools/:id/deposits?page=1&page_size=50
func (h *EventHandler) ListDepositsHandler(c *gin.Context) {
	page, pageSize := pagination(c)
	events, total, err := h.events.ListDeposits(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"deposits":  events,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetDepositHandler locates a deposit event by commitment. Depositors use
// this to find their leaf index for proof generation.
// GET /api/pools/:id/deposits/:commitment
func (h *EventHandler) GetDepositHandler(c *gin.Context) {
	event, err := h.events.GetDepositByCommitment(c.Request.Context(), c.Param("id"), c.Param("commitment"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deposit": event})
}

// ListWithdrawalsHandler returns the withdrawal log of a pool, newest first.
// GET /api/pools/:id/withdrawals?page=1&page_size=50
func (h *EventHandler) ListWithdrawalsHandler(c *gin.Context) {
	page, pageSize := pagination(c)
	events, total, err := h.events.ListWithdrawals(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"withdrawals": events,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
	})
}
