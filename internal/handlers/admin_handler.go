// Admin Handlers - operator endpoints behind JWT authentication.
package handlers

import (
	"net/http"

	"shadowpool/internal/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes pool administration and stuck-payout remediation.
type AdminHandler struct {
	poolService *services.PoolService
}

// NewAdminHandler creates a new AdminHandler instance.
func NewAdminHandler(poolService *services.PoolService) *AdminHandler {
	return &AdminHandler{poolService: poolService}
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetEnabledHandler opens or closes the deposit/withdrawal gate of a pool.
// PUT /api/admin/pools/:id/enabled
func (h *AdminHandler) SetEnabledHandler(c *gin.Context) {
	var req setEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "enabled is required"})
		return
	}

	if err := h.poolService.SetEnabled(c.Request.Context(), c.Param("id"), *req.Enabled); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "enabled": *req.Enabled})
}

// ListStuckPayoutsHandler returns unresolved stuck payouts.
// GET /api/admin/stuck-payouts?pool_id=<id>
func (h *AdminHandler) ListStuckPayoutsHandler(c *gin.Context) {
	payouts, err := h.poolService.ListStuckPayouts(c.Request.Context(), c.Query("pool_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stuck_payouts": payouts, "count": len(payouts)})
}

// RetryStuckPayoutHandler re-attempts a failed funds release.
// POST /api/admin/stuck-payouts/:id/retry
func (h *AdminHandler) RetryStuckPayoutHandler(c *gin.Context) {
	if err := h.poolService.RetryStuckPayout(c.Request.Context(), c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
