// Pool Handlers - User-facing (no authentication required)
package handlers

import (
	"net/http"

	"shadowpool/internal/services"

	"github.com/gin-gonic/gin"
)

// PoolHandler handles user-facing pool queries.
type PoolHandler struct {
	poolService *services.PoolService
}

// NewPoolHandler creates a new PoolHandler instance.
func NewPoolHandler(poolService *services.PoolService) *PoolHandler {
	return &PoolHandler{poolService: poolService}
}

type createPoolRequest struct {
	Authority    string `json:"authority" binding:"required"`
	Denomination uint64 `json:"denomination" binding:"required"`
	FeeBps       uint16 `json:"fee_bps"`
	FeeRecipient string `json:"fee_recipient" binding:"required"`
	TreeDepth    int    `json:"tree_depth"`
}

// CreatePoolHandler initializes a new pool. Denomination, fee parameters
// and tree depth are immutable once created.
// POST /api/pools
func (h *PoolHandler) CreatePoolHandler(c *gin.Context) {
	var req createPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "authority, denomination and fee_recipient are required"})
		return
	}

	pool, err := h.poolService.InitPool(c.Request.Context(), services.InitPoolParams{
		Authority:    req.Authority,
		Denomination: req.Denomination,
		FeeBps:       req.FeeBps,
		FeeRecipient: req.FeeRecipient,
		TreeDepth:    req.TreeDepth,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "pool": pool})
}

// ListPoolsHandler lists all pools.
// GET /api/pools
func (h *PoolHandler) ListPoolsHandler(c *gin.Context) {
	pools, err := h.poolService.ListPools(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pools": pools, "count": len(pools)})
}

// GetPoolHandler returns one pool's configuration and counters.
// GET /api/pools/:id
func (h *PoolHandler) GetPoolHandler(c *gin.Context) {
	pool, err := h.poolService.GetPool(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pool": pool})
}

// GetRootsHandler returns the root acceptance window, oldest first. Proof
// generators use this to pick a root that will still be accepted.
// GET /api/pools/:id/roots
func (h *PoolHandler) GetRootsHandler(c *gin.Context) {
	roots, err := h.poolService.RecentRoots(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "roots": roots, "count": len(roots)})
}
