package handlers

import (
	"errors"
	"net/http"

	"shadowpool/internal/ledger"
	"shadowpool/internal/repository"
	"shadowpool/internal/services"

	"github.com/gin-gonic/gin"
)

// respondServiceError maps engine errors onto HTTP status codes. Unknown
// errors surface as 500 without leaking internals.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrPoolNotFound), errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, services.ErrPoolInactive):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": err.Error(), "code": "POOL_INACTIVE"})
	case errors.Is(err, services.ErrPoolFull):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error(), "code": "POOL_FULL"})
	case errors.Is(err, repository.ErrDuplicateCommitment):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error(), "code": "DUPLICATE_COMMITMENT"})
	case errors.Is(err, repository.ErrAlreadySpent):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error(), "code": "NULLIFIER_ALREADY_USED"})
	case errors.Is(err, services.ErrInvalidRoot):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error(), "code": "INVALID_MERKLE_ROOT"})
	case errors.Is(err, services.ErrInvalidProof):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error(), "code": "INVALID_PROOF"})
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrFeeRecipientMismatch),
		errors.Is(err, services.ErrInvalidDenomination),
		errors.Is(err, services.ErrInvalidTreeDepth),
		errors.Is(err, services.ErrStuckPayoutResolved):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrTransferRejected):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error(), "code": "TRANSFER_FAILED"})
	case errors.Is(err, services.ErrPayoutStuck):
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": err.Error(), "code": "PAYOUT_STUCK"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	}
}
