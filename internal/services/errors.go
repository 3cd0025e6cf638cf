package services

import "errors"

// Sentinel errors of the pool engine. Handlers map these onto HTTP codes;
// everything else surfaces as an internal error.
var (
	ErrPoolNotFound         = errors.New("pool not found")
	ErrPoolInactive         = errors.New("pool is disabled")
	ErrPoolFull             = errors.New("pool accumulator is full")
	ErrInvalidRoot          = errors.New("merkle root not in acceptance window")
	ErrInvalidProof         = errors.New("proof verification failed")
	ErrFeeRecipientMismatch = errors.New("fee recipient does not match pool configuration")
	ErrPayoutStuck          = errors.New("nullifier consumed but funds release failed")

	ErrValidation          = errors.New("invalid request")
	ErrInvalidDenomination = errors.New("denomination not permitted by registry")
	ErrInvalidTreeDepth    = errors.New("tree depth out of range")
	ErrStuckPayoutResolved = errors.New("stuck payout already resolved")
)
