package repository

import (
	"errors"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateCommitment is returned when a commitment value is reused
	// within a pool.
	ErrDuplicateCommitment = errors.New("commitment already deposited")

	// ErrAlreadySpent is returned when a nullifier hash has already been
	// marked spent.
	ErrAlreadySpent = errors.New("nullifier already spent")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)

// isDuplicateKey reports whether err is a unique-constraint violation,
// covering both the lib/pq error surface (code 23505) and gorm's translated
// sentinel.
func isDuplicateKey(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
