package repository

import (
	"context"
	"errors"

	"shadowpool/internal/models"

	"gorm.io/gorm"
)

// NullifierRepository is the spent-nullifier set. Lookups are keyed directly
// by nullifier hash; MarkSpent is a single insert gated by a unique index,
// so two concurrent withdrawals presenting the same hash can never both
// succeed regardless of interleaving.
type NullifierRepository interface {
	IsSpent(ctx context.Context, poolID, nullifierHash string) (bool, error)

	// MarkSpent records the nullifier as spent. Returns ErrAlreadySpent if a
	// record for the same (pool, nullifier hash) already exists.
	MarkSpent(ctx context.Context, record *models.NullifierRecord) error

	GetByHash(ctx context.Context, poolID, nullifierHash string) (*models.NullifierRecord, error)
	CountByPool(ctx context.Context, poolID string) (int64, error)
}

type nullifierRepository struct {
	db *gorm.DB
}

// NewNullifierRepository creates a gorm-backed NullifierRepository.
func NewNullifierRepository(db *gorm.DB) NullifierRepository {
	return &nullifierRepository{db: db}
}

func (r *nullifierRepository) IsSpent(ctx context.Context, poolID, nullifierHash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.NullifierRecord{}).
		Where("pool_id = ? AND nullifier_hash = ?", poolID, nullifierHash).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *nullifierRepository) MarkSpent(ctx context.Context, record *models.NullifierRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrAlreadySpent
		}
		return err
	}
	return nil
}

func (r *nullifierRepository) GetByHash(ctx context.Context, poolID, nullifierHash string) (*models.NullifierRecord, error) {
	var record models.NullifierRecord
	err := r.db.WithContext(ctx).
		Where("pool_id = ? AND nullifier_hash = ?", poolID, nullifierHash).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *nullifierRepository) CountByPool(ctx context.Context, poolID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.NullifierRecord{}).
		Where("pool_id = ?", poolID).
		Count(&count).Error
	return count, err
}
