package repository

import (
	"context"

	"shadowpool/internal/models"

	"gorm.io/gorm"
)

// RootRepository reads the persisted root-history window. Writes and pruning
// happen inside the deposit transaction (PoolRepository.ApplyDeposit).
type RootRepository interface {
	// RecentRoots returns up to limit of the newest roots, oldest first, the
	// order RootHistory expects when replaying the window on startup.
	RecentRoots(ctx context.Context, poolID string, limit int) ([]models.RootRecord, error)

	Create(ctx context.Context, record *models.RootRecord) error
}

type rootRepository struct {
	db *gorm.DB
}

// NewRootRepository creates a gorm-backed RootRepository.
func NewRootRepository(db *gorm.DB) RootRepository {
	return &rootRepository{db: db}
}

func (r *rootRepository) RecentRoots(ctx context.Context, poolID string, limit int) ([]models.RootRecord, error) {
	var records []models.RootRecord
	err := r.db.WithContext(ctx).
		Where("pool_id = ?", poolID).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	// Reverse into insertion order.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (r *rootRepository) Create(ctx context.Context, record *models.RootRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}
