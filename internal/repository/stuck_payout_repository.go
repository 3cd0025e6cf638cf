package repository

import (
	"context"
	"errors"
	"time"

	"shadowpool/internal/models"

	"gorm.io/gorm"
)

// StuckPayoutRepository tracks withdrawals whose nullifier was consumed but
// whose funds release failed. Entries stay unresolved until an operator
// retries the transfer through the admin API.
type StuckPayoutRepository interface {
	Create(ctx context.Context, payout *models.StuckPayout) error
	GetByID(ctx context.Context, id string) (*models.StuckPayout, error)
	ListUnresolved(ctx context.Context, poolID string) ([]models.StuckPayout, error)
	MarkResolved(ctx context.Context, id string) error
}

type stuckPayoutRepository struct {
	db *gorm.DB
}

// NewStuckPayoutRepository creates a gorm-backed StuckPayoutRepository.
func NewStuckPayoutRepository(db *gorm.DB) StuckPayoutRepository {
	return &stuckPayoutRepository{db: db}
}

func (r *stuckPayoutRepository) Create(ctx context.Context, payout *models.StuckPayout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *stuckPayoutRepository) GetByID(ctx context.Context, id string) (*models.StuckPayout, error) {
	var payout models.StuckPayout
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *stuckPayoutRepository) ListUnresolved(ctx context.Context, poolID string) ([]models.StuckPayout, error) {
	var payouts []models.StuckPayout
	q := r.db.WithContext(ctx).Where("resolved = ?", false)
	if poolID != "" {
		q = q.Where("pool_id = ?", poolID)
	}
	err := q.Order("created_at ASC").Find(&payouts).Error
	return payouts, err
}

func (r *stuckPayoutRepository) MarkResolved(ctx context.Context, id string) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.StuckPayout{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_at": &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
