package repository

import (
	"context"
	"errors"

	"shadowpool/internal/models"

	"gorm.io/gorm"
)

// CommitmentRepository reads the append-only leaf log. Writes go through
// PoolRepository.ApplyDeposit so they share the deposit transaction.
type CommitmentRepository interface {
	// ListByPool returns all leaves of a pool ordered by leaf index, the
	// replay sequence for rebuilding the accumulator on startup.
	ListByPool(ctx context.Context, poolID string) ([]models.CommitmentRecord, error)

	GetByCommitment(ctx context.Context, poolID, commitment string) (*models.CommitmentRecord, error)
	CountByPool(ctx context.Context, poolID string) (int64, error)
}

type commitmentRepository struct {
	db *gorm.DB
}

// NewCommitmentRepository creates a gorm-backed CommitmentRepository.
func NewCommitmentRepository(db *gorm.DB) CommitmentRepository {
	return &commitmentRepository{db: db}
}

func (r *commitmentRepository) ListByPool(ctx context.Context, poolID string) ([]models.CommitmentRecord, error) {
	var records []models.CommitmentRecord
	err := r.db.WithContext(ctx).
		Where("pool_id = ?", poolID).
		Order("leaf_index ASC").
		Find(&records).Error
	return records, err
}

func (r *commitmentRepository) GetByCommitment(ctx context.Context, poolID, commitment string) (*models.CommitmentRecord, error) {
	var record models.CommitmentRecord
	err := r.db.WithContext(ctx).
		Where("pool_id = ? AND commitment = ?", poolID, commitment).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *commitmentRepository) CountByPool(ctx context.Context, poolID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CommitmentRecord{}).
		Where("pool_id = ?", poolID).
		Count(&count).Error
	return count, err
}
