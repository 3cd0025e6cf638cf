package repository

import (
	"context"
	"errors"

	"shadowpool/internal/models"

	"gorm.io/gorm"
)

// EventRepository queries the append-only deposit and withdrawal logs.
// Event rows are written inside the flow transactions; this interface is the
// read side used by the reconciliation API.
type EventRepository interface {
	ListDeposits(ctx context.Context, poolID string, page, pageSize int) ([]models.DepositEvent, int64, error)
	GetDepositByCommitment(ctx context.Context, poolID, commitment string) (*models.DepositEvent, error)
	ListWithdrawals(ctx context.Context, poolID string, page, pageSize int) ([]models.WithdrawEvent, int64, error)
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a gorm-backed EventRepository.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) ListDeposits(ctx context.Context, poolID string, page, pageSize int) ([]models.DepositEvent, int64, error) {
	var events []models.DepositEvent
	var total int64

	q := r.db.WithContext(ctx).Model(&models.DepositEvent{}).Where("pool_id = ?", poolID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := q.Order("leaf_index ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&events).Error
	return events, total, err
}

func (r *eventRepository) GetDepositByCommitment(ctx context.Context, poolID, commitment string) (*models.DepositEvent, error) {
	var event models.DepositEvent
	err := r.db.WithContext(ctx).
		Where("pool_id = ? AND commitment = ?", poolID, commitment).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) ListWithdrawals(ctx context.Context, poolID string, page, pageSize int) ([]models.WithdrawEvent, int64, error) {
	var events []models.WithdrawEvent
	var total int64

	q := r.db.WithContext(ctx).Model(&models.WithdrawEvent{}).Where("pool_id = ?", poolID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := q.Order("timestamp DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&events).Error
	return events, total, err
}
