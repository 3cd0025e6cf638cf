package repository

import (
	"context"
	"errors"
	"fmt"

	"shadowpool/internal/models"

	"gorm.io/gorm"
)

// DepositApplication is the state delta one deposit commits atomically:
// the new leaf, the updated pool counters/root, the root-history entry and
// the deposit event. Either all rows land or none do.
type DepositApplication struct {
	Commitment *models.CommitmentRecord
	RootRecord *models.RootRecord
	Event      *models.DepositEvent

	NewRoot           string
	NewLeafCount      uint32
	NewTotalDeposited uint64
	RootWindow        int
}

// PoolRepository defines persistence for pool aggregates, including the
// composite transactional operations of the deposit and withdrawal flows.
type PoolRepository interface {
	Create(ctx context.Context, pool *models.Pool) error
	GetByID(ctx context.Context, id string) (*models.Pool, error)
	List(ctx context.Context) ([]models.Pool, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// ApplyDeposit commits a DepositApplication in one transaction.
	// Returns ErrDuplicateCommitment if the commitment was already used.
	ApplyDeposit(ctx context.Context, poolID string, app *DepositApplication) error

	// ApplyWithdraw adds the withdrawn denomination to the pool counters and
	// records the withdrawal event in one transaction.
	ApplyWithdraw(ctx context.Context, poolID string, newTotalWithdrawn uint64, event *models.WithdrawEvent) error
}

type poolRepository struct {
	db *gorm.DB
}

// NewPoolRepository creates a gorm-backed PoolRepository.
func NewPoolRepository(db *gorm.DB) PoolRepository {
	return &poolRepository{db: db}
}

func (r *poolRepository) Create(ctx context.Context, pool *models.Pool) error {
	return r.db.WithContext(ctx).Create(pool).Error
}

func (r *poolRepository) GetByID(ctx context.Context, id string) (*models.Pool, error) {
	var pool models.Pool
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&pool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

func (r *poolRepository) List(ctx context.Context) ([]models.Pool, error) {
	var pools []models.Pool
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&pools).Error
	return pools, err
}

func (r *poolRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res := r.db.WithContext(ctx).
		Model(&models.Pool{}).
		Where("id = ?", id).
		Update("enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *poolRepository) ApplyDeposit(ctx context.Context, poolID string, app *DepositApplication) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(app.Commitment).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicateCommitment
			}
			return fmt.Errorf("failed to record commitment: %w", err)
		}

		// The engine serializes deposits per pool; the leaf_count guard is a
		// consistency check against a desynced accumulator, not a lock.
		res := tx.Model(&models.Pool{}).
			Where("id = ? AND leaf_count = ?", poolID, app.NewLeafCount-1).
			Updates(map[string]interface{}{
				"root":            app.NewRoot,
				"leaf_count":      app.NewLeafCount,
				"total_deposited": app.NewTotalDeposited,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update pool counters: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("pool %s leaf count diverged from accumulator", poolID)
		}

		if err := tx.Create(app.RootRecord).Error; err != nil {
			return fmt.Errorf("failed to record root: %w", err)
		}
		if err := pruneRootWindow(tx, poolID, app.RootWindow); err != nil {
			return err
		}

		if err := tx.Create(app.Event).Error; err != nil {
			return fmt.Errorf("failed to record deposit event: %w", err)
		}
		return nil
	})
}

func (r *poolRepository) ApplyWithdraw(ctx context.Context, poolID string, newTotalWithdrawn uint64, event *models.WithdrawEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Pool{}).
			Where("id = ?", poolID).
			Update("total_withdrawn", newTotalWithdrawn)
		if res.Error != nil {
			return fmt.Errorf("failed to update pool counters: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("failed to record withdraw event: %w", err)
		}
		return nil
	})
}

// pruneRootWindow deletes root-history rows older than the acceptance
// window, keeping the table in lockstep with the in-memory ring.
func pruneRootWindow(tx *gorm.DB, poolID string, window int) error {
	if window < 1 {
		window = 1
	}
	err := tx.Exec(`
		DELETE FROM root_records
		WHERE pool_id = ? AND id NOT IN (
			SELECT id FROM root_records
			WHERE pool_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
	`, poolID, poolID, window).Error
	if err != nil {
		return fmt.Errorf("failed to prune root history: %w", err)
	}
	return nil
}
