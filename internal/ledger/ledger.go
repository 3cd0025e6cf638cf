// Package ledger holds the funds-transfer collaborator of the pool engine.
// The engine only sees the TransferLedger interface; the default
// implementation is a custody table in the same database.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"shadowpool/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInsufficientFunds is returned when the source account cannot cover
	// the transfer amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrTransferRejected is returned for transfers that are invalid before
	// any balance check, such as a zero amount or an empty account.
	ErrTransferRejected = errors.New("transfer rejected")
)

// TransferLedger moves value between accounts. Implementations must be
// atomic: a returned error means no balance changed.
type TransferLedger interface {
	Transfer(ctx context.Context, from, to string, amount uint64) error
	Balance(ctx context.Context, account string) (uint64, error)
}

// PoolAccount is the custody account address of a pool's escrowed deposits.
func PoolAccount(poolID string) string {
	return "pool:" + poolID
}

// CustodyLedger is the gorm-backed TransferLedger. Balances live in the
// custody_accounts table; transfers lock both rows for update so concurrent
// withdrawals against the same pool account serialize at the database.
type CustodyLedger struct {
	db *gorm.DB
}

// NewCustodyLedger creates a CustodyLedger on the given database handle.
func NewCustodyLedger(db *gorm.DB) *CustodyLedger {
	return &CustodyLedger{db: db}
}

func (l *CustodyLedger) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if from == "" || to == "" || from == to {
		return fmt.Errorf("%w: invalid accounts %q -> %q", ErrTransferRejected, from, to)
	}
	if amount == 0 {
		return fmt.Errorf("%w: zero amount", ErrTransferRejected)
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var src models.CustodyAccount
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("address = ?", from).
			First(&src).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: account %s", ErrInsufficientFunds, from)
		}
		if err != nil {
			return err
		}
		if src.Balance < amount {
			return fmt.Errorf("%w: account %s has %d, needs %d", ErrInsufficientFunds, from, src.Balance, amount)
		}

		res := tx.Model(&models.CustodyAccount{}).
			Where("address = ? AND balance >= ?", from, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: account %s", ErrInsufficientFunds, from)
		}

		dst := models.CustodyAccount{Address: to, Balance: amount}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"balance": gorm.Expr("custody_accounts.balance + ?", amount)}),
		}).Create(&dst).Error
	})
}

func (l *CustodyLedger) Balance(ctx context.Context, account string) (uint64, error) {
	var acc models.CustodyAccount
	err := l.db.WithContext(ctx).Where("address = ?", account).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// Credit mints balance onto an account. Used by operational tooling to fund
// depositor accounts; the pool flows themselves never mint.
func (l *CustodyLedger) Credit(ctx context.Context, account string, amount uint64) error {
	if account == "" {
		return fmt.Errorf("%w: empty account", ErrTransferRejected)
	}
	acc := models.CustodyAccount{Address: account, Balance: amount}
	return l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"balance": gorm.Expr("custody_accounts.balance + ?", amount)}),
	}).Create(&acc).Error
}
