// Shielded pool database models. Digests and addresses are stored as
// 0x-prefixed lower-case hex (66 and 42 chars respectively) so they can be
// indexed and compared as plain strings.
package models

import (
	"time"
)

// Pool is the per-pool ledger record: configuration and counters.
//
// Invariants maintained by the engine:
//   - LeafCount <= 2^TreeDepth
//   - TotalDeposited == Denomination * LeafCount
//   - Root always equals the accumulator root for the first LeafCount leaves
type Pool struct {
	ID           string `json:"id" gorm:"primaryKey"` // UUID
	Authority    string `json:"authority" gorm:"type:varchar(42);not null"`
	Denomination uint64 `json:"denomination" gorm:"not null"` // immutable after init
	FeeBps       uint16 `json:"fee_bps" gorm:"not null"`
	FeeRecipient string `json:"fee_recipient" gorm:"type:varchar(42);not null"`
	TreeDepth    uint8  `json:"tree_depth" gorm:"not null"`

	Root           string `json:"root" gorm:"type:varchar(66);index;not null"`
	LeafCount      uint32 `json:"leaf_count" gorm:"not null;default:0"`
	TotalDeposited uint64 `json:"total_deposited" gorm:"not null;default:0"`
	TotalWithdrawn uint64 `json:"total_withdrawn" gorm:"not null;default:0"`
	Enabled        bool   `json:"enabled" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommitmentRecord is one accumulator leaf. The unique index on
// (pool_id, commitment) is what rejects a reused commitment.
type CommitmentRecord struct {
	ID         uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	PoolID     string `json:"pool_id" gorm:"type:varchar(36);index;uniqueIndex:idx_pool_commitment;not null"`
	Commitment string `json:"commitment" gorm:"type:varchar(66);uniqueIndex:idx_pool_commitment;not null"`
	LeafIndex  uint32 `json:"leaf_index" gorm:"not null"`
	Root       string `json:"root" gorm:"type:varchar(66);not null"` // root after this insertion

	CreatedAt time.Time `json:"created_at"`
}

// NullifierRecord marks a deposit as spent. Rows are created on first
// successful withdrawal, keyed directly by nullifier hash; the unique index
// on (pool_id, nullifier_hash) makes check-and-set a single atomic insert.
type NullifierRecord struct {
	ID            uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	PoolID        string `json:"pool_id" gorm:"type:varchar(36);index;uniqueIndex:idx_pool_nullifier;not null"`
	NullifierHash string `json:"nullifier_hash" gorm:"type:varchar(66);uniqueIndex:idx_pool_nullifier;not null"`
	Recipient     string `json:"recipient" gorm:"type:varchar(42);not null"`
	Amount        uint64 `json:"amount" gorm:"not null"`

	SpentAt time.Time `json:"spent_at"`
}

// RootRecord is one entry of the persisted root-history window. Rows older
// than the configured window are pruned on each deposit, so the table always
// mirrors the in-memory ring.
type RootRecord struct {
	ID        uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	PoolID    string `json:"pool_id" gorm:"type:varchar(36);index;not null"`
	Root      string `json:"root" gorm:"type:varchar(66);index;not null"`
	LeafCount uint32 `json:"leaf_count" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
}

// DepositEvent is the append-only deposit log: the only channel by which a
// depositor later locates their own leaf, since no identity link is stored.
type DepositEvent struct {
	ID         string `json:"id" gorm:"primaryKey"` // UUID
	PoolID     string `json:"pool_id" gorm:"type:varchar(36);index;not null"`
	Commitment string `json:"commitment" gorm:"type:varchar(66);index;not null"`
	LeafIndex  uint32 `json:"leaf_index" gorm:"not null"`
	Root       string `json:"root" gorm:"type:varchar(66);not null"`

	Timestamp time.Time `json:"timestamp" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// WithdrawEvent is the append-only withdrawal log used for off-chain
// reconciliation.
type WithdrawEvent struct {
	ID            string `json:"id" gorm:"primaryKey"` // UUID
	PoolID        string `json:"pool_id" gorm:"type:varchar(36);index;not null"`
	NullifierHash string `json:"nullifier_hash" gorm:"type:varchar(66);index;not null"`
	Recipient     string `json:"recipient" gorm:"type:varchar(42);index;not null"`
	Amount        uint64 `json:"amount" gorm:"not null"` // payout after fee
	Fee           uint64 `json:"fee" gorm:"not null"`

	Timestamp time.Time `json:"timestamp" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// StuckPayoutKind distinguishes which leg of a withdrawal failed.
type StuckPayoutKind string

const (
	StuckPayoutKindPayout StuckPayoutKind = "payout"
	StuckPayoutKindFee    StuckPayoutKind = "fee"
)

// StuckPayout records a withdrawal whose nullifier was consumed but whose
// funds release failed. The engine never retries these; operators reconcile
// them through the admin API.
type StuckPayout struct {
	ID            string          `json:"id" gorm:"primaryKey"` // UUID
	PoolID        string          `json:"pool_id" gorm:"type:varchar(36);index;not null"`
	NullifierHash string          `json:"nullifier_hash" gorm:"type:varchar(66);index;not null"`
	Recipient     string          `json:"recipient" gorm:"type:varchar(42);not null"`
	Amount        uint64          `json:"amount" gorm:"not null"`
	Kind          StuckPayoutKind `json:"kind" gorm:"type:varchar(16);not null"`
	Reason        string          `json:"reason" gorm:"type:text"`
	Resolved      bool            `json:"resolved" gorm:"index;not null;default:false"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// CustodyAccount is one balance row of the in-process custody ledger, the
// default implementation of the funds-transfer collaborator.
type CustodyAccount struct {
	Address string `json:"address" gorm:"primaryKey;type:varchar(64)"`
	Balance uint64 `json:"balance" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
