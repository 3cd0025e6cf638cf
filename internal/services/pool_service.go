package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shadowpool/internal/config"
	"shadowpool/internal/events"
	"shadowpool/internal/ledger"
	"shadowpool/internal/merkle"
	"shadowpool/internal/metrics"
	"shadowpool/internal/models"
	"shadowpool/internal/repository"
	"shadowpool/internal/utils"
	"shadowpool/internal/zk"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventPublisher receives deposit and withdrawal notifications. Publishing
// is best effort and must not block the flows.
type EventPublisher interface {
	PublishDeposit(notice events.DepositNotice)
	PublishWithdraw(notice events.WithdrawNotice)
}

// PoolService is the shielded-pool engine. It owns the in-memory
// accumulator and root window of every pool and serializes all mutating
// operations per pool, so the database order always matches the tree order.
type PoolService struct {
	pools       repository.PoolRepository
	commitments repository.CommitmentRepository
	nullifiers  repository.NullifierRepository
	roots       repository.RootRepository
	stuck       repository.StuckPayoutRepository
	ledger      ledger.TransferLedger
	verifier    zk.ProofVerifier
	hasher      merkle.Hasher
	publishers  []EventPublisher
	rootWindow  int

	mu    sync.Mutex
	state map[string]*poolState
}

// poolState is the per-pool in-memory view: the accumulator and the root
// acceptance window. Its mutex linearizes deposits and withdrawals of one
// pool; different pools proceed concurrently.
type poolState struct {
	mu     sync.Mutex
	loaded bool
	tree   *merkle.Tree
	ring   *merkle.RootHistory
}

// NewPoolService wires the engine. rootWindow is the acceptance window
// size W; values below 1 are clamped to current-root-only.
func NewPoolService(
	pools repository.PoolRepository,
	commitments repository.CommitmentRepository,
	nullifiers repository.NullifierRepository,
	roots repository.RootRepository,
	stuck repository.StuckPayoutRepository,
	transfer ledger.TransferLedger,
	verifier zk.ProofVerifier,
	hasher merkle.Hasher,
	rootWindow int,
	publishers ...EventPublisher,
) *PoolService {
	if rootWindow < 1 {
		rootWindow = 1
	}
	return &PoolService{
		pools:       pools,
		commitments: commitments,
		nullifiers:  nullifiers,
		roots:       roots,
		stuck:       stuck,
		ledger:      transfer,
		verifier:    verifier,
		hasher:      hasher,
		publishers:  publishers,
		rootWindow:  rootWindow,
		state:       make(map[string]*poolState),
	}
}

// InitPoolParams are the immutable pool parameters fixed at creation.
type InitPoolParams struct {
	Authority    string
	Denomination uint64
	FeeBps       uint16
	FeeRecipient string
	TreeDepth    int
}

// InitPool creates a new pool with an empty accumulator. Denomination and
// fee parameters are immutable afterwards.
func (s *PoolService) InitPool(ctx context.Context, params InitPoolParams) (*models.Pool, error) {
	if !config.IsDenominationAllowed(params.Denomination) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDenomination, params.Denomination)
	}
	if params.FeeBps > utils.BpsDenominator {
		return nil, utils.ErrInvalidFeeBps
	}
	authority, err := utils.ParseAddress(params.Authority)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	feeRecipient, err := utils.ParseAddress(params.FeeRecipient)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	depth := params.TreeDepth
	if depth == 0 && config.AppConfig != nil {
		depth = config.AppConfig.Pool.DefaultTreeDepth
	}
	if depth < 1 || depth > merkle.MaxDepth {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTreeDepth, depth)
	}

	tree, err := merkle.NewTree(depth, s.hasher)
	if err != nil {
		return nil, err
	}

	pool := &models.Pool{
		ID:           uuid.New().String(),
		Authority:    utils.NormalizeHex(authority.Hex()),
		Denomination: params.Denomination,
		FeeBps:       params.FeeBps,
		FeeRecipient: utils.NormalizeHex(feeRecipient.Hex()),
		TreeDepth:    uint8(depth),
		Root:         utils.NormalizeHex(tree.EmptyRoot().Hex()),
		Enabled:      true,
	}
	if err := s.pools.Create(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := s.roots.Create(ctx, &models.RootRecord{
		PoolID:    pool.ID,
		Root:      pool.Root,
		LeafCount: 0,
	}); err != nil {
		return nil, fmt.Errorf("failed to record initial root: %w", err)
	}

	ring := merkle.NewRootHistory(s.rootWindow)
	ring.Push(tree.EmptyRoot())

	s.mu.Lock()
	s.state[pool.ID] = &poolState{loaded: true, tree: tree, ring: ring}
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"pool":         pool.ID,
		"denomination": pool.Denomination,
		"fee_bps":      pool.FeeBps,
		"tree_depth":   depth,
	}).Info("Pool initialized")

	return pool, nil
}

// GetPool returns a pool by ID.
func (s *PoolService) GetPool(ctx context.Context, poolID string) (*models.Pool, error) {
	pool, err := s.pools.GetByID(ctx, poolID)
	if err == repository.ErrNotFound {
		return nil, ErrPoolNotFound
	}
	return pool, err
}

// ListPools returns all pools.
func (s *PoolService) ListPools(ctx context.Context) ([]models.Pool, error) {
	return s.pools.List(ctx)
}

// SetEnabled toggles the pool's deposit/withdrawal gate. Disabling never
// touches escrowed funds.
func (s *PoolService) SetEnabled(ctx context.Context, poolID string, enabled bool) error {
	err := s.pools.SetEnabled(ctx, poolID, enabled)
	if err == repository.ErrNotFound {
		return ErrPoolNotFound
	}
	if err == nil {
		log.WithFields(log.Fields{"pool": poolID, "enabled": enabled}).Info("Pool gate updated")
	}
	return err
}

// RecentRoots returns the acceptance window of a pool, oldest first.
func (s *PoolService) RecentRoots(ctx context.Context, poolID string) ([]string, error) {
	pool, err := s.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	st, err := s.poolState(ctx, pool)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	recent := st.ring.Recent()
	out := make([]string, len(recent))
	for i, r := range recent {
		out[i] = utils.NormalizeHex(r.Hex())
	}
	return out, nil
}

// DepositResult reports where a deposit landed.
type DepositResult struct {
	LeafIndex uint32 `json:"leaf_index"`
	Root      string `json:"root"`
}

// Deposit escrows one denomination from the depositor account and appends
// the commitment to the accumulator. The commitment must be fresh; the
// flow is atomic against the store.
func (s *PoolService) Deposit(ctx context.Context, poolID, commitmentHex, depositor string) (*DepositResult, error) {
	commitment, err := utils.ParseHash(commitmentHex)
	if err != nil {
		s.reject("deposit", "bad_commitment")
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	pool, err := s.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	st, err := s.poolState(ctx, pool)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	// Re-read under the lock: a concurrent commit on this pool may have
	// advanced the counters (or the gate) since the snapshot above.
	pool, err = s.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}

	if !pool.Enabled {
		s.reject("deposit", "pool_inactive")
		return nil, ErrPoolInactive
	}
	if st.tree.LeafCount() >= st.tree.Capacity() {
		s.reject("deposit", "pool_full")
		return nil, ErrPoolFull
	}

	commitmentKey := utils.NormalizeHex(commitment.Hex())
	if _, err := s.commitments.GetByCommitment(ctx, pool.ID, commitmentKey); err == nil {
		s.reject("deposit", "duplicate_commitment")
		return nil, repository.ErrDuplicateCommitment
	} else if err != repository.ErrNotFound {
		return nil, err
	}

	if err := s.ledger.Transfer(ctx, depositor, ledger.PoolAccount(pool.ID), pool.Denomination); err != nil {
		s.reject("deposit", "transfer_failed")
		return nil, err
	}

	leafIndex, newRoot, err := st.tree.RootAfter(commitment)
	if err != nil {
		s.refund(ctx, depositor, pool)
		return nil, err
	}
	newRootHex := utils.NormalizeHex(newRoot.Hex())

	newTotal, err := utils.CheckedAdd(pool.TotalDeposited, pool.Denomination)
	if err != nil {
		s.refund(ctx, depositor, pool)
		return nil, err
	}

	now := time.Now().UTC()
	app := &repository.DepositApplication{
		Commitment: &models.CommitmentRecord{
			PoolID:     pool.ID,
			Commitment: commitmentKey,
			LeafIndex:  leafIndex,
			Root:       newRootHex,
		},
		RootRecord: &models.RootRecord{
			PoolID:    pool.ID,
			Root:      newRootHex,
			LeafCount: leafIndex + 1,
		},
		Event: &models.DepositEvent{
			ID:         uuid.New().String(),
			PoolID:     pool.ID,
			Commitment: commitmentKey,
			LeafIndex:  leafIndex,
			Root:       newRootHex,
			Timestamp:  now,
		},
		NewRoot:           newRootHex,
		NewLeafCount:      leafIndex + 1,
		NewTotalDeposited: newTotal,
		RootWindow:        s.rootWindow,
	}

	if err := s.pools.ApplyDeposit(ctx, pool.ID, app); err != nil {
		s.refund(ctx, depositor, pool)
		if err == repository.ErrDuplicateCommitment {
			s.reject("deposit", "duplicate_commitment")
		}
		return nil, err
	}

	// The store committed; mutate the in-memory view to match.
	if _, _, err := st.tree.Insert(commitment); err != nil {
		return nil, fmt.Errorf("accumulator desync after commit: %w", err)
	}
	st.ring.Push(newRoot)

	metrics.DepositsTotal.WithLabelValues(pool.ID).Inc()
	metrics.PoolLeafCount.WithLabelValues(pool.ID).Set(float64(leafIndex + 1))

	notice := events.DepositNotice{
		PoolID:     pool.ID,
		Commitment: commitmentKey,
		LeafIndex:  leafIndex,
		Root:       newRootHex,
		Timestamp:  now,
	}
	for _, p := range s.publishers {
		p.PublishDeposit(notice)
	}

	log.WithFields(log.Fields{
		"pool":       pool.ID,
		"leaf_index": leafIndex,
		"root":       newRootHex,
	}).Info("Deposit accepted")

	return &DepositResult{LeafIndex: leafIndex, Root: newRootHex}, nil
}

// refund returns escrowed funds after a post-transfer failure. Best effort;
// a failed refund is logged for operator reconciliation.
func (s *PoolService) refund(ctx context.Context, depositor string, pool *models.Pool) {
	if err := s.ledger.Transfer(ctx, ledger.PoolAccount(pool.ID), depositor, pool.Denomination); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"pool":      pool.ID,
			"depositor": depositor,
		}).Error("Failed to refund deposit after aborted flow")
	}
}

// WithdrawParams is a withdrawal request: the proof plus the public
// statement it was generated against.
type WithdrawParams struct {
	PoolID        string
	Proof         []byte
	Root          string
	NullifierHash string
	Recipient     string
	FeeRecipient  string
}

// WithdrawResult reports the completed payout split.
type WithdrawResult struct {
	AmountPaid uint64 `json:"amount_paid"`
	Fee        uint64 `json:"fee"`
}

// Withdraw verifies the proof against a root in the acceptance window,
// consumes the nullifier and releases the denomination minus fee to the
// recipient. The nullifier is marked spent before any funds move; a
// transfer failure after that point leaves a stuck-payout record and
// returns ErrPayoutStuck rather than reopening the note.
func (s *PoolService) Withdraw(ctx context.Context, params WithdrawParams) (*WithdrawResult, error) {
	root, err := utils.ParseHash(params.Root)
	if err != nil {
		s.reject("withdraw", "bad_root")
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	nullifierHash, err := utils.ParseHash(params.NullifierHash)
	if err != nil {
		s.reject("withdraw", "bad_nullifier")
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	recipient, err := utils.ParseAddress(params.Recipient)
	if err != nil {
		s.reject("withdraw", "bad_recipient")
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	feeRecipient, err := utils.ParseAddress(params.FeeRecipient)
	if err != nil {
		s.reject("withdraw", "bad_fee_recipient")
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	pool, err := s.GetPool(ctx, params.PoolID)
	if err != nil {
		return nil, err
	}

	st, err := s.poolState(ctx, pool)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	// Re-read under the lock: a concurrent commit on this pool may have
	// advanced the counters (or the gate) since the snapshot above.
	pool, err = s.GetPool(ctx, params.PoolID)
	if err != nil {
		return nil, err
	}

	if !pool.Enabled {
		s.reject("withdraw", "pool_inactive")
		return nil, ErrPoolInactive
	}

	nullifierKey := utils.NormalizeHex(nullifierHash.Hex())
	spent, err := s.nullifiers.IsSpent(ctx, pool.ID, nullifierKey)
	if err != nil {
		return nil, err
	}
	if spent {
		s.reject("withdraw", "already_spent")
		return nil, repository.ErrAlreadySpent
	}

	if !st.ring.Contains(root) {
		s.reject("withdraw", "unknown_root")
		return nil, ErrInvalidRoot
	}

	if utils.NormalizeHex(feeRecipient.Hex()) != pool.FeeRecipient {
		s.reject("withdraw", "fee_recipient_mismatch")
		return nil, ErrFeeRecipientMismatch
	}

	fee, payout, err := utils.ComputeFee(pool.Denomination, pool.FeeBps)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ok := s.verifier.VerifyProof(params.Proof, zk.PublicInputs{
		Root:          root,
		NullifierHash: nullifierHash,
		Recipient:     recipient,
		Fee:           fee,
	})
	metrics.ProofVerificationDuration.Observe(time.Since(start).Seconds())
	if !ok {
		s.reject("withdraw", "invalid_proof")
		return nil, ErrInvalidProof
	}

	now := time.Now().UTC()
	recipientKey := utils.NormalizeHex(recipient.Hex())

	// Point of no return: once this insert lands the note is spent, whether
	// or not the transfers below succeed.
	if err := s.nullifiers.MarkSpent(ctx, &models.NullifierRecord{
		PoolID:        pool.ID,
		NullifierHash: nullifierKey,
		Recipient:     recipientKey,
		Amount:        payout,
		SpentAt:       now,
	}); err != nil {
		if err == repository.ErrAlreadySpent {
			s.reject("withdraw", "already_spent")
		}
		return nil, err
	}

	if err := s.ledger.Transfer(ctx, ledger.PoolAccount(pool.ID), recipientKey, payout); err != nil {
		s.recordStuckPayout(ctx, pool.ID, nullifierKey, recipientKey, payout, models.StuckPayoutKindPayout, err)
		return nil, ErrPayoutStuck
	}

	// Counters and the event log record completed withdrawals only; a stuck
	// payout lives in its own table until an operator resolves it.
	newTotal, err := utils.CheckedAdd(pool.TotalWithdrawn, pool.Denomination)
	if err != nil {
		return nil, err
	}
	if err := s.pools.ApplyWithdraw(ctx, pool.ID, newTotal, &models.WithdrawEvent{
		ID:            uuid.New().String(),
		PoolID:        pool.ID,
		NullifierHash: nullifierKey,
		Recipient:     recipientKey,
		Amount:        payout,
		Fee:           fee,
		Timestamp:     now,
	}); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"pool":      pool.ID,
			"nullifier": nullifierKey,
		}).Error("Failed to persist withdrawal counters after funds release")
		return nil, err
	}

	if fee > 0 {
		if err := s.ledger.Transfer(ctx, ledger.PoolAccount(pool.ID), pool.FeeRecipient, fee); err != nil {
			// The recipient was paid; only the fee leg needs remediation.
			s.recordStuckPayout(ctx, pool.ID, nullifierKey, pool.FeeRecipient, fee, models.StuckPayoutKindFee, err)
		}
	}

	metrics.WithdrawalsTotal.WithLabelValues(pool.ID).Inc()

	notice := events.WithdrawNotice{
		PoolID:        pool.ID,
		NullifierHash: nullifierKey,
		Recipient:     recipientKey,
		Amount:        payout,
		Fee:           fee,
		Timestamp:     now,
	}
	for _, p := range s.publishers {
		p.PublishWithdraw(notice)
	}

	log.WithFields(log.Fields{
		"pool":      pool.ID,
		"nullifier": nullifierKey,
		"amount":    payout,
		"fee":       fee,
	}).Info("Withdrawal completed")

	return &WithdrawResult{AmountPaid: payout, Fee: fee}, nil
}

func (s *PoolService) recordStuckPayout(ctx context.Context, poolID, nullifierHash, recipient string, amount uint64, kind models.StuckPayoutKind, cause error) {
	metrics.StuckPayoutsTotal.WithLabelValues(poolID, string(kind)).Inc()
	log.WithError(cause).WithFields(log.Fields{
		"pool":      poolID,
		"nullifier": nullifierHash,
		"recipient": recipient,
		"amount":    amount,
		"kind":      kind,
	}).Error("Funds release failed after nullifier consumption")

	if err := s.stuck.Create(ctx, &models.StuckPayout{
		ID:            uuid.New().String(),
		PoolID:        poolID,
		NullifierHash: nullifierHash,
		Recipient:     recipient,
		Amount:        amount,
		Kind:          kind,
		Reason:        cause.Error(),
	}); err != nil {
		log.WithError(err).Error("Failed to persist stuck payout record")
	}
}

// ListStuckPayouts returns unresolved stuck payouts, optionally filtered
// by pool.
func (s *PoolService) ListStuckPayouts(ctx context.Context, poolID string) ([]models.StuckPayout, error) {
	return s.stuck.ListUnresolved(ctx, poolID)
}

// RetryStuckPayout re-attempts the failed transfer of a stuck payout and
// resolves the record on success. The nullifier stays consumed throughout.
func (s *PoolService) RetryStuckPayout(ctx context.Context, id string) error {
	payout, err := s.stuck.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if payout.Resolved {
		return ErrStuckPayoutResolved
	}
	if err := s.ledger.Transfer(ctx, ledger.PoolAccount(payout.PoolID), payout.Recipient, payout.Amount); err != nil {
		return fmt.Errorf("retry transfer failed: %w", err)
	}
	if err := s.stuck.MarkResolved(ctx, id); err != nil {
		return err
	}
	log.WithFields(log.Fields{"stuck_payout": id, "pool": payout.PoolID}).Info("Stuck payout resolved")
	return nil
}

// poolState returns the in-memory state of a pool, rebuilding it from the
// persisted commitment log and root window on first access.
func (s *PoolService) poolState(ctx context.Context, pool *models.Pool) (*poolState, error) {
	s.mu.Lock()
	st, ok := s.state[pool.ID]
	if !ok {
		st = &poolState{}
		s.state[pool.ID] = st
	}
	s.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.loaded {
		return st, nil
	}

	tree, err := merkle.NewTree(int(pool.TreeDepth), s.hasher)
	if err != nil {
		return nil, err
	}

	records, err := s.commitments.ListByPool(ctx, pool.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load commitment log: %w", err)
	}
	leaves := make([]common.Hash, len(records))
	for i, rec := range records {
		leaf, err := utils.ParseHash(rec.Commitment)
		if err != nil {
			return nil, fmt.Errorf("corrupt commitment record %d: %w", rec.ID, err)
		}
		leaves[i] = leaf
	}
	if err := tree.Rebuild(leaves); err != nil {
		return nil, err
	}

	rebuiltRoot := utils.NormalizeHex(tree.Root().Hex())
	if pool.Root != "" && rebuiltRoot != pool.Root {
		return nil, fmt.Errorf("rebuilt root %s does not match stored root %s for pool %s", rebuiltRoot, pool.Root, pool.ID)
	}

	ring := merkle.NewRootHistory(s.rootWindow)
	rootRecords, err := s.roots.RecentRoots(ctx, pool.ID, s.rootWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load root window: %w", err)
	}
	for _, rec := range rootRecords {
		r, err := utils.ParseHash(rec.Root)
		if err != nil {
			return nil, fmt.Errorf("corrupt root record %d: %w", rec.ID, err)
		}
		ring.Push(r)
	}
	if ring.Len() == 0 {
		ring.Push(tree.Root())
	}

	st.tree = tree
	st.ring = ring
	st.loaded = true

	metrics.PoolLeafCount.WithLabelValues(pool.ID).Set(float64(tree.LeafCount()))
	return st, nil
}

func (s *PoolService) reject(op, reason string) {
	metrics.RejectionsTotal.WithLabelValues(op, reason).Inc()
}
