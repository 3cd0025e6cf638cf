package services

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"testing"

	"shadowpool/internal/events"
	"shadowpool/internal/ledger"
	"shadowpool/internal/models"
	"shadowpool/internal/repository"
	"shadowpool/internal/zk"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAuthority    = "0x1111111111111111111111111111111111111111"
	testFeeRecipient = "0x2222222222222222222222222222222222222222"
	testRecipient    = "0x3333333333333333333333333333333333333333"
	testDepositor    = "alice"
)

// testHasher is a cheap compression function; the engine is hash-agnostic.
type testHasher struct{}

func (testHasher) HashPair(a, b common.Hash) common.Hash {
	h := sha256.New()
	h.Write(a[:])
	h.Write(b[:])
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}

func commitmentHex(i byte) string {
	var h common.Hash
	h[0] = 0x0c
	h[31] = i
	return h.Hex()
}

// memState is the shared backing store of the fake repositories.
type memState struct {
	mu sync.Mutex

	pools       map[string]*models.Pool
	commitments map[string][]models.CommitmentRecord
	nullifiers  map[string]map[string]models.NullifierRecord
	roots       map[string][]models.RootRecord
	stuck       map[string]*models.StuckPayout

	depositEvents  []models.DepositEvent
	withdrawEvents []models.WithdrawEvent

	nextID uint64
}

func newMemState() *memState {
	return &memState{
		pools:       make(map[string]*models.Pool),
		commitments: make(map[string][]models.CommitmentRecord),
		nullifiers:  make(map[string]map[string]models.NullifierRecord),
		roots:       make(map[string][]models.RootRecord),
		stuck:       make(map[string]*models.StuckPayout),
	}
}

func (s *memState) id() uint64 {
	s.nextID++
	return s.nextID
}

type fakePoolRepo struct{ s *memState }

func (r *fakePoolRepo) Create(_ context.Context, pool *models.Pool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *pool
	r.s.pools[pool.ID] = &cp
	return nil
}

func (r *fakePoolRepo) GetByID(_ context.Context, id string) (*models.Pool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pool, ok := r.s.pools[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *pool
	return &cp, nil
}

func (r *fakePoolRepo) List(_ context.Context) ([]models.Pool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.Pool, 0, len(r.s.pools))
	for _, p := range r.s.pools {
		out = append(out, *p)
	}
	return out, nil
}

func (r *fakePoolRepo) SetEnabled(_ context.Context, id string, enabled bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pool, ok := r.s.pools[id]
	if !ok {
		return repository.ErrNotFound
	}
	pool.Enabled = enabled
	return nil
}

func (r *fakePoolRepo) ApplyDeposit(_ context.Context, poolID string, app *repository.DepositApplication) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, rec := range r.s.commitments[poolID] {
		if rec.Commitment == app.Commitment.Commitment {
			return repository.ErrDuplicateCommitment
		}
	}

	pool, ok := r.s.pools[poolID]
	if !ok {
		return repository.ErrNotFound
	}
	if pool.LeafCount != app.NewLeafCount-1 {
		return fmt.Errorf("pool %s leaf count diverged from accumulator", poolID)
	}

	rec := *app.Commitment
	rec.ID = r.s.id()
	r.s.commitments[poolID] = append(r.s.commitments[poolID], rec)

	pool.Root = app.NewRoot
	pool.LeafCount = app.NewLeafCount
	pool.TotalDeposited = app.NewTotalDeposited

	root := *app.RootRecord
	root.ID = r.s.id()
	r.s.roots[poolID] = append(r.s.roots[poolID], root)
	if window := app.RootWindow; window >= 1 && len(r.s.roots[poolID]) > window {
		r.s.roots[poolID] = r.s.roots[poolID][len(r.s.roots[poolID])-window:]
	}

	r.s.depositEvents = append(r.s.depositEvents, *app.Event)
	return nil
}

func (r *fakePoolRepo) ApplyWithdraw(_ context.Context, poolID string, newTotalWithdrawn uint64, event *models.WithdrawEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pool, ok := r.s.pools[poolID]
	if !ok {
		return repository.ErrNotFound
	}
	pool.TotalWithdrawn = newTotalWithdrawn
	r.s.withdrawEvents = append(r.s.withdrawEvents, *event)
	return nil
}

type fakeCommitmentRepo struct{ s *memState }

func (r *fakeCommitmentRepo) ListByPool(_ context.Context, poolID string) ([]models.CommitmentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.CommitmentRecord, len(r.s.commitments[poolID]))
	copy(out, r.s.commitments[poolID])
	return out, nil
}

func (r *fakeCommitmentRepo) GetByCommitment(_ context.Context, poolID, commitment string) (*models.CommitmentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rec := range r.s.commitments[poolID] {
		if rec.Commitment == commitment {
			cp := rec
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeCommitmentRepo) CountByPool(_ context.Context, poolID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.commitments[poolID])), nil
}

type fakeNullifierRepo struct{ s *memState }

func (r *fakeNullifierRepo) IsSpent(_ context.Context, poolID, hash string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.nullifiers[poolID][hash]
	return ok, nil
}

func (r *fakeNullifierRepo) MarkSpent(_ context.Context, record *models.NullifierRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.nullifiers[record.PoolID] == nil {
		r.s.nullifiers[record.PoolID] = make(map[string]models.NullifierRecord)
	}
	if _, ok := r.s.nullifiers[record.PoolID][record.NullifierHash]; ok {
		return repository.ErrAlreadySpent
	}
	rec := *record
	rec.ID = r.s.id()
	r.s.nullifiers[record.PoolID][record.NullifierHash] = rec
	return nil
}

func (r *fakeNullifierRepo) GetByHash(_ context.Context, poolID, hash string) (*models.NullifierRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.nullifiers[poolID][hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := rec
	return &cp, nil
}

func (r *fakeNullifierRepo) CountByPool(_ context.Context, poolID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.nullifiers[poolID])), nil
}

type fakeRootRepo struct{ s *memState }

func (r *fakeRootRepo) RecentRoots(_ context.Context, poolID string, limit int) ([]models.RootRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	roots := r.s.roots[poolID]
	if len(roots) > limit {
		roots = roots[len(roots)-limit:]
	}
	out := make([]models.RootRecord, len(roots))
	copy(out, roots)
	return out, nil
}

func (r *fakeRootRepo) Create(_ context.Context, record *models.RootRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec := *record
	rec.ID = r.s.id()
	r.s.roots[record.PoolID] = append(r.s.roots[record.PoolID], rec)
	return nil
}

type fakeStuckRepo struct{ s *memState }

func (r *fakeStuckRepo) Create(_ context.Context, payout *models.StuckPayout) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *payout
	r.s.stuck[payout.ID] = &cp
	return nil
}

func (r *fakeStuckRepo) GetByID(_ context.Context, id string) (*models.StuckPayout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	payout, ok := r.s.stuck[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *payout
	return &cp, nil
}

func (r *fakeStuckRepo) ListUnresolved(_ context.Context, poolID string) ([]models.StuckPayout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.StuckPayout
	for _, payout := range r.s.stuck {
		if payout.Resolved {
			continue
		}
		if poolID != "" && payout.PoolID != poolID {
			continue
		}
		out = append(out, *payout)
	}
	return out, nil
}

func (r *fakeStuckRepo) MarkResolved(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	payout, ok := r.s.stuck[id]
	if !ok || payout.Resolved {
		return repository.ErrNotFound
	}
	payout.Resolved = true
	return nil
}

// fakeLedger is an in-memory TransferLedger with failure injection.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]uint64
	failTo   map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[string]uint64),
		failTo:   make(map[string]bool),
	}
}

func (l *fakeLedger) Transfer(_ context.Context, from, to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failTo[to] {
		return errors.New("transfer rejected by test")
	}
	if l.balances[from] < amount {
		return ledger.ErrInsufficientFunds
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *fakeLedger) Balance(_ context.Context, account string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

func (l *fakeLedger) credit(account string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

func (l *fakeLedger) balance(account string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

type fakeVerifier struct {
	mu   sync.Mutex
	ok   bool
	last zk.PublicInputs
}

func (v *fakeVerifier) VerifyProof(_ []byte, inputs zk.PublicInputs) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = inputs
	return v.ok
}

type capturePublisher struct {
	mu        sync.Mutex
	deposits  []events.DepositNotice
	withdraws []events.WithdrawNotice
}

func (p *capturePublisher) PublishDeposit(notice events.DepositNotice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deposits = append(p.deposits, notice)
}

func (p *capturePublisher) PublishWithdraw(notice events.WithdrawNotice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.withdraws = append(p.withdraws, notice)
}

type testEnv struct {
	state     *memState
	ledger    *fakeLedger
	verifier  *fakeVerifier
	published *capturePublisher
	service   *PoolService
	pool      *models.Pool
}

func newTestEnv(t *testing.T, denomination uint64, feeBps uint16, depth, window int) *testEnv {
	t.Helper()

	state := newMemState()
	led := newFakeLedger()
	verifier := &fakeVerifier{ok: true}
	published := &capturePublisher{}

	svc := NewPoolService(
		&fakePoolRepo{state}, &fakeCommitmentRepo{state}, &fakeNullifierRepo{state},
		&fakeRootRepo{state}, &fakeStuckRepo{state},
		led, verifier, testHasher{},
		window, published,
	)

	pool, err := svc.InitPool(context.Background(), InitPoolParams{
		Authority:    testAuthority,
		Denomination: denomination,
		FeeBps:       feeBps,
		FeeRecipient: testFeeRecipient,
		TreeDepth:    depth,
	})
	require.NoError(t, err)

	return &testEnv{
		state:     state,
		ledger:    led,
		verifier:  verifier,
		published: published,
		service:   svc,
		pool:      pool,
	}
}

func (e *testEnv) deposit(t *testing.T, commitment string) *DepositResult {
	t.Helper()
	e.ledger.credit(testDepositor, e.pool.Denomination)
	result, err := e.service.Deposit(context.Background(), e.pool.ID, commitment, testDepositor)
	require.NoError(t, err)
	return result
}

func (e *testEnv) withdrawParams(root, nullifier string) WithdrawParams {
	return WithdrawParams{
		PoolID:        e.pool.ID,
		Proof:         []byte("proof"),
		Root:          root,
		NullifierHash: nullifier,
		Recipient:     testRecipient,
		FeeRecipient:  testFeeRecipient,
	}
}

func TestInitPoolValidation(t *testing.T) {
	state := newMemState()
	svc := NewPoolService(
		&fakePoolRepo{state}, &fakeCommitmentRepo{state}, &fakeNullifierRepo{state},
		&fakeRootRepo{state}, &fakeStuckRepo{state},
		newFakeLedger(), &fakeVerifier{ok: true}, testHasher{}, 4,
	)
	ctx := context.Background()

	_, err := svc.InitPool(ctx, InitPoolParams{
		Authority: testAuthority, Denomination: 0, FeeRecipient: testFeeRecipient, TreeDepth: 4,
	})
	assert.ErrorIs(t, err, ErrInvalidDenomination)

	_, err = svc.InitPool(ctx, InitPoolParams{
		Authority: testAuthority, Denomination: 100, FeeBps: 10001, FeeRecipient: testFeeRecipient, TreeDepth: 4,
	})
	assert.Error(t, err)

	_, err = svc.InitPool(ctx, InitPoolParams{
		Authority: testAuthority, Denomination: 100, FeeRecipient: testFeeRecipient, TreeDepth: 25,
	})
	assert.ErrorIs(t, err, ErrInvalidTreeDepth)

	_, err = svc.InitPool(ctx, InitPoolParams{
		Authority: "not-an-address", Denomination: 100, FeeRecipient: testFeeRecipient, TreeDepth: 4,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDepositFlow(t *testing.T) {
	env := newTestEnv(t, 1_000_000_000, 30, 4, 8)

	result := env.deposit(t, commitmentHex(1))
	assert.Equal(t, uint32(0), result.LeafIndex)
	assert.NotEmpty(t, result.Root)

	pool, err := env.service.GetPool(context.Background(), env.pool.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), pool.LeafCount)
	assert.Equal(t, uint64(1_000_000_000), pool.TotalDeposited)
	assert.Equal(t, result.Root, pool.Root)

	assert.Equal(t, uint64(0), env.ledger.balance(testDepositor))
	assert.Equal(t, uint64(1_000_000_000), env.ledger.balance(ledger.PoolAccount(env.pool.ID)))

	require.Len(t, env.published.deposits, 1)
	assert.Equal(t, commitmentHex(1), env.published.deposits[0].Commitment)

	second := env.deposit(t, commitmentHex(2))
	assert.Equal(t, uint32(1), second.LeafIndex)
	assert.NotEqual(t, result.Root, second.Root)
}

func TestDepositRejectsDuplicateCommitment(t *testing.T) {
	env := newTestEnv(t, 100, 0, 4, 8)
	env.deposit(t, commitmentHex(1))

	env.ledger.credit(testDepositor, 100)
	_, err := env.service.Deposit(context.Background(), env.pool.ID, commitmentHex(1), testDepositor)
	assert.ErrorIs(t, err, repository.ErrDuplicateCommitment)

	// The rejected deposit must not take funds or advance the tree.
	assert.Equal(t, uint64(100), env.ledger.balance(testDepositor))
	pool, err := env.service.GetPool(context.Background(), env.pool.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), pool.LeafCount)
	assert.Equal(t, uint64(100), pool.TotalDeposited)
}

func TestDepositRejectsWhenFull(t *testing.T) {
	env := newTestEnv(t, 100, 0, 2, 8) // capacity 4

	for i := byte(1); i <= 4; i++ {
		env.deposit(t, commitmentHex(i))
	}

	env.ledger.credit(testDepositor, 100)
	_, err := env.service.Deposit(context.Background(), env.pool.ID, commitmentHex(5), testDepositor)
	assert.ErrorIs(t, err, ErrPoolFull)
}

func TestDepositRejectsDisabledPool(t *testing.T) {
	env := newTestEnv(t, 100, 0, 4, 8)
	require.NoError(t, env.service.SetEnabled(context.Background(), env.pool.ID, false))

	env.ledger.credit(testDepositor, 100)
	_, err := env.service.Deposit(context.Background(), env.pool.ID, commitmentHex(1), testDepositor)
	assert.ErrorIs(t, err, ErrPoolInactive)

	require.NoError(t, env.service.SetEnabled(context.Background(), env.pool.ID, true))
	_, err = env.service.Deposit(context.Background(), env.pool.ID, commitmentHex(1), testDepositor)
	assert.NoError(t, err)
}

func TestDepositRejectsWithoutFunds(t *testing.T) {
	env := newTestEnv(t, 100, 0, 4, 8)

	_, err := env.service.Deposit(context.Background(), env.pool.ID, commitmentHex(1), testDepositor)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	pool, err := env.service.GetPool(context.Background(), env.pool.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), pool.LeafCount)
}

func TestWithdrawEndToEnd(t *testing.T) {
	env := newTestEnv(t, 500_000_000, 30, 4, 8)
	result := env.deposit(t, commitmentHex(1))

	nullifier := common.HexToHash("0x0a01").Hex()
	out, err := env.service.Withdraw(context.Background(), env.withdrawParams(result.Root, nullifier))
	require.NoError(t, err)
	assert.Equal(t, uint64(498_500_000), out.AmountPaid)
	assert.Equal(t, uint64(1_500_000), out.Fee)

	assert.Equal(t, uint64(498_500_000), env.ledger.balance(testRecipient))
	assert.Equal(t, uint64(1_500_000), env.ledger.balance(env.pool.FeeRecipient))
	assert.Equal(t, uint64(0), env.ledger.balance(ledger.PoolAccount(env.pool.ID)))

	// The verifier saw the engine-computed fee, not a caller-supplied one.
	assert.Equal(t, uint64(1_500_000), env.verifier.last.Fee)

	pool, err := env.service.GetPool(context.Background(), env.pool.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), pool.TotalWithdrawn)

	require.Len(t, env.published.withdraws, 1)
	assert.Equal(t, uint64(498_500_000), env.published.withdraws[0].Amount)

	// Replay of the same nullifier is refused.
	_, err = env.service.Withdraw(context.Background(), env.withdrawParams(result.Root, nullifier))
	assert.ErrorIs(t, err, repository.ErrAlreadySpent)
}

func TestWithdrawAcceptsStaleRootInWindow(t *testing.T) {
	env := newTestEnv(t, 500_000_000, 30, 4, 8)
	first := env.deposit(t, commitmentHex(1))
	second := env.deposit(t, commitmentHex(2))
	assert.Equal(t, uint32(0), first.LeafIndex)
	assert.Equal(t, uint32(1), second.LeafIndex)
	require.NotEqual(t, first.Root, second.Root)

	// A proof built against the older root is still valid.
	nullifier := common.HexToHash("0x0a01").Hex()
	out, err := env.service.Withdraw(context.Background(), env.withdrawParams(first.Root, nullifier))
	require.NoError(t, err)
	assert.Equal(t, uint64(498_500_000), out.AmountPaid)
	assert.Equal(t, uint64(1_500_000), out.Fee)

	_, err = env.service.Withdraw(context.Background(), env.withdrawParams(first.Root, nullifier))
	assert.ErrorIs(t, err, repository.ErrAlreadySpent)
}

func TestWithdrawRejectsRootOutsideWindow(t *testing.T) {
	env := newTestEnv(t, 100, 0, 4, 2)
	first := env.deposit(t, commitmentHex(1))
	env.deposit(t, commitmentHex(2))
	env.deposit(t, commitmentHex(3))

	// Window of 2 has evicted the root after the first deposit.
	_, err := env.service.Withdraw(context.Background(), env.withdrawParams(first.Root, common.HexToHash("0x0a01").Hex()))
	assert.ErrorIs(t, err, ErrInvalidRoot)

	// An arbitrary root is likewise refused.
	_, err = env.service.Withdraw(context.Background(), env.withdrawParams(common.HexToHash("0xffee").Hex(), common.HexToHash("0x0a02").Hex()))
	assert.ErrorIs(t, err, ErrInvalidRoot)
}

func TestWithdrawRejectsInvalidProof(t *testing.T) {
	env := newTestEnv(t, 100, 0, 4, 8)
	result := env.deposit(t, commitmentHex(1))

	env.verifier.ok = false
	nullifier := common.HexToHash("0x0a01").Hex()
	_, err := env.service.Withdraw(context.Background(), env.withdrawParams(result.Root, nullifier))
	assert.ErrorIs(t, err, ErrInvalidProof)

	// A failed proof must not consume the nullifier.
	env.verifier.ok = true
	_, err = env.service.Withdraw(context.Background(), env.withdrawParams(result.Root, nullifier))
	assert.NoError(t, err)
}

func TestWithdrawRejectsFeeRecipientMismatch(t *testing.T) {
	env := newTestEnv(t, 100, 30, 4, 8)
	result := env.deposit(t, commitmentHex(1))

	params := env.withdrawParams(result.Root, common.HexToHash("0x0a01").Hex())
	params.FeeRecipient = testRecipient
	_, err := env.service.Withdraw(context.Background(), params)
	assert.ErrorIs(t, err, ErrFeeRecipientMismatch)
}

func TestWithdrawStuckPayoutConsumesNullifier(t *testing.T) {
	env := newTestEnv(t, 500_000_000, 30, 4, 8)
	result := env.deposit(t, commitmentHex(1))

	env.ledger.failTo[testRecipient] = true
	nullifier := common.HexToHash("0x0a01").Hex()
	_, err := env.service.Withdraw(context.Background(), env.withdrawParams(result.Root, nullifier))
	assert.ErrorIs(t, err, ErrPayoutStuck)

	// Soundness over liveness: the nullifier stays consumed.
	_, err = env.service.Withdraw(context.Background(), env.withdrawParams(result.Root, nullifier))
	assert.ErrorIs(t, err, repository.ErrAlreadySpent)

	stuck, err := env.service.ListStuckPayouts(context.Background(), env.pool.ID)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, models.StuckPayoutKindPayout, stuck[0].Kind)
	assert.Equal(t, uint64(498_500_000), stuck[0].Amount)

	// A stuck payout is not a completed withdrawal: counters and the event
	// log stay untouched until the funds actually move.
	pool, err := env.service.GetPool(context.Background(), env.pool.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pool.TotalWithdrawn)
	env.state.mu.Lock()
	loggedWithdrawals := len(env.state.withdrawEvents)
	env.state.mu.Unlock()
	assert.Zero(t, loggedWithdrawals)

	// Remediation releases the funds and resolves the record.
	env.ledger.failTo[testRecipient] = false
	require.NoError(t, env.service.RetryStuckPayout(context.Background(), stuck[0].ID))
	assert.Equal(t, uint64(498_500_000), env.ledger.balance(testRecipient))

	assert.ErrorIs(t, env.service.RetryStuckPayout(context.Background(), stuck[0].ID), ErrStuckPayoutResolved)

	remaining, err := env.service.ListStuckPayouts(context.Background(), env.pool.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestDepositConcurrentKeepsCounterInvariant(t *testing.T) {
	env := newTestEnv(t, 100, 0, 4, 16)

	const depositors = 8
	env.ledger.credit(testDepositor, depositors*100)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < depositors; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.service.Deposit(context.Background(), env.pool.ID, commitmentHex(byte(i+1)), testDepositor)
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	// Every deposit must be reflected in the totals, not just the tree.
	pool, err := env.service.GetPool(context.Background(), env.pool.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(depositors), pool.LeafCount)
	assert.Equal(t, uint64(depositors)*pool.Denomination, pool.TotalDeposited)
	assert.Equal(t, pool.Denomination*uint64(pool.LeafCount), pool.TotalDeposited)
	assert.Equal(t, uint64(depositors*100), env.ledger.balance(ledger.PoolAccount(env.pool.ID)))
	assert.Equal(t, uint64(0), env.ledger.balance(testDepositor))
}

func TestWithdrawConcurrentDistinctNullifiersKeepsCounters(t *testing.T) {
	env := newTestEnv(t, 100, 0, 4, 8)
	env.deposit(t, commitmentHex(1))
	latest := env.deposit(t, commitmentHex(2))

	const withdrawals = 2
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < withdrawals; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			var nullifier common.Hash
			nullifier[0] = 0x0a
			nullifier[31] = byte(i + 1)
			_, err := env.service.Withdraw(context.Background(), env.withdrawParams(latest.Root, nullifier.Hex()))
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	pool, err := env.service.GetPool(context.Background(), env.pool.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(withdrawals)*pool.Denomination, pool.TotalWithdrawn)
	assert.Equal(t, uint64(withdrawals*100), env.ledger.balance(testRecipient))
	assert.Equal(t, uint64(0), env.ledger.balance(ledger.PoolAccount(env.pool.ID)))
}

func TestWithdrawConcurrentSameNullifierSingleWinner(t *testing.T) {
	env := newTestEnv(t, 100, 0, 4, 8)
	result := env.deposit(t, commitmentHex(1))
	nullifier := common.HexToHash("0x0a01").Hex()

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.Withdraw(context.Background(), env.withdrawParams(result.Root, nullifier))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, replayed := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, repository.ErrAlreadySpent):
			replayed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, replayed)
	assert.Equal(t, uint64(100), env.ledger.balance(testRecipient))
}

func TestStateRebuildAfterRestart(t *testing.T) {
	env := newTestEnv(t, 100, 0, 3, 4)
	env.deposit(t, commitmentHex(1))
	env.deposit(t, commitmentHex(2))
	third := env.deposit(t, commitmentHex(3))

	// A fresh engine over the same store must replay to the same state.
	restarted := NewPoolService(
		&fakePoolRepo{env.state}, &fakeCommitmentRepo{env.state}, &fakeNullifierRepo{env.state},
		&fakeRootRepo{env.state}, &fakeStuckRepo{env.state},
		env.ledger, env.verifier, testHasher{},
		4, env.published,
	)

	roots, err := restarted.RecentRoots(context.Background(), env.pool.ID)
	require.NoError(t, err)
	require.NotEmpty(t, roots)
	assert.Equal(t, third.Root, roots[len(roots)-1])

	// Withdrawal against a replayed window root succeeds.
	_, err = restarted.Withdraw(context.Background(), restartedParams(env, third.Root))
	assert.NoError(t, err)

	// The next deposit continues the leaf sequence.
	env.ledger.credit(testDepositor, 100)
	result, err := restarted.Deposit(context.Background(), env.pool.ID, commitmentHex(4), testDepositor)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), result.LeafIndex)
}

func restartedParams(env *testEnv, root string) WithdrawParams {
	return WithdrawParams{
		PoolID:        env.pool.ID,
		Proof:         []byte("proof"),
		Root:          root,
		NullifierHash: common.HexToHash("0x0b01").Hex(),
		Recipient:     testRecipient,
		FeeRecipient:  testFeeRecipient,
	}
}
