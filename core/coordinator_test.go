package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	stakeerrors "stakegov/core/errors"
	"stakegov/ledger/ledgertest"
	"stakegov/native/conviction"
	"stakegov/native/delegation"
	"stakegov/native/governance"
	"stakegov/native/staking"
	"stakegov/storage/cache"
	"stakegov/storage/memstore"
)

type metricsStub struct {
	mu         sync.Mutex
	hits       map[string]int
	misses     map[string]int
	cacheErrs  map[string]int
	operations map[string]int
}

func newMetricsStub() *metricsStub {
	return &metricsStub{
		hits:       make(map[string]int),
		misses:     make(map[string]int),
		cacheErrs:  make(map[string]int),
		operations: make(map[string]int),
	}
}

func (m *metricsStub) RecordCacheHit(family string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[family]++
}

func (m *metricsStub) RecordCacheMiss(family string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses[family]++
}

func (m *metricsStub) RecordCacheError(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheErrs[op]++
}

func (m *metricsStub) ObserveOperation(op, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[op+"/"+outcome]++
}

type brokenCache struct{}

var errCacheDown = errors.New("connection refused")

func (brokenCache) Get(context.Context, string) ([]byte, error) { return nil, errCacheDown }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error { return errCacheDown }
func (brokenCache) Delete(context.Context, ...string) error { return errCacheDown }
func (brokenCache) DeletePattern(context.Context, string) error { return errCacheDown }

type harness struct {
	coord   *Coordinator
	engines Engines
	store   *memstore.Store
	ledger  *ledgertest.Fake
	metrics *metricsStub
	mu      sync.Mutex
	now     time.Time
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func newHarness(t *testing.T, store cache.Store) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		store:   memstore.New(),
		ledger:  ledgertest.New(),
		metrics: newMetricsStub(),
		now:     time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, h.store.UpsertValidator(ctx, &staking.Validator{Address: "val-a", Name: "Alpha", APY: 15, Active: true}))
	h.ledger.SetBalance("alice", 1000)
	h.ledger.SetBalance("bob", 1000)
	h.ledger.SetHeight(100)

	locks := conviction.NewManager(h.store, h.ledger)
	locks.SetNowFunc(h.clock)
	stake := staking.NewEngine(h.store, h.store, h.ledger, staking.DefaultConfig())
	stake.SetNowFunc(h.clock)
	h.engines = Engines{
		Staking:    stake,
		Delegation: delegation.NewEngine(h.store, locks, h.ledger),
		Governance: governance.NewEngine(h.store, locks, h.ledger, governance.DefaultPolicy()),
		Locks:      locks,
	}
	if mem, ok := store.(*cache.Memory); ok {
		mem.SetNowFunc(h.clock)
	}
	h.coord = NewCoordinator(h.engines, store, DefaultTTLs())
	h.coord.SetNowFunc(h.clock)
	h.coord.SetMetrics(h.metrics)
	return h
}

func newMemoryCache(t *testing.T) *cache.Memory {
	t.Helper()
	mem, err := cache.NewMemory(128)
	require.NoError(t, err)
	return mem
}

func TestCachedReadIsBoundedByTTL(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemoryCache(t))

	_, err := h.coord.Stake(ctx, staking.StakeRequest{Account: "alice", Amount: sdkmath.NewInt(100), Validator: "val-a"})
	require.NoError(t, err)
	summary, err := h.coord.StakingSummary(ctx, "alice")
	require.NoError(t, err)
	require.True(t, summary.TotalStaked.Equal(sdkmath.NewInt(100)))

	// A write that bypasses the coordinator leaves the cached value in place.
	_, err = h.engines.Staking.Stake(ctx, staking.StakeRequest{Account: "alice", Amount: sdkmath.NewInt(50), Validator: "val-a"})
	require.NoError(t, err)

	h.advance(59 * time.Second)
	summary, err = h.coord.StakingSummary(ctx, "alice")
	require.NoError(t, err)
	require.True(t, summary.TotalStaked.Equal(sdkmath.NewInt(100)))

	h.advance(2 * time.Second)
	summary, err = h.coord.StakingSummary(ctx, "alice")
	require.NoError(t, err)
	require.True(t, summary.TotalStaked.Equal(sdkmath.NewInt(150)))
	require.Equal(t, 1, h.metrics.hits[FamilyAccount])
	require.Equal(t, 2, h.metrics.misses[FamilyAccount])
}

func TestMutationInvalidatesAfterPersist(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemoryCache(t))

	res, err := h.coord.Stake(ctx, staking.StakeRequest{Account: "alice", Amount: sdkmath.NewInt(100), Validator: "val-a"})
	require.NoError(t, err)
	validators, err := h.coord.Validators(ctx, staking.SortByStake)
	require.NoError(t, err)
	require.True(t, validators[0].DelegatedStake.Equal(sdkmath.NewInt(100)))
	_, err = h.coord.StakingSummary(ctx, "alice")
	require.NoError(t, err)

	_, err = h.coord.Unstake(ctx, "alice", res.Positions[0].ID, sdkmath.NewInt(30))
	require.NoError(t, err)

	summary, err := h.coord.StakingSummary(ctx, "alice")
	require.NoError(t, err)
	require.True(t, summary.TotalStaked.Equal(sdkmath.NewInt(70)))
	require.True(t, summary.TotalUnbonding.Equal(sdkmath.NewInt(30)))

	validators, err = h.coord.Validators(ctx, staking.SortByStake)
	require.NoError(t, err)
	require.True(t, validators[0].DelegatedStake.Equal(sdkmath.NewInt(70)))
	require.Equal(t, 1, h.metrics.operations["unstake/ok"])
}

func TestReconciliationStillInvalidates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemoryCache(t))

	_, err := h.coord.Stake(ctx, staking.StakeRequest{Account: "alice", Amount: sdkmath.NewInt(100), Validator: "val-a"})
	require.NoError(t, err)
	_, err = h.coord.Validators(ctx, staking.SortByStake)
	require.NoError(t, err)

	h.store.FailNextWrite(errors.New("disk full"))
	_, err = h.coord.Stake(ctx, staking.StakeRequest{Account: "bob", Amount: sdkmath.NewInt(10), Validator: "val-a"})
	require.ErrorIs(t, err, stakeerrors.ErrReconciliationRequired)
	require.Equal(t, 1, h.metrics.operations["stake/reconcile"])

	_, err = h.coord.Validators(ctx, staking.SortByStake)
	require.NoError(t, err)
	require.Equal(t, 2, h.metrics.misses[FamilyValidators])
}

func TestCacheFailureDegradesToRecompute(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, brokenCache{})

	res, err := h.coord.Stake(ctx, staking.StakeRequest{Account: "alice", Amount: sdkmath.NewInt(100), Validator: "val-a"})
	require.NoError(t, err)
	require.Len(t, res.Positions, 1)

	summary, err := h.coord.StakingSummary(ctx, "alice")
	require.NoError(t, err)
	require.True(t, summary.TotalStaked.Equal(sdkmath.NewInt(100)))

	require.Positive(t, h.metrics.cacheErrs["get"])
	require.Positive(t, h.metrics.cacheErrs["set"])
	require.Positive(t, h.metrics.cacheErrs["delete_pattern"])
}

func TestConcurrentUnstakeIsSerialised(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemoryCache(t))

	res, err := h.coord.Stake(ctx, staking.StakeRequest{Account: "alice", Amount: sdkmath.NewInt(100), Validator: "val-a"})
	require.NoError(t, err)
	positionID := res.Positions[0].ID

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.coord.Unstake(ctx, "alice", positionID, sdkmath.NewInt(20))
			switch {
			case err == nil:
				succeeded.Add(1)
			case stakeerrors.IsBusinessRule(err):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(5), succeeded.Load())
	require.Equal(t, int32(5), rejected.Load())
	entries, err := h.store.ListUnbonding(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 5)
	require.Zero(t, h.coord.accounts.size())
}

func TestDelegationInvalidatesDelegatePower(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemoryCache(t))

	power, err := h.coord.DelegatedPower(ctx, "bob")
	require.NoError(t, err)
	require.True(t, power.IsZero())
	before, err := h.coord.VotingPower(ctx, "bob", 1)
	require.NoError(t, err)

	_, err = h.coord.Delegate(ctx, "alice", "bob", sdkmath.NewInt(200), 3)
	require.NoError(t, err)

	power, err = h.coord.DelegatedPower(ctx, "bob")
	require.NoError(t, err)
	require.True(t, power.Equal(sdkmath.LegacyNewDec(600)))
	after, err := h.coord.VotingPower(ctx, "bob", 1)
	require.NoError(t, err)
	require.True(t, after.Total.Sub(before.Total).Equal(sdkmath.LegacyNewDec(600)))

	locks, err := h.coord.Locks(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, locks, 1)
}

func TestVoteInvalidatesProposalViews(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemoryCache(t))

	p, err := h.coord.CreateProposal(ctx, governance.ProposalRequest{Title: "Cap", Proposer: "council", EndBlock: 500})
	require.NoError(t, err)
	active, err := h.coord.ActiveProposals(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	view, err := h.coord.Proposal(ctx, p.ID, "alice")
	require.NoError(t, err)
	require.Nil(t, view.UserVote)

	_, err = h.coord.Vote(ctx, governance.VoteRequest{Account: "alice", ProposalID: p.ID, Choice: "yes", Amount: sdkmath.NewInt(100), Level: 2})
	require.NoError(t, err)

	view, err = h.coord.Proposal(ctx, p.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, view.UserVote)
	require.True(t, view.Tally.Yes.Equal(sdkmath.LegacyNewDec(200)))

	anonymous, err := h.coord.Proposal(ctx, p.ID, "")
	require.NoError(t, err)
	require.Nil(t, anonymous.UserVote)

	active, err = h.coord.ActiveProposals(ctx)
	require.NoError(t, err)
	require.True(t, active[0].Tally.Yes.Equal(sdkmath.LegacyNewDec(200)))
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemoryCache(t))

	var loads atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		loads.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := fetch(ctx, h.coord, FamilyAccount, "account:alice:shared", time.Minute, load)
			if err != nil {
				t.Error(err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), loads.Load())
	for _, v := range results {
		require.Equal(t, 42, v)
	}
}

func TestInvalidAccountRejectedBeforeLocking(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.coord.WithdrawUnbonded(context.Background(), "  ")
	require.ErrorIs(t, err, stakeerrors.ErrInvalidArgument)
	require.Zero(t, h.coord.accounts.size())
}

func TestLoadOverlappingInvalidationIsNotCached(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemoryCache(t))
	const key = "account:alice:summary-view"

	started := make(chan struct{})
	release := make(chan struct{})
	stale := make(chan int, 1)
	go func() {
		v, err := fetch(ctx, h.coord, FamilyAccount, key, time.Minute, func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		if err != nil {
			t.Error(err)
		}
		stale <- v
	}()
	<-started

	var inv invalidation
	inv.account("alice")
	h.coord.invalidate(ctx, inv)

	// A caller arriving after the invalidation runs its own load.
	fresh, err := fetch(ctx, h.coord, FamilyAccount, key, time.Minute, func(context.Context) (int, error) { return 2, nil })
	require.NoError(t, err)
	require.Equal(t, 2, fresh)

	close(release)
	require.Equal(t, 1, <-stale)

	cached, err := fetch(ctx, h.coord, FamilyAccount, key, time.Minute, func(context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)
	require.Equal(t, 2, cached)
}

func TestScopeOf(t *testing.T) {
	for key, want := range map[string]string{
		"account:alice:summary": "account:alice:",
		"account:alice:power:3": "account:alice:",
		"proposal:7:bob":        "proposal:7:",
		"proposals:active":      "proposals:active",
		"validators:apy":        "validators:",
		"validators:detail:val": "validators:",
		"delegate:bob:power":    "delegate:bob:power",
	} {
		require.Equal(t, want, scopeOf(key), key)
	}
}

func TestFinalizeRefreshesVoteHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemoryCache(t))

	p, err := h.coord.CreateProposal(ctx, governance.ProposalRequest{Title: "Cap", Proposer: "council", EndBlock: 150})
	require.NoError(t, err)
	_, err = h.coord.Vote(ctx, governance.VoteRequest{Account: "alice", ProposalID: p.ID, Choice: "yes", Amount: sdkmath.NewInt(100), Level: 2})
	require.NoError(t, err)

	history, err := h.coord.VoteHistory(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, governance.ProposalStatusActive, history[0].Result)

	h.ledger.SetHeight(150)
	_, err = h.coord.Finalize(ctx, p.ID)
	require.NoError(t, err)

	history, err = h.coord.VoteHistory(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, governance.ProposalStatusPassed, history[0].Result)
	require.Equal(t, 2, h.metrics.misses[FamilyAccount])
}

func TestValidatorDetailIsCachedPerAddress(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newMemoryCache(t))

	v, err := h.coord.Validator(ctx, "val-a")
	require.NoError(t, err)
	require.True(t, v.DelegatedStake.IsZero())

	_, err = h.coord.Stake(ctx, staking.StakeRequest{Account: "alice", Amount: sdkmath.NewInt(40), Validator: "val-a"})
	require.NoError(t, err)

	v, err = h.coord.Validator(ctx, "val-a")
	require.NoError(t, err)
	require.Equal(t, "40", v.DelegatedStake.String())

	_, err = h.coord.Validator(ctx, "val-missing")
	require.ErrorIs(t, err, stakeerrors.ErrNotFound)
}
