package staking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	stakeerrors "stakegov/core/errors"
	"stakegov/core/events"
	"stakegov/ledger"
	"stakegov/ledger/ledgertest"
	"stakegov/native/common"
	"stakegov/native/staking"
	"stakegov/storage/memstore"
)

type journalStub struct {
	records []common.Inconsistency
}

func (j *journalStub) Append(_ context.Context, rec common.Inconsistency) error {
	j.records = append(j.records, rec)
	return nil
}

type harness struct {
	engine   *staking.Engine
	store    *memstore.Store
	ledger   *ledgertest.Fake
	recorder *events.Recorder
	journal  *journalStub
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		store:    memstore.New(),
		ledger:   ledgertest.New(),
		recorder: &events.Recorder{},
		journal:  &journalStub{},
		now:      time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
	}
	for _, v := range []*staking.Validator{
		{Address: "val-a", Name: "Alpha", CommissionBps: 500, APY: 18.5, Active: true},
		{Address: "val-b", Name: "Beta", CommissionBps: 300, APY: 17.2, Active: true},
		{Address: "val-c", Name: "Gamma", CommissionBps: 700, APY: 19.1, Active: true},
		{Address: "val-d", Name: "Delta", CommissionBps: 100, APY: 16.5, Active: true},
		{Address: "val-e", Name: "Retired", CommissionBps: 0, APY: 25, Active: false},
	} {
		require.NoError(t, h.store.UpsertValidator(ctx, v))
	}
	h.engine = staking.NewEngine(h.store, h.store, h.ledger, staking.DefaultConfig())
	h.engine.SetNowFunc(func() time.Time { return h.now })
	h.engine.SetEmitter(h.recorder)
	h.engine.SetReporter(&common.Reporter{Journal: h.journal})
	return h
}

func (h *harness) stake(t *testing.T, amount int64, validator string) *staking.Position {
	t.Helper()
	res, err := h.engine.Stake(context.Background(), staking.StakeRequest{
		Account:   "alice",
		Amount:    sdkmath.NewInt(amount),
		Validator: validator,
	})
	require.NoError(t, err)
	require.Len(t, res.Positions, 1)
	return res.Positions[0]
}

func TestPartialUnstakeCreatesIndependentEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	position := h.stake(t, 100, "val-a")

	first, err := h.engine.Unstake(ctx, "alice", position.ID, sdkmath.NewInt(30))
	require.NoError(t, err)
	h.now = h.now.Add(24 * time.Hour)
	second, err := h.engine.Unstake(ctx, "alice", position.ID, sdkmath.NewInt(30))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	positions, err := h.engine.Positions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, "40", positions[0].Principal.String())
	require.Equal(t, staking.StatusActive, positions[0].Status)

	summary, err := h.engine.Summary(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summary.Unbonding, 2)
	for _, entry := range summary.Unbonding {
		require.Equal(t, "30", entry.Amount.String())
		require.False(t, entry.Ready)
	}

	_, err = h.engine.WithdrawUnbonded(ctx, "alice")
	require.ErrorIs(t, err, stakeerrors.ErrNothingToWithdraw)

	// Only the first entry has matured.
	h.now = first.UnlockAt
	res, err := h.engine.WithdrawUnbonded(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "30", res.Amount.String())
	require.Len(t, res.Entries, 1)
	require.Equal(t, first.ID, res.Entries[0].ID)
	require.Empty(t, res.Closed)

	h.now = second.UnlockAt
	res, err = h.engine.WithdrawUnbonded(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, second.ID, res.Entries[0].ID)

	_, err = h.engine.WithdrawUnbonded(ctx, "alice")
	require.ErrorIs(t, err, stakeerrors.ErrNothingToWithdraw)
}

func TestFullUnstakeLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	position := h.stake(t, 100, "val-b")

	_, err := h.engine.Unstake(ctx, "alice", position.ID, sdkmath.NewInt(101))
	require.ErrorIs(t, err, stakeerrors.ErrExceedsStakedAmount)

	entry, err := h.engine.Unstake(ctx, "alice", position.ID, sdkmath.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, h.now.Add(28*24*time.Hour), entry.UnlockAt)

	positions, err := h.engine.Positions(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, staking.StatusUnbonding, positions[0].Status)
	require.True(t, positions[0].Principal.IsZero())

	_, err = h.engine.Unstake(ctx, "alice", position.ID, sdkmath.NewInt(1))
	require.ErrorIs(t, err, stakeerrors.ErrPositionNotActive)

	h.now = entry.UnlockAt
	positions, err = h.engine.Positions(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, staking.StatusWithdrawable, positions[0].Status)

	res, err := h.engine.WithdrawUnbonded(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{position.ID}, res.Closed)

	positions, err = h.engine.Positions(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, positions)

	require.Equal(t, []string{
		events.TypeStakeBonded,
		events.TypeStakeUnbonded,
		events.TypeStakeWithdrawn,
	}, h.recorder.Types())
}

func TestAutoSelectSplitsAcrossTopValidators(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.engine.Stake(ctx, staking.StakeRequest{Account: "alice", Amount: sdkmath.NewInt(1000)})
	require.NoError(t, err)
	require.Len(t, res.Positions, 3)

	got := map[string]string{}
	for _, p := range res.Positions {
		got[p.Validator] = p.Principal.String()
	}
	require.Equal(t, map[string]string{"val-c": "334", "val-a": "333", "val-b": "333"}, got)

	submitted := h.ledger.Submitted()
	require.Len(t, submitted, 1)
	require.Equal(t, ledger.TxKindBond, submitted[0].Kind)
	require.Equal(t, []string{"val-c", "val-a", "val-b"}, submitted[0].Validators)

	validators, err := h.engine.Validators(ctx, staking.SortByStake)
	require.NoError(t, err)
	require.Len(t, validators, 4)
	require.Equal(t, "val-c", validators[0].Address)
	require.Equal(t, "334", validators[0].DelegatedStake.String())
	require.Equal(t, 1, validators[0].Nominators)
	require.Equal(t, "val-d", validators[3].Address)

	byCommission, err := h.engine.Validators(ctx, "commission")
	require.NoError(t, err)
	require.Equal(t, "val-d", byCommission[0].Address)

	_, err = h.engine.Validators(ctx, "name")
	require.ErrorIs(t, err, stakeerrors.ErrInvalidArgument)
}

func TestStakeTopsUpExistingPosition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := h.stake(t, 100, "val-a")
	second := h.stake(t, 50, "val-a")
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "150", second.Principal.String())

	_, err := h.engine.Stake(ctx, staking.StakeRequest{Account: "alice", Amount: sdkmath.NewInt(10), Validator: "val-e"})
	require.ErrorIs(t, err, stakeerrors.ErrInvalidArgument)
}

func TestLedgerFailureLeavesNoPosition(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.ledger.FailNext(errors.New("rejected: insufficient fee"))

	_, err := h.engine.Stake(ctx, staking.StakeRequest{Account: "alice", Amount: sdkmath.NewInt(100), Validator: "val-a"})
	require.ErrorIs(t, err, stakeerrors.ErrLedgerSubmissionFailed)
	require.Contains(t, err.Error(), "insufficient fee")

	positions, err := h.engine.Positions(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, positions)
	require.Empty(t, h.recorder.Events())
}

func TestPersistenceFailureIsReportedForReconciliation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	position := h.stake(t, 100, "val-a")
	h.store.FailNextWrite(errors.New("connection reset"))

	_, err := h.engine.Unstake(ctx, "alice", position.ID, sdkmath.NewInt(10))
	require.ErrorIs(t, err, stakeerrors.ErrReconciliationRequired)
	var recErr *stakeerrors.ReconciliationError
	require.ErrorAs(t, err, &recErr)
	require.Equal(t, "alice", recErr.Account)
	require.Equal(t, "tx-000002", recErr.TxID)
	require.Len(t, h.journal.records, 1)
	require.Equal(t, "staking.unstake", h.journal.records[0].Op)
}

func TestRewardsAccrueCompoundAndClaim(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	plain := h.stake(t, 1000, "val-a")
	res, err := h.engine.Stake(ctx, staking.StakeRequest{
		Account:      "alice",
		Amount:       sdkmath.NewInt(500),
		Validator:    "val-b",
		AutoCompound: true,
	})
	require.NoError(t, err)
	compounding := res.Positions[0]

	_, err = h.engine.ClaimRewards(ctx, "alice")
	require.ErrorIs(t, err, stakeerrors.ErrNothingToClaim)

	updated, err := h.engine.RecordReward(ctx, staking.RewardEvent{Account: "alice", PositionID: plain.ID, Amount: sdkmath.NewInt(7)})
	require.NoError(t, err)
	require.Equal(t, "7", updated.Accrued.String())
	require.Equal(t, "1000", updated.Principal.String())

	updated, err = h.engine.RecordReward(ctx, staking.RewardEvent{Account: "alice", PositionID: compounding.ID, Amount: sdkmath.NewInt(5)})
	require.NoError(t, err)
	require.Equal(t, "505", updated.Principal.String())
	require.True(t, updated.Accrued.IsZero())

	claim, err := h.engine.ClaimRewards(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "7", claim.Amount.String())

	positions, err := h.engine.Positions(ctx, "alice")
	require.NoError(t, err)
	for _, p := range positions {
		require.True(t, p.Accrued.IsZero())
		require.Equal(t, staking.StatusActive, p.Status)
	}

	summary, err := h.engine.Summary(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "1505", summary.TotalStaked.String())
	require.Len(t, summary.History, 1)
	require.Equal(t, "12", summary.History[0].Amount.String())
	require.GreaterOrEqual(t, summary.EffectiveAPY, 8.0)
	require.LessOrEqual(t, summary.EffectiveAPY, 20.0)
}

func TestUnknownPositionIsNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	position := h.stake(t, 100, "val-a")

	_, err := h.engine.Unstake(ctx, "mallory", position.ID, sdkmath.NewInt(1))
	require.ErrorIs(t, err, stakeerrors.ErrNotFound)
	_, err = h.engine.Unstake(ctx, "alice", "missing", sdkmath.NewInt(1))
	require.ErrorIs(t, err, stakeerrors.ErrNotFound)
}

func TestDrainedPositionKeepsUnclaimedRewards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	position := h.stake(t, 100, "val-a")

	_, err := h.engine.RecordReward(ctx, staking.RewardEvent{Account: "alice", PositionID: position.ID, Amount: sdkmath.NewInt(5)})
	require.NoError(t, err)
	entry, err := h.engine.Unstake(ctx, "alice", position.ID, sdkmath.NewInt(100))
	require.NoError(t, err)

	h.now = entry.UnlockAt
	res, err := h.engine.WithdrawUnbonded(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "100", res.Amount.String())
	require.Empty(t, res.Closed)

	summary, err := h.engine.Summary(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "5", summary.TotalAccrued.String())
	require.True(t, summary.TotalStaked.IsZero())
	require.Len(t, summary.Positions, 1)
	require.Equal(t, staking.StatusWithdrawable, summary.Positions[0].Status)

	claim, err := h.engine.ClaimRewards(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, summary.TotalAccrued.String(), claim.Amount.String())

	summary, err = h.engine.Summary(ctx, "alice")
	require.NoError(t, err)
	require.True(t, summary.TotalAccrued.IsZero())
	require.Empty(t, summary.Positions)

	_, err = h.engine.RecordReward(ctx, staking.RewardEvent{Account: "alice", PositionID: position.ID, Amount: sdkmath.NewInt(1)})
	require.ErrorIs(t, err, stakeerrors.ErrPositionNotActive)
}

func TestValidatorDetail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.stake(t, 120, "val-b")

	v, err := h.engine.Validator(ctx, "val-b")
	require.NoError(t, err)
	require.Equal(t, "Beta", v.Name)
	require.Equal(t, "120", v.DelegatedStake.String())
	require.Equal(t, 1, v.Nominators)

	retired, err := h.engine.Validator(ctx, "val-e")
	require.NoError(t, err)
	require.False(t, retired.Active)
	require.True(t, retired.DelegatedStake.IsZero())

	_, err = h.engine.Validator(ctx, "val-x")
	require.ErrorIs(t, err, stakeerrors.ErrNotFound)
}

func TestCheckDriftAgainstLedger(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	position := h.stake(t, 100, "val-a")
	_, err := h.engine.Unstake(ctx, "alice", position.ID, sdkmath.NewInt(40))
	require.NoError(t, err)

	h.ledger.SetStaked("alice", 100)
	drift, err := h.engine.CheckDrift(ctx, "alice")
	require.NoError(t, err)
	require.True(t, drift.InSync)
	require.Equal(t, "100", drift.Local.String())

	h.ledger.SetStaked("alice", 90)
	drift, err = h.engine.CheckDrift(ctx, "alice")
	require.NoError(t, err)
	require.False(t, drift.InSync)
	require.Equal(t, "-10", drift.Delta.String())

	unknown, err := h.engine.CheckDrift(ctx, "nobody")
	require.NoError(t, err)
	require.True(t, unknown.InSync)
	require.True(t, unknown.Local.IsZero())
}
