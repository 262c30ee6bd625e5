package governance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	stakeerrors "stakegov/core/errors"
	"stakegov/core/events"
	"stakegov/ledger/ledgertest"
	"stakegov/native/common"
	"stakegov/native/conviction"
	"stakegov/native/governance"
	"stakegov/storage/memstore"
)

type harness struct {
	engine   *governance.Engine
	locks    *conviction.Manager
	store    *memstore.Store
	ledger   *ledgertest.Fake
	recorder *events.Recorder
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    memstore.New(),
		ledger:   ledgertest.New(),
		recorder: &events.Recorder{},
		now:      time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	h.locks = conviction.NewManager(h.store, h.ledger)
	h.locks.SetNowFunc(func() time.Time { return h.now })
	h.engine = governance.NewEngine(h.store, h.locks, h.ledger, governance.DefaultPolicy())
	h.engine.SetEmitter(h.recorder)
	h.ledger.SetHeight(1000)
	h.ledger.SetBalance("alice", 1000)
	h.ledger.SetBalance("bob", 1000)
	return h
}

func (h *harness) propose(t *testing.T, end uint64) *governance.Proposal {
	t.Helper()
	p, err := h.engine.CreateProposal(context.Background(), governance.ProposalRequest{
		Title:    "Raise validator cap",
		Proposer: "council",
		EndBlock: end,
	})
	require.NoError(t, err)
	return p
}

func TestVoteUpsertDoesNotDoubleCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.propose(t, 2000)
	require.Equal(t, uint64(1000), p.StartBlock)

	_, err := h.engine.Vote(ctx, governance.VoteRequest{Account: "alice", ProposalID: p.ID, Choice: "yes", Amount: sdkmath.NewInt(100), Level: 2})
	require.NoError(t, err)
	_, err = h.engine.Vote(ctx, governance.VoteRequest{Account: "alice", ProposalID: p.ID, Choice: "no", Amount: sdkmath.NewInt(100), Level: 2})
	require.NoError(t, err)

	view, err := h.engine.Proposal(ctx, p.ID, "alice")
	require.NoError(t, err)
	require.True(t, view.Tally.Yes.IsZero())
	require.True(t, sdkmath.LegacyNewDec(200).Equal(view.Tally.No))
	require.True(t, view.Approval.IsZero())
	require.Equal(t, governance.VoteChoiceNo, view.UserVote.Choice)

	// Both ballots created their own lock.
	locks, err := h.locks.Locks(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, locks, 2)

	last := h.recorder.Events()[len(h.recorder.Events())-1]
	require.Equal(t, events.TypeVoteCast, last.EventType())
	require.Equal(t, "true", last.Attributes()["replaced"])
}

func TestVoteRejectedOutsideWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.propose(t, 1010)

	h.ledger.SetHeight(1010)
	_, err := h.engine.Vote(ctx, governance.VoteRequest{Account: "alice", ProposalID: p.ID, Choice: "yes", Amount: sdkmath.NewInt(1), Level: 1})
	require.ErrorIs(t, err, stakeerrors.ErrProposalClosed)

	_, err = h.engine.Vote(ctx, governance.VoteRequest{Account: "alice", ProposalID: 99, Choice: "yes", Amount: sdkmath.NewInt(1), Level: 1})
	require.ErrorIs(t, err, stakeerrors.ErrNotFound)

	_, err = h.engine.Vote(ctx, governance.VoteRequest{Account: "alice", ProposalID: p.ID, Choice: "maybe", Amount: sdkmath.NewInt(1), Level: 1})
	require.ErrorIs(t, err, stakeerrors.ErrInvalidArgument)
	require.Empty(t, h.ledger.Submitted())
}

func TestVoteRequiresUnlockedBalance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.propose(t, 2000)

	_, err := h.engine.Vote(ctx, governance.VoteRequest{Account: "alice", ProposalID: p.ID, Choice: "yes", Amount: sdkmath.NewInt(700), Level: 6})
	require.NoError(t, err)
	_, err = h.engine.Vote(ctx, governance.VoteRequest{Account: "alice", ProposalID: p.ID, Choice: "yes", Amount: sdkmath.NewInt(400), Level: 6})
	require.ErrorIs(t, err, stakeerrors.ErrInsufficientUnlockedBalance)

	view, err := h.engine.Proposal(ctx, p.ID, "")
	require.NoError(t, err)
	require.True(t, sdkmath.LegacyNewDec(4200).Equal(view.Tally.Yes))
}

func TestFinalizeOutcomes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	passing := h.propose(t, 1100)
	rejected := h.propose(t, 1100)
	quiet := h.propose(t, 1100)

	vote := func(account string, id uint64, choice string, amount int64) {
		_, err := h.engine.Vote(ctx, governance.VoteRequest{Account: account, ProposalID: id, Choice: choice, Amount: sdkmath.NewInt(amount), Level: 1})
		require.NoError(t, err)
	}
	vote("alice", passing.ID, "yes", 60)
	vote("bob", passing.ID, "no", 40)
	vote("alice", rejected.ID, "yes", 50)
	vote("bob", rejected.ID, "abstain", 50)
	vote("alice", quiet.ID, "yes", 10)

	_, err := h.engine.Finalize(ctx, passing.ID)
	require.ErrorIs(t, err, stakeerrors.ErrInvalidArgument)

	active, err := h.engine.ActiveProposals(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	require.Equal(t, "5m remaining", active[0].TimeRemaining)

	h.ledger.SetHeight(1100)
	for id, want := range map[uint64]governance.ProposalStatus{
		passing.ID:  governance.ProposalStatusPassed,
		rejected.ID: governance.ProposalStatusRejected,
		quiet.ID:    governance.ProposalStatusExpired,
	} {
		final, err := h.engine.Finalize(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, final.Status)
	}

	_, err = h.engine.Finalize(ctx, passing.ID)
	require.ErrorIs(t, err, stakeerrors.ErrProposalClosed)

	active, err = h.engine.ActiveProposals(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	view, err := h.engine.Proposal(ctx, quiet.ID, "")
	require.NoError(t, err)
	require.Equal(t, "Ended", view.TimeRemaining)
	require.Equal(t, governance.ProposalStatusExpired, view.Status)
}

func TestVoteLedgerFailureLeavesTallyUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.propose(t, 2000)
	h.ledger.FailNext(errors.New("mempool full"))

	_, err := h.engine.Vote(ctx, governance.VoteRequest{Account: "alice", ProposalID: p.ID, Choice: "yes", Amount: sdkmath.NewInt(10), Level: 1})
	require.ErrorIs(t, err, stakeerrors.ErrLedgerSubmissionFailed)

	view, err := h.engine.Proposal(ctx, p.ID, "alice")
	require.NoError(t, err)
	require.True(t, view.TotalVotes.IsZero())
	require.Nil(t, view.UserVote)
	locks, err := h.locks.Locks(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, locks)
}

func TestCreateProposalValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.engine.CreateProposal(ctx, governance.ProposalRequest{Title: " ", Proposer: "council"})
	require.ErrorIs(t, err, stakeerrors.ErrInvalidArgument)
	_, err = h.engine.CreateProposal(ctx, governance.ProposalRequest{Title: "x", Proposer: "council", StartBlock: 50, EndBlock: 50})
	require.ErrorIs(t, err, stakeerrors.ErrInvalidArgument)
	_, err = h.engine.CreateProposal(ctx, governance.ProposalRequest{Title: "x", Proposer: "council", Threshold: sdkmath.LegacyNewDec(101)})
	require.ErrorIs(t, err, stakeerrors.ErrInvalidArgument)

	h.engine.SetPauses(common.NewStaticPauses([]string{"governance"}))
	_, err = h.engine.CreateProposal(ctx, governance.ProposalRequest{Title: "x", Proposer: "council"})
	require.ErrorIs(t, err, common.ErrModulePaused)
}

func TestVoteHistoryJoinsProposalResult(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := h.propose(t, 1100)
	second := h.propose(t, 3000)

	_, err := h.engine.Vote(ctx, governance.VoteRequest{Account: "alice", ProposalID: first.ID, Choice: "yes", Amount: sdkmath.NewInt(100), Level: 1})
	require.NoError(t, err)
	h.now = h.now.Add(time.Hour)
	_, err = h.engine.Vote(ctx, governance.VoteRequest{Account: "alice", ProposalID: second.ID, Choice: "abstain", Amount: sdkmath.NewInt(10), Level: 0})
	require.NoError(t, err)
	_, err = h.engine.Vote(ctx, governance.VoteRequest{Account: "bob", ProposalID: first.ID, Choice: "no", Amount: sdkmath.NewInt(5), Level: 0})
	require.NoError(t, err)

	h.ledger.SetHeight(1100)
	_, err = h.engine.Finalize(ctx, first.ID)
	require.NoError(t, err)

	history, err := h.engine.VoteHistory(ctx, " alice ")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, second.ID, history[0].ProposalID)
	require.Equal(t, governance.ProposalStatusActive, history[0].Result)
	require.Equal(t, governance.VoteChoiceAbstain, history[0].Choice)
	require.Equal(t, first.ID, history[1].ProposalID)
	require.Equal(t, governance.ProposalStatusPassed, history[1].Result)
	require.Equal(t, "Raise validator cap", history[1].ProposalTitle)
	require.True(t, sdkmath.LegacyNewDec(100).Equal(history[1].Weight))

	voters, err := h.engine.Voters(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, voters)

	empty, err := h.engine.VoteHistory(ctx, "carol")
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = h.engine.VoteHistory(ctx, " ")
	require.ErrorIs(t, err, stakeerrors.ErrInvalidArgument)
}
