package governance

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func dec(v int64) sdkmath.LegacyDec { return sdkmath.LegacyNewDec(v) }

func TestApprovalGuardsEmptyTally(t *testing.T) {
	require.True(t, Approval(NewTally()).IsZero())
	require.True(t, Approval(Tally{}).IsZero())

	tally := Tally{Yes: dec(30), No: dec(10), Abstain: dec(10)}
	require.True(t, dec(60).Equal(Approval(tally)))
	require.True(t, QuorumMet(tally, dec(50)))
	require.False(t, QuorumMet(tally, dec(51)))
}

func TestPassedRequiresEndQuorumAndThreshold(t *testing.T) {
	p := &Proposal{
		Tally:     Tally{Yes: dec(60), No: dec(40), Abstain: sdkmath.LegacyZeroDec()},
		Quorum:    dec(50),
		Threshold: dec(51),
		EndBlock:  100,
	}
	require.False(t, Passed(p, 99))
	require.Equal(t, ProposalStatusActive, Outcome(p, 99))
	require.True(t, Passed(p, 100))
	require.Equal(t, ProposalStatusPassed, Outcome(p, 100))

	p.Tally = Tally{Yes: dec(50), No: dec(50), Abstain: sdkmath.LegacyZeroDec()}
	require.False(t, Passed(p, 100))
	require.Equal(t, ProposalStatusRejected, Outcome(p, 100))

	p.Tally = Tally{Yes: dec(40), No: sdkmath.LegacyZeroDec(), Abstain: sdkmath.LegacyZeroDec()}
	require.Equal(t, ProposalStatusExpired, Outcome(p, 100))
}

func TestTimeRemainingLabels(t *testing.T) {
	block := 3 * time.Second
	cases := []struct {
		end, current uint64
		label        string
	}{
		{100, 100, "Ended"},
		{100, 150, "Ended"},
		{100 + 20*60*24*3 + 20*60*5, 100, "3d 5h remaining"},
		{100 + 20*60*5 + 20*3, 100, "5h 3m remaining"},
		{100 + 20*3, 100, "3m remaining"},
		{101, 100, "0m remaining"},
	}
	for _, tc := range cases {
		remaining, label := TimeRemaining(tc.end, tc.current, block)
		require.Equal(t, tc.label, label)
		require.GreaterOrEqual(t, remaining, time.Duration(0))
	}
	remaining, _ := TimeRemaining(10, 50, block)
	require.Zero(t, remaining)
}

func TestUpsertTallyReplacesPreviousVote(t *testing.T) {
	first := &Vote{Choice: VoteChoiceYes, Weight: dec(200)}
	tally, err := UpsertTally(NewTally(), nil, first)
	require.NoError(t, err)
	require.True(t, dec(200).Equal(tally.Yes))

	second := &Vote{Choice: VoteChoiceNo, Weight: dec(200)}
	tally, err = UpsertTally(tally, first, second)
	require.NoError(t, err)
	require.True(t, tally.Yes.IsZero())
	require.True(t, dec(200).Equal(tally.No))

	_, err = UpsertTally(tally, nil, &Vote{Choice: "maybe", Weight: dec(1)})
	require.Error(t, err)
}

func TestApprovalAlwaysWithinBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tally := Tally{
			Yes:     dec(rapid.Int64Range(0, 1<<40).Draw(t, "yes")),
			No:      dec(rapid.Int64Range(0, 1<<40).Draw(t, "no")),
			Abstain: dec(rapid.Int64Range(0, 1<<40).Draw(t, "abstain")),
		}
		approval := Approval(tally)
		if approval.IsNegative() || approval.GT(dec(100)) {
			t.Fatalf("approval %s outside [0, 100]", approval)
		}
		if tally.Total().IsZero() && !approval.IsZero() {
			t.Fatalf("empty tally produced approval %s", approval)
		}
	})
}

func TestRepeatedVotesCountOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		choices := []VoteChoice{VoteChoiceYes, VoteChoiceNo, VoteChoiceAbstain}
		base := Tally{
			Yes:     dec(rapid.Int64Range(0, 1_000_000).Draw(t, "baseYes")),
			No:      dec(rapid.Int64Range(0, 1_000_000).Draw(t, "baseNo")),
			Abstain: dec(rapid.Int64Range(0, 1_000_000).Draw(t, "baseAbstain")),
		}
		tally := base
		var previous *Vote
		rounds := rapid.IntRange(1, 8).Draw(t, "rounds")
		for i := 0; i < rounds; i++ {
			next := &Vote{
				Choice: rapid.SampledFrom(choices).Draw(t, "choice"),
				Weight: dec(rapid.Int64Range(0, 1_000_000).Draw(t, "weight")),
			}
			updated, err := UpsertTally(tally, previous, next)
			if err != nil {
				t.Fatalf("upsert: %v", err)
			}
			tally, previous = updated, next
		}
		want := base.Total().Add(previous.Weight)
		if !tally.Total().Equal(want) {
			t.Fatalf("total %s, want %s", tally.Total(), want)
		}
	})
}
