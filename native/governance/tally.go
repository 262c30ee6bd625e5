package governance

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	stakeerrors "stakegov/core/errors"
)

// Tally holds the conviction-weighted vote totals of a proposal.
type Tally struct {
	Yes     sdkmath.LegacyDec `json:"yes"`
	No      sdkmath.LegacyDec `json:"no"`
	Abstain sdkmath.LegacyDec `json:"abstain"`
}

var hundred = sdkmath.LegacyNewDec(100)

// NewTally returns an empty tally.
func NewTally() Tally {
	return Tally{
		Yes:     sdkmath.LegacyZeroDec(),
		No:      sdkmath.LegacyZeroDec(),
		Abstain: sdkmath.LegacyZeroDec(),
	}
}

func zeroIfNil(v sdkmath.LegacyDec) sdkmath.LegacyDec {
	if v.IsNil() {
		return sdkmath.LegacyZeroDec()
	}
	return v
}

func (t Tally) normalized() Tally {
	return Tally{Yes: zeroIfNil(t.Yes), No: zeroIfNil(t.No), Abstain: zeroIfNil(t.Abstain)}
}

// Total returns yes + no + abstain.
func (t Tally) Total() sdkmath.LegacyDec {
	n := t.normalized()
	return n.Yes.Add(n.No).Add(n.Abstain)
}

// Approval returns the yes share of all votes as a percentage in [0, 100].
// An empty tally has zero approval.
func Approval(t Tally) sdkmath.LegacyDec {
	total := t.Total()
	if !total.IsPositive() {
		return sdkmath.LegacyZeroDec()
	}
	approval := zeroIfNil(t.Yes).Mul(hundred).Quo(total)
	if approval.IsNegative() {
		return sdkmath.LegacyZeroDec()
	}
	if approval.GT(hundred) {
		return hundred
	}
	return approval
}

// QuorumMet reports whether the total weighted votes reach quorum.
func QuorumMet(t Tally, quorum sdkmath.LegacyDec) bool {
	return t.Total().GTE(zeroIfNil(quorum))
}

// Passed reports whether the proposal has ended with quorum and approval at
// or above its threshold.
func Passed(p *Proposal, currentBlock uint64) bool {
	if p == nil || currentBlock < p.EndBlock {
		return false
	}
	return QuorumMet(p.Tally, p.Quorum) && Approval(p.Tally).GTE(zeroIfNil(p.Threshold))
}

// Outcome returns the terminal status of an ended proposal.
func Outcome(p *Proposal, currentBlock uint64) ProposalStatus {
	switch {
	case p == nil || currentBlock < p.EndBlock:
		return ProposalStatusActive
	case Passed(p, currentBlock):
		return ProposalStatusPassed
	case !QuorumMet(p.Tally, p.Quorum):
		return ProposalStatusExpired
	default:
		return ProposalStatusRejected
	}
}

// TimeRemaining estimates how long voting stays open from the block
// distance and the average block time. The duration is floored at zero and
// the label reads "Ended" once voting closed.
func TimeRemaining(endBlock, currentBlock uint64, blockTime time.Duration) (time.Duration, string) {
	if currentBlock >= endBlock || blockTime <= 0 {
		return 0, "Ended"
	}
	remaining := time.Duration(endBlock-currentBlock) * blockTime
	days := int(remaining / (24 * time.Hour))
	hours := int((remaining % (24 * time.Hour)) / time.Hour)
	minutes := int((remaining % time.Hour) / time.Minute)
	switch {
	case days > 0:
		return remaining, fmt.Sprintf("%dd %dh remaining", days, hours)
	case hours > 0:
		return remaining, fmt.Sprintf("%dh %dm remaining", hours, minutes)
	default:
		return remaining, fmt.Sprintf("%dm remaining", minutes)
	}
}

func bucket(t *Tally, choice VoteChoice) (*sdkmath.LegacyDec, error) {
	switch choice {
	case VoteChoiceYes:
		return &t.Yes, nil
	case VoteChoiceNo:
		return &t.No, nil
	case VoteChoiceAbstain:
		return &t.Abstain, nil
	default:
		return nil, stakeerrors.InvalidArgument("unsupported vote choice %q", choice)
	}
}

// UpsertTally removes the previous ballot's weight, if any, and adds the
// next ballot's weight. A single account is therefore never counted twice.
func UpsertTally(t Tally, previous *Vote, next *Vote) (Tally, error) {
	out := t.normalized()
	if previous != nil {
		slot, err := bucket(&out, previous.Choice)
		if err != nil {
			return Tally{}, err
		}
		updated := slot.Sub(zeroIfNil(previous.Weight))
		if updated.IsNegative() {
			updated = sdkmath.LegacyZeroDec()
		}
		*slot = updated
	}
	if next != nil {
		weight := zeroIfNil(next.Weight)
		if weight.IsNegative() {
			return Tally{}, stakeerrors.InvalidArgument("vote weight must not be negative")
		}
		slot, err := bucket(&out, next.Choice)
		if err != nil {
			return Tally{}, err
		}
		*slot = slot.Add(weight)
	}
	return out, nil
}
