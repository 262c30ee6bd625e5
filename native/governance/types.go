package governance

import (
	"context"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"

	stakeerrors "stakegov/core/errors"
	"stakegov/native/conviction"
)

// ProposalStatus enumerates the lifecycle phases of a proposal.
type ProposalStatus string

const (
	// ProposalStatusActive identifies proposals accepting votes.
	ProposalStatusActive ProposalStatus = "active"
	// ProposalStatusPassed marks proposals that met quorum and threshold.
	ProposalStatusPassed ProposalStatus = "passed"
	// ProposalStatusRejected marks proposals that reached quorum but not the
	// approval threshold.
	ProposalStatusRejected ProposalStatus = "rejected"
	// ProposalStatusExpired marks proposals whose voting window closed
	// without reaching quorum.
	ProposalStatusExpired ProposalStatus = "expired"
)

// Proposal captures a governance proposal and its conviction-weighted tally.
type Proposal struct {
	ID          uint64            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Proposer    string            `json:"proposer"`
	Tally       Tally             `json:"tally"`
	Quorum      sdkmath.LegacyDec `json:"quorum"`
	Threshold   sdkmath.LegacyDec `json:"threshold"`
	StartBlock  uint64            `json:"start_block"`
	EndBlock    uint64            `json:"end_block"`
	Status      ProposalStatus    `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	FinalizedAt time.Time         `json:"finalized_at,omitempty"`
}

// Clone returns a copy of the proposal.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// VoteChoice enumerates the supported ballot selections.
type VoteChoice string

const (
	// VoteChoiceYes signals support for the proposal.
	VoteChoiceYes VoteChoice = "yes"
	// VoteChoiceNo signals opposition to the proposal.
	VoteChoiceNo VoteChoice = "no"
	// VoteChoiceAbstain records participation without expressing support or
	// opposition. Abstentions count towards quorum and dilute approval.
	VoteChoiceAbstain VoteChoice = "abstain"
)

// Valid reports whether the vote choice represents a supported selection.
func (c VoteChoice) Valid() bool {
	switch c {
	case VoteChoiceYes, VoteChoiceNo, VoteChoiceAbstain:
		return true
	default:
		return false
	}
}

// ParseVoteChoice normalises a raw ballot selection.
func ParseVoteChoice(raw string) (VoteChoice, error) {
	choice := VoteChoice(strings.ToLower(strings.TrimSpace(raw)))
	if !choice.Valid() {
		return "", stakeerrors.InvalidArgument("unsupported vote choice %q", raw)
	}
	return choice, nil
}

// Vote is an account's ballot on a proposal. A later ballot from the same
// account replaces the earlier one.
type Vote struct {
	ProposalID uint64            `json:"proposal_id"`
	Voter      string            `json:"voter"`
	Choice     VoteChoice        `json:"choice"`
	Amount     sdkmath.Int       `json:"amount"`
	Level      conviction.Level  `json:"conviction"`
	Weight     sdkmath.LegacyDec `json:"weight"`
	LockID     string            `json:"lock_id,omitempty"`
	TxID       string            `json:"tx_id"`
	CastAt     time.Time         `json:"cast_at"`
}

// VoteHistoryEntry is one of an account's ballots with the state of the
// proposal it was cast on. Result stays active until the proposal closes.
type VoteHistoryEntry struct {
	Vote
	ProposalTitle string         `json:"proposal_title"`
	Result        ProposalStatus `json:"result"`
}

// State persists proposals, ballots and tallies.
type State interface {
	// InsertProposal stores a new proposal and returns its assigned id.
	InsertProposal(ctx context.Context, p *Proposal) (uint64, error)
	GetProposal(ctx context.Context, id uint64) (*Proposal, bool, error)
	ListProposals(ctx context.Context, status ProposalStatus) ([]*Proposal, error)
	UpdateProposalStatus(ctx context.Context, id uint64, status ProposalStatus, at time.Time) error
	GetVote(ctx context.Context, proposalID uint64, voter string) (*Vote, bool, error)
	ListVotesByVoter(ctx context.Context, voter string) ([]*Vote, error)
	// ListVoters returns every account holding a ballot on the proposal.
	ListVoters(ctx context.Context, proposalID uint64) ([]string, error)
	// RecordVote atomically upserts the ballot, stores its conviction lock
	// when non-nil and replaces the proposal tally.
	RecordVote(ctx context.Context, vote *Vote, lock *conviction.Lock, tally Tally) error
}
