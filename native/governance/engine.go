package governance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"

	stakeerrors "stakegov/core/errors"
	"stakegov/core/events"
	"stakegov/ledger"
	"stakegov/native/common"
	"stakegov/native/conviction"
)

var errStateNotConfigured = errors.New("governance: engine not configured")

// Policy captures the defaults applied to new proposals and the block time
// used for time-remaining estimates.
type Policy struct {
	BlockTime          time.Duration
	VotingPeriodBlocks uint64
	DefaultQuorum      sdkmath.LegacyDec
	DefaultThreshold   sdkmath.LegacyDec
}

// DefaultPolicy returns a 3 second block time, a 7 day voting window, a
// quorum of 50 weighted votes and a 51% approval threshold.
func DefaultPolicy() Policy {
	return Policy{
		BlockTime:          3 * time.Second,
		VotingPeriodBlocks: 7 * 24 * 60 * 20,
		DefaultQuorum:      sdkmath.LegacyNewDec(50),
		DefaultThreshold:   sdkmath.LegacyNewDec(51),
	}
}

// Validate ensures the policy is usable.
func (p Policy) Validate() error {
	if p.BlockTime <= 0 {
		return fmt.Errorf("governance: block time must be positive")
	}
	if p.VotingPeriodBlocks == 0 {
		return fmt.Errorf("governance: voting period must be at least one block")
	}
	if p.DefaultQuorum.IsNil() || p.DefaultQuorum.IsNegative() {
		return fmt.Errorf("governance: quorum must not be negative")
	}
	if p.DefaultThreshold.IsNil() || p.DefaultThreshold.IsNegative() || p.DefaultThreshold.GT(hundred) {
		return fmt.Errorf("governance: threshold must be within [0, 100]")
	}
	return nil
}

// Engine orchestrates proposal admission, conviction voting and
// finalisation.
type Engine struct {
	state    State
	locks    *conviction.Manager
	ledger   ledger.Client
	policy   Policy
	reporter *common.Reporter
	pauses   common.PauseView
	emitter  events.Emitter
}

// NewEngine wires a governance engine. A zero policy falls back to
// DefaultPolicy.
func NewEngine(state State, locks *conviction.Manager, client ledger.Client, policy Policy) *Engine {
	if policy.Validate() != nil {
		policy = DefaultPolicy()
	}
	return &Engine{
		state:   state,
		locks:   locks,
		ledger:  client,
		policy:  policy,
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetReporter configures where ledger/state divergences are reported.
func (e *Engine) SetReporter(reporter *common.Reporter) { e.reporter = reporter }

// SetPauses wires the module pause view.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// Policy returns the active policy.
func (e *Engine) Policy() Policy { return e.policy }

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.locks == nil || e.ledger == nil {
		return errStateNotConfigured
	}
	return nil
}

// ProposalRequest describes a new proposal. Zero values take the policy
// defaults; StartBlock defaults to the current ledger height.
type ProposalRequest struct {
	Title       string
	Description string
	Proposer    string
	Quorum      sdkmath.LegacyDec
	Threshold   sdkmath.LegacyDec
	StartBlock  uint64
	EndBlock    uint64
}

// CreateProposal registers a proposal and opens it for voting.
func (e *Engine) CreateProposal(ctx context.Context, req ProposalRequest) (*Proposal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, common.ModuleGovernance); err != nil {
		return nil, err
	}
	proposer, err := common.NormalizeAccount(req.Proposer)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, stakeerrors.InvalidArgument("proposal title must not be empty")
	}
	quorum := req.Quorum
	if quorum.IsNil() {
		quorum = e.policy.DefaultQuorum
	}
	if quorum.IsNegative() {
		return nil, stakeerrors.InvalidArgument("quorum must not be negative")
	}
	threshold := req.Threshold
	if threshold.IsNil() {
		threshold = e.policy.DefaultThreshold
	}
	if threshold.IsNegative() || threshold.GT(hundred) {
		return nil, stakeerrors.InvalidArgument("threshold must be within [0, 100]")
	}
	start := req.StartBlock
	if start == 0 {
		height, err := e.ledger.BlockHeight(ctx)
		if err != nil {
			return nil, fmt.Errorf("governance: query block height: %w", err)
		}
		start = height
	}
	end := req.EndBlock
	if end == 0 {
		end = start + e.policy.VotingPeriodBlocks
	}
	if end <= start {
		return nil, stakeerrors.InvalidArgument("end block %d must be after start block %d", end, start)
	}
	proposal := &Proposal{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Proposer:    proposer,
		Tally:       NewTally(),
		Quorum:      quorum,
		Threshold:   threshold,
		StartBlock:  start,
		EndBlock:    end,
		Status:      ProposalStatusActive,
		CreatedAt:   e.locks.Now(),
	}
	id, err := e.state.InsertProposal(ctx, proposal)
	if err != nil {
		return nil, fmt.Errorf("governance: persist proposal: %w", err)
	}
	proposal.ID = id
	e.emitter.Emit(events.ProposalProposed{
		ProposalID: id,
		Proposer:   proposer,
		StartBlock: start,
		EndBlock:   end,
	})
	return proposal, nil
}

// VoteRequest describes a ballot.
type VoteRequest struct {
	Account    string
	ProposalID uint64
	Choice     string
	Amount     sdkmath.Int
	Level      conviction.Level
}

// Vote records a conviction-weighted ballot. A second ballot from the same
// account replaces the first in the tally; the earlier conviction lock keeps
// running to its own expiry.
func (e *Engine) Vote(ctx context.Context, req VoteRequest) (*Vote, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, common.ModuleGovernance); err != nil {
		return nil, err
	}
	voter, err := common.NormalizeAccount(req.Account)
	if err != nil {
		return nil, err
	}
	choice, err := ParseVoteChoice(req.Choice)
	if err != nil {
		return nil, err
	}
	if err := common.RequirePositive("amount", req.Amount); err != nil {
		return nil, err
	}
	weight, err := conviction.Power(req.Amount, req.Level)
	if err != nil {
		return nil, err
	}
	proposal, err := e.load(ctx, req.ProposalID)
	if err != nil {
		return nil, err
	}
	height, err := e.ledger.BlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("governance: query block height: %w", err)
	}
	if proposal.Status != ProposalStatusActive || height < proposal.StartBlock || height >= proposal.EndBlock {
		return nil, fmt.Errorf("governance: proposal %d at block %d: %w", proposal.ID, height, stakeerrors.ErrProposalClosed)
	}
	if _, err := e.locks.ReleaseExpired(ctx, voter); err != nil {
		return nil, err
	}
	lock, err := e.locks.Prepare(ctx, voter, req.Amount, req.Level, conviction.SourceVote, fmt.Sprintf("proposal:%d", proposal.ID))
	if err != nil {
		return nil, err
	}
	previous, _, err := e.state.GetVote(ctx, proposal.ID, voter)
	if err != nil {
		return nil, fmt.Errorf("governance: load vote: %w", err)
	}
	vote := &Vote{
		ProposalID: proposal.ID,
		Voter:      voter,
		Choice:     choice,
		Amount:     req.Amount,
		Level:      req.Level,
		Weight:     weight,
		CastAt:     e.locks.Now(),
	}
	if lock != nil {
		vote.LockID = lock.ID
	}
	tally, err := UpsertTally(proposal.Tally, previous, vote)
	if err != nil {
		return nil, err
	}

	txID, err := e.ledger.Submit(ctx, ledger.Tx{
		Kind:       ledger.TxKindVote,
		Account:    voter,
		Amount:     req.Amount,
		ProposalID: proposal.ID,
		Choice:     string(choice),
		Conviction: uint8(req.Level),
	})
	if err != nil {
		return nil, &stakeerrors.LedgerError{Op: "governance.vote", Cause: err}
	}
	vote.TxID = string(txID)
	if err := e.state.RecordVote(ctx, vote, lock, tally); err != nil {
		return nil, e.reporter.Diverged(ctx, "governance.vote", voter, string(txID),
			fmt.Sprintf("vote %s on proposal %d with weight %s", choice, proposal.ID, weight), err)
	}
	e.locks.Announce(lock)
	e.emitter.Emit(events.VoteCast{
		ProposalID: proposal.ID,
		Voter:      voter,
		Choice:     string(choice),
		Level:      uint8(req.Level),
		Weight:     weight,
		Replaced:   previous != nil,
		TxID:       string(txID),
	})
	return vote, nil
}

func (e *Engine) load(ctx context.Context, id uint64) (*Proposal, error) {
	if id == 0 {
		return nil, stakeerrors.InvalidArgument("proposal id must be positive")
	}
	proposal, ok, err := e.state.GetProposal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("governance: load proposal: %w", err)
	}
	if !ok || proposal == nil {
		return nil, fmt.Errorf("governance: proposal %d: %w", id, stakeerrors.ErrNotFound)
	}
	return proposal, nil
}

// ProposalView is a proposal annotated with its live aggregates.
type ProposalView struct {
	*Proposal
	Approval       sdkmath.LegacyDec `json:"approval"`
	TotalVotes     sdkmath.LegacyDec `json:"total_votes"`
	QuorumMet      bool              `json:"quorum_met"`
	CurrentBlock   uint64            `json:"current_block"`
	Remaining      time.Duration     `json:"remaining"`
	TimeRemaining  string            `json:"time_remaining"`
	ProjectedState ProposalStatus    `json:"projected_status"`
	UserVote       *Vote             `json:"user_vote,omitempty"`
}

func (e *Engine) view(ctx context.Context, proposal *Proposal, height uint64, viewer string) (*ProposalView, error) {
	remaining, label := TimeRemaining(proposal.EndBlock, height, e.policy.BlockTime)
	out := &ProposalView{
		Proposal:       proposal,
		Approval:       Approval(proposal.Tally),
		TotalVotes:     proposal.Tally.Total(),
		QuorumMet:      QuorumMet(proposal.Tally, proposal.Quorum),
		CurrentBlock:   height,
		Remaining:      remaining,
		TimeRemaining:  label,
		ProjectedState: proposal.Status,
	}
	if proposal.Status == ProposalStatusActive {
		out.ProjectedState = Outcome(proposal, height)
	}
	if viewer == "" {
		return out, nil
	}
	vote, ok, err := e.state.GetVote(ctx, proposal.ID, viewer)
	if err != nil {
		return nil, fmt.Errorf("governance: load vote: %w", err)
	}
	if ok {
		out.UserVote = vote
	}
	return out, nil
}

// Proposal returns the live view of a proposal. When viewer is non-empty the
// view includes that account's ballot.
func (e *Engine) Proposal(ctx context.Context, id uint64, viewer string) (*ProposalView, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(viewer) != "" {
		normalized, err := common.NormalizeAccount(viewer)
		if err != nil {
			return nil, err
		}
		viewer = normalized
	}
	proposal, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	height, err := e.ledger.BlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("governance: query block height: %w", err)
	}
	return e.view(ctx, proposal, height, viewer)
}

// ActiveProposals lists proposals still accepting votes ordered by end block.
func (e *Engine) ActiveProposals(ctx context.Context) ([]*ProposalView, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	proposals, err := e.state.ListProposals(ctx, ProposalStatusActive)
	if err != nil {
		return nil, fmt.Errorf("governance: list proposals: %w", err)
	}
	height, err := e.ledger.BlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("governance: query block height: %w", err)
	}
	sort.SliceStable(proposals, func(i, j int) bool {
		if proposals[i].EndBlock == proposals[j].EndBlock {
			return proposals[i].ID < proposals[j].ID
		}
		return proposals[i].EndBlock < proposals[j].EndBlock
	})
	out := make([]*ProposalView, 0, len(proposals))
	for _, proposal := range proposals {
		view, err := e.view(ctx, proposal, height, "")
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// VoteHistory lists the account's ballots, most recent first.
func (e *Engine) VoteHistory(ctx context.Context, account string) ([]*VoteHistoryEntry, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	voter, err := common.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	votes, err := e.state.ListVotesByVoter(ctx, voter)
	if err != nil {
		return nil, fmt.Errorf("governance: list votes: %w", err)
	}
	proposals := make(map[uint64]*Proposal, len(votes))
	out := make([]*VoteHistoryEntry, 0, len(votes))
	for _, vote := range votes {
		proposal, ok := proposals[vote.ProposalID]
		if !ok {
			proposal, err = e.load(ctx, vote.ProposalID)
			if err != nil {
				return nil, err
			}
			proposals[vote.ProposalID] = proposal
		}
		out = append(out, &VoteHistoryEntry{
			Vote:          *vote,
			ProposalTitle: proposal.Title,
			Result:        proposal.Status,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CastAt.Equal(out[j].CastAt) {
			return out[i].CastAt.After(out[j].CastAt)
		}
		return out[i].ProposalID > out[j].ProposalID
	})
	return out, nil
}

// Voters lists the accounts holding a ballot on the proposal.
func (e *Engine) Voters(ctx context.Context, id uint64) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	voters, err := e.state.ListVoters(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("governance: list voters: %w", err)
	}
	return voters, nil
}

// Finalize closes an ended proposal as passed, rejected or expired.
func (e *Engine) Finalize(ctx context.Context, id uint64) (*Proposal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, common.ModuleGovernance); err != nil {
		return nil, err
	}
	proposal, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if proposal.Status != ProposalStatusActive {
		return nil, fmt.Errorf("governance: proposal %d already %s: %w", id, proposal.Status, stakeerrors.ErrProposalClosed)
	}
	height, err := e.ledger.BlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("governance: query block height: %w", err)
	}
	if height < proposal.EndBlock {
		return nil, stakeerrors.InvalidArgument("proposal %d voting ends at block %d, current block %d", id, proposal.EndBlock, height)
	}
	status := Outcome(proposal, height)
	now := e.locks.Now()
	if err := e.state.UpdateProposalStatus(ctx, id, status, now); err != nil {
		return nil, fmt.Errorf("governance: persist outcome: %w", err)
	}
	finalized := proposal.Clone()
	finalized.Status = status
	finalized.FinalizedAt = now
	e.emitter.Emit(events.ProposalFinalized{
		ProposalID: id,
		Status:     string(status),
		Approval:   Approval(proposal.Tally),
		Turnout:    proposal.Tally.Total(),
	})
	return finalized, nil
}
