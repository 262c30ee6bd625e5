// Package memstore is an in-memory implementation of every engine state
// contract. It backs unit tests and the "memory" database driver.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"stakegov/native/conviction"
	"stakegov/native/delegation"
	"stakegov/native/governance"
	"stakegov/native/staking"
)

// Store keeps all engine state in maps guarded by a single mutex.
type Store struct {
	mu sync.RWMutex

	locks       map[string]*conviction.Lock
	delegations map[string]*delegation.Delegation
	positions   map[string]*staking.Position
	entries     map[string]*staking.UnbondingEntry
	rewards     []*staking.RewardEvent
	validators  map[string]*staking.Validator
	proposals   map[uint64]*governance.Proposal
	votes       map[string]*governance.Vote
	lastID      uint64

	failures []error
}

var (
	_ conviction.State  = (*Store)(nil)
	_ delegation.State  = (*Store)(nil)
	_ staking.State     = (*Store)(nil)
	_ staking.Directory = (*Store)(nil)
	_ governance.State  = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		locks:       make(map[string]*conviction.Lock),
		delegations: make(map[string]*delegation.Delegation),
		positions:   make(map[string]*staking.Position),
		entries:     make(map[string]*staking.UnbondingEntry),
		validators:  make(map[string]*staking.Validator),
		proposals:   make(map[uint64]*governance.Proposal),
		votes:       make(map[string]*governance.Vote),
	}
}

// FailNextWrite makes the next mutating call return err without applying
// any change.
func (s *Store) FailNextWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

// write must be called with s.mu held.
func (s *Store) write() error {
	if len(s.failures) == 0 {
		return nil
	}
	err := s.failures[0]
	s.failures = s.failures[1:]
	return err
}

// --- conviction locks ---

func (s *Store) PutLock(_ context.Context, lock *conviction.Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	s.putLockLocked(lock)
	return nil
}

func (s *Store) putLockLocked(lock *conviction.Lock) {
	clone := *lock
	s.locks[lock.ID] = &clone
}

func (s *Store) GetLock(_ context.Context, id string) (*conviction.Lock, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lock, ok := s.locks[id]
	if !ok {
		return nil, false, nil
	}
	clone := *lock
	return &clone, true, nil
}

func (s *Store) ListLocks(_ context.Context, account string) ([]*conviction.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*conviction.Lock, 0)
	for _, lock := range s.locks {
		if lock.Account == account {
			clone := *lock
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteLocks(_ context.Context, account string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	for _, id := range ids {
		if lock, ok := s.locks[id]; ok && lock.Account == account {
			delete(s.locks, id)
		}
	}
	return nil
}

// --- delegations ---

func (s *Store) GetDelegation(_ context.Context, delegator string) (*delegation.Delegation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.delegations[delegator]
	if !ok {
		return nil, false, nil
	}
	clone := *d
	return &clone, true, nil
}

func (s *Store) ListDelegationsTo(_ context.Context, delegate string) ([]*delegation.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*delegation.Delegation, 0)
	for _, d := range s.delegations {
		if d.Delegate == delegate {
			clone := *d
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Delegator < out[j].Delegator })
	return out, nil
}

func (s *Store) ReplaceDelegation(_ context.Context, d *delegation.Delegation, lock *conviction.Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	clone := *d
	s.delegations[d.Delegator] = &clone
	if lock != nil {
		s.putLockLocked(lock)
	}
	return nil
}

func (s *Store) DeleteDelegation(_ context.Context, delegator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	delete(s.delegations, delegator)
	return nil
}

// --- staking ---

func (s *Store) GetPosition(_ context.Context, id string) (*staking.Position, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (s *Store) ListPositions(_ context.Context, account string) ([]*staking.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*staking.Position, 0)
	for _, p := range s.positions {
		if p.Account == account {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ListUnbonding(_ context.Context, account string) ([]*staking.UnbondingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*staking.UnbondingEntry, 0)
	for _, entry := range s.entries {
		if entry.Account == account {
			clone := *entry
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnlockAt.Equal(out[j].UnlockAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UnlockAt.Before(out[j].UnlockAt)
	})
	return out, nil
}

func (s *Store) ListRewards(_ context.Context, account string, since time.Time) ([]*staking.RewardEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*staking.RewardEvent, 0)
	for _, reward := range s.rewards {
		if reward.Account == account && !reward.At.Before(since) {
			clone := *reward
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *Store) StakeByValidator(context.Context) (map[string]staking.ValidatorStake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nominators := make(map[string]map[string]struct{})
	amounts := make(map[string]sdkmath.Int)
	for _, p := range s.positions {
		if p.Status != staking.StatusActive {
			continue
		}
		current, ok := amounts[p.Validator]
		if !ok {
			current = sdkmath.ZeroInt()
			nominators[p.Validator] = make(map[string]struct{})
		}
		amounts[p.Validator] = current.Add(p.Principal)
		nominators[p.Validator][p.Account] = struct{}{}
	}
	out := make(map[string]staking.ValidatorStake, len(amounts))
	for validator, amount := range amounts {
		out[validator] = staking.ValidatorStake{Amount: amount, Nominators: len(nominators[validator])}
	}
	return out, nil
}

func (s *Store) SavePositions(_ context.Context, positions []*staking.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	for _, p := range positions {
		s.positions[p.ID] = p.Clone()
	}
	return nil
}

func (s *Store) ApplyUnbond(_ context.Context, position *staking.Position, entry *staking.UnbondingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	s.positions[position.ID] = position.Clone()
	clone := *entry
	s.entries[entry.ID] = &clone
	return nil
}

func (s *Store) ApplyWithdraw(_ context.Context, account string, entryIDs []string, positions []*staking.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	for _, id := range entryIDs {
		if entry, ok := s.entries[id]; ok && entry.Account == account {
			delete(s.entries, id)
		}
	}
	for _, p := range positions {
		s.positions[p.ID] = p.Clone()
	}
	return nil
}

func (s *Store) ApplyReward(_ context.Context, position *staking.Position, reward *staking.RewardEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	s.positions[position.ID] = position.Clone()
	clone := *reward
	s.rewards = append(s.rewards, &clone)
	return nil
}

// UpsertValidator adds or replaces a validator directory entry.
func (s *Store) UpsertValidator(_ context.Context, v *staking.Validator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	clone := *v
	s.validators[v.Address] = &clone
	return nil
}

func (s *Store) GetValidator(_ context.Context, address string) (*staking.Validator, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.validators[address]
	if !ok {
		return nil, false, nil
	}
	clone := *v
	return &clone, true, nil
}

func (s *Store) ListActiveValidators(context.Context) ([]*staking.Validator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*staking.Validator, 0, len(s.validators))
	for _, v := range s.validators {
		if v.Active {
			clone := *v
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// --- governance ---

func voteKey(proposalID uint64, voter string) string {
	return fmt.Sprintf("%d/%s", proposalID, voter)
}

func (s *Store) InsertProposal(_ context.Context, p *governance.Proposal) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return 0, err
	}
	s.lastID++
	clone := p.Clone()
	clone.ID = s.lastID
	s.proposals[clone.ID] = clone
	return clone.ID, nil
}

func (s *Store) GetProposal(_ context.Context, id uint64) (*governance.Proposal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (s *Store) ListProposals(_ context.Context, status governance.ProposalStatus) ([]*governance.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*governance.Proposal, 0)
	for _, p := range s.proposals {
		if status == "" || p.Status == status {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateProposalStatus(_ context.Context, id uint64, status governance.ProposalStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	p, ok := s.proposals[id]
	if !ok {
		return fmt.Errorf("memstore: proposal %d not found", id)
	}
	p.Status = status
	p.FinalizedAt = at
	return nil
}

func (s *Store) GetVote(_ context.Context, proposalID uint64, voter string) (*governance.Vote, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votes[voteKey(proposalID, voter)]
	if !ok {
		return nil, false, nil
	}
	clone := *v
	return &clone, true, nil
}

func (s *Store) ListVotesByVoter(_ context.Context, voter string) ([]*governance.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*governance.Vote
	for _, v := range s.votes {
		if v.Voter == voter {
			clone := *v
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProposalID < out[j].ProposalID })
	return out, nil
}

func (s *Store) ListVoters(_ context.Context, proposalID uint64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, v := range s.votes {
		if v.ProposalID == proposalID {
			out = append(out, v.Voter)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) RecordVote(_ context.Context, vote *governance.Vote, lock *conviction.Lock, tally governance.Tally) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	p, ok := s.proposals[vote.ProposalID]
	if !ok {
		return fmt.Errorf("memstore: proposal %d not found", vote.ProposalID)
	}
	clone := *vote
	s.votes[voteKey(vote.ProposalID, vote.Voter)] = &clone
	if lock != nil {
		s.putLockLocked(lock)
	}
	p.Tally = tally
	return nil
}
