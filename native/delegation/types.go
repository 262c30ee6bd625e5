package delegation

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"

	"stakegov/native/conviction"
)

// Delegation lends a delegator's voting power to a delegate. A delegator has
// at most one active delegation.
type Delegation struct {
	Delegator string           `json:"delegator"`
	Delegate  string           `json:"delegate"`
	Amount    sdkmath.Int      `json:"amount"`
	Level     conviction.Level `json:"conviction"`
	LockID    string           `json:"lock_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	TxID      string           `json:"tx_id"`
}

// UnlockAt returns when the conviction lock backing the delegation expires.
// Level 0 delegations are never locked.
func (d *Delegation) UnlockAt() time.Time {
	if d == nil {
		return time.Time{}
	}
	duration, err := conviction.LockDuration(d.Level)
	if err != nil {
		return d.CreatedAt
	}
	return d.CreatedAt.Add(duration)
}

// Power returns the conviction-weighted power the delegation carries.
func (d *Delegation) Power() (sdkmath.LegacyDec, error) {
	return conviction.Power(d.Amount, d.Level)
}

// VotingPower breaks down an account's effective voting power.
type VotingPower struct {
	Account       string            `json:"account"`
	Balance       sdkmath.Int       `json:"balance"`
	DelegatedAway sdkmath.Int       `json:"delegated_away"`
	Level         conviction.Level  `json:"conviction"`
	Own           sdkmath.LegacyDec `json:"own"`
	Delegated     sdkmath.LegacyDec `json:"delegated"`
	Total         sdkmath.LegacyDec `json:"total"`
}

// State persists delegations.
type State interface {
	GetDelegation(ctx context.Context, delegator string) (*Delegation, bool, error)
	ListDelegationsTo(ctx context.Context, delegate string) ([]*Delegation, error)
	// ReplaceDelegation atomically drops any existing delegation of
	// d.Delegator, stores d and, when non-nil, its conviction lock.
	ReplaceDelegation(ctx context.Context, d *Delegation, lock *conviction.Lock) error
	DeleteDelegation(ctx context.Context, delegator string) error
}
