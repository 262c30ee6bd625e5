package staking

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Status is the lifecycle state of a staking position.
type Status string

const (
	StatusActive       Status = "active"
	StatusUnbonding    Status = "unbonding"
	StatusWithdrawable Status = "withdrawable"
	StatusClosed       Status = "closed"
)

// Position is an account's bonded stake nominated to a single validator.
type Position struct {
	ID           string      `json:"id"`
	Account      string      `json:"account"`
	Validator    string      `json:"validator"`
	Principal    sdkmath.Int `json:"principal"`
	Accrued      sdkmath.Int `json:"accrued"`
	AutoCompound bool        `json:"auto_compound"`
	Status       Status      `json:"status"`
	TxID         string      `json:"tx_id"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// UnbondingEntry is an unstaked amount waiting out the unbonding period.
// Entries are never merged; each matures on its own schedule.
type UnbondingEntry struct {
	ID         string      `json:"id"`
	PositionID string      `json:"position_id"`
	Account    string      `json:"account"`
	Amount     sdkmath.Int `json:"amount"`
	UnlockAt   time.Time   `json:"unlock_at"`
	TxID       string      `json:"tx_id"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Matured reports whether the entry can be withdrawn at now.
func (e *UnbondingEntry) Matured(now time.Time) bool {
	return !now.Before(e.UnlockAt)
}

// Validator is a block producer stake can be nominated to. DelegatedStake and
// Nominators are derived from active positions and never stored.
type Validator struct {
	Address        string      `json:"address"`
	Name           string      `json:"name"`
	CommissionBps  uint32      `json:"commission_bps"`
	APY            float64     `json:"apy"`
	Active         bool        `json:"active"`
	DelegatedStake sdkmath.Int `json:"delegated_stake"`
	Nominators     int         `json:"nominators"`
}

// ValidatorStake aggregates active positions nominated to a validator.
type ValidatorStake struct {
	Amount     sdkmath.Int
	Nominators int
}

// RewardEvent is a reward the ledger credited to a position.
type RewardEvent struct {
	ID         string      `json:"id"`
	Account    string      `json:"account"`
	PositionID string      `json:"position_id"`
	Amount     sdkmath.Int `json:"amount"`
	Compounded bool        `json:"compounded"`
	TxID       string      `json:"tx_id,omitempty"`
	At         time.Time   `json:"at"`
}

// State persists positions, unbonding entries and reward history. Every
// Apply* method must be atomic.
type State interface {
	GetPosition(ctx context.Context, id string) (*Position, bool, error)
	ListPositions(ctx context.Context, account string) ([]*Position, error)
	ListUnbonding(ctx context.Context, account string) ([]*UnbondingEntry, error)
	ListRewards(ctx context.Context, account string, since time.Time) ([]*RewardEvent, error)
	StakeByValidator(ctx context.Context) (map[string]ValidatorStake, error)

	SavePositions(ctx context.Context, positions []*Position) error
	ApplyUnbond(ctx context.Context, position *Position, entry *UnbondingEntry) error
	ApplyWithdraw(ctx context.Context, account string, entryIDs []string, positions []*Position) error
	ApplyReward(ctx context.Context, position *Position, reward *RewardEvent) error
}

// Directory lists the validators stake can be nominated to. It is refreshed
// independently and read-only to the engine.
type Directory interface {
	ListActiveValidators(ctx context.Context) ([]*Validator, error)
	// GetValidator returns a directory entry whether or not it is active.
	GetValidator(ctx context.Context, address string) (*Validator, bool, error)
}
