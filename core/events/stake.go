package events

import (
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
)

const (
	// TypeStakeBonded is emitted once a bond transaction has been accepted
	// and the resulting positions persisted.
	TypeStakeBonded = "stake.bonded"
	// TypeStakeUnbonded captures an unstake request and its unbonding entry.
	TypeStakeUnbonded = "stake.unbonded"
	// TypeStakeWithdrawn is emitted when matured unbonding entries are paid out.
	TypeStakeWithdrawn = "stake.withdrawn"
	// TypeStakeRewardsClaimed is emitted when accrued rewards move to the
	// spendable balance.
	TypeStakeRewardsClaimed = "stake.rewardsClaimed"
	// TypeStakeRewardRecorded captures a reward event ingested from the ledger.
	TypeStakeRewardRecorded = "stake.rewardRecorded"
)

// StakeBonded captures a bonded amount nominated to a validator.
type StakeBonded struct {
	Account      string
	PositionID   string
	Validator    string
	Amount       sdkmath.Int
	AutoCompound bool
	TxID         string
}

// EventType satisfies the Event interface.
func (StakeBonded) EventType() string { return TypeStakeBonded }

// Attributes satisfies the Event interface.
func (e StakeBonded) Attributes() map[string]string {
	attrs := map[string]string{
		"account":      e.Account,
		"position":     e.PositionID,
		"validator":    e.Validator,
		"amount":       formatAmount(e.Amount),
		"autoCompound": strconv.FormatBool(e.AutoCompound),
	}
	if tx := strings.TrimSpace(e.TxID); tx != "" {
		attrs["tx"] = tx
	}
	return attrs
}

// StakeUnbonded captures the amount moved into the unbonding queue.
type StakeUnbonded struct {
	Account    string
	PositionID string
	EntryID    string
	Amount     sdkmath.Int
	Remaining  sdkmath.Int
	UnlockAt   time.Time
	TxID       string
}

// EventType satisfies the Event interface.
func (StakeUnbonded) EventType() string { return TypeStakeUnbonded }

// Attributes satisfies the Event interface.
func (e StakeUnbonded) Attributes() map[string]string {
	attrs := map[string]string{
		"account":   e.Account,
		"position":  e.PositionID,
		"entry":     e.EntryID,
		"amount":    formatAmount(e.Amount),
		"remaining": formatAmount(e.Remaining),
	}
	if !e.UnlockAt.IsZero() {
		attrs["unlockAt"] = strconv.FormatInt(e.UnlockAt.Unix(), 10)
	}
	if tx := strings.TrimSpace(e.TxID); tx != "" {
		attrs["tx"] = tx
	}
	return attrs
}

// StakeWithdrawn captures the payout of matured unbonding entries.
type StakeWithdrawn struct {
	Account string
	Amount  sdkmath.Int
	Entries int
	TxID    string
}

// EventType satisfies the Event interface.
func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

// Attributes satisfies the Event interface.
func (e StakeWithdrawn) Attributes() map[string]string {
	return map[string]string{
		"account": e.Account,
		"amount":  formatAmount(e.Amount),
		"entries": strconv.Itoa(e.Entries),
		"tx":      e.TxID,
	}
}

// StakeRewardsClaimed captures the reward payout for an account.
type StakeRewardsClaimed struct {
	Account string
	Amount  sdkmath.Int
	TxID    string
}

// EventType satisfies the Event interface.
func (StakeRewardsClaimed) EventType() string { return TypeStakeRewardsClaimed }

// Attributes satisfies the Event interface.
func (e StakeRewardsClaimed) Attributes() map[string]string {
	return map[string]string{
		"account": e.Account,
		"amount":  formatAmount(e.Amount),
		"tx":      e.TxID,
	}
}

// StakeRewardRecorded captures a reward credited to a position.
type StakeRewardRecorded struct {
	Account    string
	PositionID string
	Amount     sdkmath.Int
	Compounded bool
}

// EventType satisfies the Event interface.
func (StakeRewardRecorded) EventType() string { return TypeStakeRewardRecorded }

// Attributes satisfies the Event interface.
func (e StakeRewardRecorded) Attributes() map[string]string {
	return map[string]string{
		"account":    e.Account,
		"position":   e.PositionID,
		"amount":     formatAmount(e.Amount),
		"compounded": strconv.FormatBool(e.Compounded),
	}
}

func formatAmount(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}
