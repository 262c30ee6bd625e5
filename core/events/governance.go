package events

import (
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
)

const (
	// TypeProposalProposed is emitted when a proposal is registered.
	TypeProposalProposed = "gov.proposed"
	// TypeVoteCast is emitted when a voter records or replaces a ballot.
	TypeVoteCast = "gov.vote"
	// TypeProposalFinalized is emitted when the proposal outcome is determined.
	TypeProposalFinalized = "gov.finalized"
	// TypeDelegated is emitted when voting power is delegated.
	TypeDelegated = "delegation.delegated"
	// TypeUndelegated is emitted when a delegation is removed.
	TypeUndelegated = "delegation.undelegated"
	// TypeConvictionLocked is emitted when a conviction lock is created.
	TypeConvictionLocked = "conviction.locked"
	// TypeConvictionReleased is emitted when expired locks are freed.
	TypeConvictionReleased = "conviction.released"
)

// ProposalProposed captures proposal registration.
type ProposalProposed struct {
	ProposalID uint64
	Proposer   string
	StartBlock uint64
	EndBlock   uint64
}

// EventType satisfies the Event interface.
func (ProposalProposed) EventType() string { return TypeProposalProposed }

// Attributes satisfies the Event interface.
func (e ProposalProposed) Attributes() map[string]string {
	return map[string]string{
		"id":         strconv.FormatUint(e.ProposalID, 10),
		"proposer":   e.Proposer,
		"startBlock": strconv.FormatUint(e.StartBlock, 10),
		"endBlock":   strconv.FormatUint(e.EndBlock, 10),
	}
}

// VoteCast captures a ballot. Replaced is true when the ballot superseded an
// earlier vote from the same account.
type VoteCast struct {
	ProposalID uint64
	Voter      string
	Choice     string
	Level      uint8
	Weight     sdkmath.LegacyDec
	Replaced   bool
	TxID       string
}

// EventType satisfies the Event interface.
func (VoteCast) EventType() string { return TypeVoteCast }

// Attributes satisfies the Event interface.
func (e VoteCast) Attributes() map[string]string {
	return map[string]string{
		"id":         strconv.FormatUint(e.ProposalID, 10),
		"voter":      e.Voter,
		"choice":     e.Choice,
		"conviction": strconv.FormatUint(uint64(e.Level), 10),
		"weight":     formatDec(e.Weight),
		"replaced":   strconv.FormatBool(e.Replaced),
		"tx":         e.TxID,
	}
}

// ProposalFinalized captures the terminal status of a proposal.
type ProposalFinalized struct {
	ProposalID uint64
	Status     string
	Approval   sdkmath.LegacyDec
	Turnout    sdkmath.LegacyDec
}

// EventType satisfies the Event interface.
func (ProposalFinalized) EventType() string { return TypeProposalFinalized }

// Attributes satisfies the Event interface.
func (e ProposalFinalized) Attributes() map[string]string {
	return map[string]string{
		"id":       strconv.FormatUint(e.ProposalID, 10),
		"status":   e.Status,
		"approval": formatDec(e.Approval),
		"turnout":  formatDec(e.Turnout),
	}
}

// Delegated captures a new delegation. Previous is set when an earlier
// delegation was implicitly closed.
type Delegated struct {
	Delegator string
	Delegate  string
	Previous  string
	Amount    sdkmath.Int
	Level     uint8
	TxID      string
}

// EventType satisfies the Event interface.
func (Delegated) EventType() string { return TypeDelegated }

// Attributes satisfies the Event interface.
func (e Delegated) Attributes() map[string]string {
	attrs := map[string]string{
		"delegator":  e.Delegator,
		"delegate":   e.Delegate,
		"amount":     formatAmount(e.Amount),
		"conviction": strconv.FormatUint(uint64(e.Level), 10),
		"tx":         e.TxID,
	}
	if e.Previous != "" {
		attrs["previous"] = e.Previous
	}
	return attrs
}

// Undelegated captures a removed delegation.
type Undelegated struct {
	Delegator string
	Delegate  string
	Amount    sdkmath.Int
	TxID      string
}

// EventType satisfies the Event interface.
func (Undelegated) EventType() string { return TypeUndelegated }

// Attributes satisfies the Event interface.
func (e Undelegated) Attributes() map[string]string {
	return map[string]string{
		"delegator": e.Delegator,
		"delegate":  e.Delegate,
		"amount":    formatAmount(e.Amount),
		"tx":        e.TxID,
	}
}

// ConvictionLocked captures a new conviction lock.
type ConvictionLocked struct {
	Account  string
	LockID   string
	Amount   sdkmath.Int
	Level    uint8
	UnlockAt time.Time
}

// EventType satisfies the Event interface.
func (ConvictionLocked) EventType() string { return TypeConvictionLocked }

// Attributes satisfies the Event interface.
func (e ConvictionLocked) Attributes() map[string]string {
	return map[string]string{
		"account":    e.Account,
		"lock":       e.LockID,
		"amount":     formatAmount(e.Amount),
		"conviction": strconv.FormatUint(uint64(e.Level), 10),
		"unlockAt":   strconv.FormatInt(e.UnlockAt.Unix(), 10),
	}
}

// ConvictionReleased captures expired locks freed for an account.
type ConvictionReleased struct {
	Account string
	Count   int
	Amount  sdkmath.Int
}

// EventType satisfies the Event interface.
func (ConvictionReleased) EventType() string { return TypeConvictionReleased }

// Attributes satisfies the Event interface.
func (e ConvictionReleased) Attributes() map[string]string {
	return map[string]string{
		"account": e.Account,
		"count":   strconv.Itoa(e.Count),
		"amount":  formatAmount(e.Amount),
	}
}

func formatDec(v sdkmath.LegacyDec) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}
