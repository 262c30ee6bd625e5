package errors

import (
	stderrors "errors"
	"fmt"
)

// Input and business-rule failures. These are reported to callers verbatim and
// are never retried by the engine.
var (
	ErrInvalidArgument             = stderrors.New("invalid argument")
	ErrInsufficientUnlockedBalance = stderrors.New("insufficient unlocked balance")
	ErrExceedsStakedAmount         = stderrors.New("amount exceeds staked principal")
	ErrLockedFundsCannotUndelegate = stderrors.New("locked funds cannot undelegate")
	ErrNotFound                    = stderrors.New("not found")
	ErrPositionNotActive           = stderrors.New("staking position not active")
	ErrNothingToWithdraw           = stderrors.New("no matured unbonding entries")
	ErrNothingToClaim              = stderrors.New("no accrued rewards")
	ErrProposalClosed              = stderrors.New("proposal not accepting votes")
	ErrNoActiveValidators          = stderrors.New("no active validators available")
)

// Infrastructure failures.
var (
	ErrLedgerSubmissionFailed = stderrors.New("ledger submission failed")
	ErrCacheUnavailable       = stderrors.New("cache unavailable")
	ErrReconciliationRequired = stderrors.New("ledger accepted transaction but local state was not persisted")
)

// InvalidArgument wraps ErrInvalidArgument with a formatted reason.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// LedgerError reports a rejected or timed-out ledger submission. The caller
// may retry the whole logical operation.
type LedgerError struct {
	Op    string
	Cause error
}

func (e *LedgerError) Error() string {
	if e == nil {
		return ErrLedgerSubmissionFailed.Error()
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrLedgerSubmissionFailed.Error(), e.Cause)
}

// Is lets errors.Is match ErrLedgerSubmissionFailed.
func (e *LedgerError) Is(target error) bool { return target == ErrLedgerSubmissionFailed }

// Unwrap exposes the underlying ledger cause.
func (e *LedgerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ReconciliationError marks the case where the ledger accepted a transaction
// but the local persisted state could not be updated. The ledger is
// authoritative; the local record must be repaired by an operator.
type ReconciliationError struct {
	Op      string
	Account string
	TxID    string
	Cause   error
}

func (e *ReconciliationError) Error() string {
	if e == nil {
		return ErrReconciliationRequired.Error()
	}
	return fmt.Sprintf("%s: %s (account=%s tx=%s): %v", e.Op, ErrReconciliationRequired.Error(), e.Account, e.TxID, e.Cause)
}

// Is lets errors.Is match ErrReconciliationRequired.
func (e *ReconciliationError) Is(target error) bool { return target == ErrReconciliationRequired }

// Unwrap exposes the persistence failure.
func (e *ReconciliationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsBusinessRule reports whether err is one of the rule violations that must
// be surfaced to the caller unchanged.
func IsBusinessRule(err error) bool {
	switch {
	case stderrors.Is(err, ErrInsufficientUnlockedBalance),
		stderrors.Is(err, ErrExceedsStakedAmount),
		stderrors.Is(err, ErrLockedFundsCannotUndelegate),
		stderrors.Is(err, ErrPositionNotActive),
		stderrors.Is(err, ErrNothingToWithdraw),
		stderrors.Is(err, ErrNothingToClaim),
		stderrors.Is(err, ErrProposalClosed),
		stderrors.Is(err, ErrNoActiveValidators):
		return true
	default:
		return false
	}
}
