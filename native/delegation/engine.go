// Package delegation tracks who lends voting power to whom and derives the
// effective voting power of every account.
package delegation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"

	stakeerrors "stakegov/core/errors"
	"stakegov/core/events"
	"stakegov/ledger"
	"stakegov/native/common"
	"stakegov/native/conviction"
)

var errNotConfigured = errors.New("delegation: engine not configured")

// Engine orchestrates delegation changes against the ledger and the
// persisted delegation state.
type Engine struct {
	state    State
	locks    *conviction.Manager
	ledger   ledger.Client
	reporter *common.Reporter
	pauses   common.PauseView
	emitter  events.Emitter
}

// NewEngine wires a delegation engine.
func NewEngine(state State, locks *conviction.Manager, client ledger.Client) *Engine {
	return &Engine{
		state:   state,
		locks:   locks,
		ledger:  client,
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter. Nil installs a no-op emitter.
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

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.locks == nil || e.ledger == nil {
		return errNotConfigured
	}
	return nil
}

// Delegate lends amount of the delegator's unlocked balance to delegate at
// the supplied conviction level. An existing delegation is closed and
// replaced; its conviction lock keeps running until it expires.
func (e *Engine) Delegate(ctx context.Context, delegator, delegate string, amount sdkmath.Int, level conviction.Level) (*Delegation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, common.ModuleDelegation); err != nil {
		return nil, err
	}
	from, err := common.NormalizeAccount(delegator)
	if err != nil {
		return nil, err
	}
	to, err := common.NormalizeAccount(delegate)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(from, to) {
		return nil, stakeerrors.InvalidArgument("cannot delegate to self")
	}
	if err := common.RequirePositive("amount", amount); err != nil {
		return nil, err
	}
	if !level.Valid() {
		return nil, stakeerrors.InvalidArgument("conviction level %d outside [0, %d]", level, conviction.MaxLevel)
	}
	if _, err := e.locks.ReleaseExpired(ctx, from); err != nil {
		return nil, err
	}
	lock, err := e.locks.Prepare(ctx, from, amount, level, conviction.SourceDelegation, to)
	if err != nil {
		return nil, err
	}
	previous, _, err := e.state.GetDelegation(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("delegation: load delegation: %w", err)
	}

	txID, err := e.ledger.Submit(ctx, ledger.Tx{
		Kind:       ledger.TxKindDelegate,
		Account:    from,
		Amount:     amount,
		Target:     to,
		Conviction: uint8(level),
	})
	if err != nil {
		return nil, &stakeerrors.LedgerError{Op: "delegation.delegate", Cause: err}
	}

	record := &Delegation{
		Delegator: from,
		Delegate:  to,
		Amount:    amount,
		Level:     level,
		CreatedAt: e.locks.Now(),
		TxID:      string(txID),
	}
	if lock != nil {
		record.LockID = lock.ID
		record.CreatedAt = lock.CreatedAt
	}
	if err := e.state.ReplaceDelegation(ctx, record, lock); err != nil {
		return nil, e.reporter.Diverged(ctx, "delegation.delegate", from, string(txID),
			fmt.Sprintf("delegate %s to %s at conviction %d", amount, to, level), err)
	}

	e.locks.Announce(lock)
	evt := events.Delegated{
		Delegator: from,
		Delegate:  to,
		Amount:    amount,
		Level:     uint8(level),
		TxID:      string(txID),
	}
	if previous != nil {
		evt.Previous = previous.Delegate
	}
	e.emitter.Emit(evt)
	return record, nil
}

// Undelegate removes the delegator's active delegation once its conviction
// lock has expired.
func (e *Engine) Undelegate(ctx context.Context, delegator string) (*Delegation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, common.ModuleDelegation); err != nil {
		return nil, err
	}
	from, err := common.NormalizeAccount(delegator)
	if err != nil {
		return nil, err
	}
	current, ok, err := e.state.GetDelegation(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("delegation: load delegation: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("delegation: %s has no active delegation: %w", from, stakeerrors.ErrNotFound)
	}
	now := e.locks.Now()
	if unlockAt := current.UnlockAt(); now.Before(unlockAt) {
		return nil, fmt.Errorf("delegation: lock held until %s: %w", unlockAt.Format("2006-01-02T15:04:05Z07:00"), stakeerrors.ErrLockedFundsCannotUndelegate)
	}
	if _, err := e.locks.ReleaseExpired(ctx, from); err != nil {
		return nil, err
	}

	txID, err := e.ledger.Submit(ctx, ledger.Tx{
		Kind:    ledger.TxKindUndelegate,
		Account: from,
		Amount:  current.Amount,
		Target:  current.Delegate,
	})
	if err != nil {
		return nil, &stakeerrors.LedgerError{Op: "delegation.undelegate", Cause: err}
	}
	if err := e.state.DeleteDelegation(ctx, from); err != nil {
		return nil, e.reporter.Diverged(ctx, "delegation.undelegate", from, string(txID),
			fmt.Sprintf("undelegate %s from %s", current.Amount, current.Delegate), err)
	}
	e.emitter.Emit(events.Undelegated{
		Delegator: from,
		Delegate:  current.Delegate,
		Amount:    current.Amount,
		TxID:      string(txID),
	})
	return current, nil
}

// Get returns the active delegation of delegator, or ErrNotFound.
func (e *Engine) Get(ctx context.Context, delegator string) (*Delegation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	from, err := common.NormalizeAccount(delegator)
	if err != nil {
		return nil, err
	}
	current, ok, err := e.state.GetDelegation(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("delegation: load delegation: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("delegation: %s has no active delegation: %w", from, stakeerrors.ErrNotFound)
	}
	return current, nil
}

// DelegatedPower sums the conviction-weighted power delegated to delegate.
func (e *Engine) DelegatedPower(ctx context.Context, delegate string) (sdkmath.LegacyDec, error) {
	if err := e.ready(); err != nil {
		return sdkmath.LegacyDec{}, err
	}
	to, err := common.NormalizeAccount(delegate)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	delegations, err := e.state.ListDelegationsTo(ctx, to)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("delegation: list delegations: %w", err)
	}
	total := sdkmath.LegacyZeroDec()
	for _, d := range delegations {
		power, err := d.Power()
		if err != nil {
			return sdkmath.LegacyDec{}, fmt.Errorf("delegation: power of %s: %w", d.Delegator, err)
		}
		total = total.Add(power)
	}
	return total, nil
}

// EffectivePower returns the account's own balance weighted by ownLevel plus
// everything delegated to it. Balance the account has delegated away does not
// count towards its own power.
func (e *Engine) EffectivePower(ctx context.Context, account string, ownLevel conviction.Level) (*VotingPower, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	normalized, err := common.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	balance, err := e.ledger.QueryBalance(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("delegation: query balance: %w", err)
	}
	balance = common.ZeroIfNil(balance)
	away := sdkmath.ZeroInt()
	current, ok, err := e.state.GetDelegation(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("delegation: load delegation: %w", err)
	}
	if ok {
		away = common.ZeroIfNil(current.Amount)
	}
	ownBalance := balance.Sub(away)
	if ownBalance.IsNegative() {
		ownBalance = sdkmath.ZeroInt()
	}
	own, err := conviction.Power(ownBalance, ownLevel)
	if err != nil {
		return nil, err
	}
	delegated, err := e.DelegatedPower(ctx, normalized)
	if err != nil {
		return nil, err
	}
	return &VotingPower{
		Account:       normalized,
		Balance:       balance,
		DelegatedAway: away,
		Level:         ownLevel,
		Own:           own,
		Delegated:     delegated,
		Total:         own.Add(delegated),
	}, nil
}
