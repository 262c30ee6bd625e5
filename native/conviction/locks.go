package conviction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	stakeerrors "stakegov/core/errors"
	"stakegov/core/events"
	"stakegov/native/common"
)

// Source identifies what created a lock.
type Source string

const (
	SourceVote       Source = "vote"
	SourceDelegation Source = "delegation"
	SourceDirect     Source = "direct"
)

// Lock reserves part of an account's balance until UnlockAt. The duration is
// fixed when the lock is created and is never shortened. Locks are never
// merged: every lock carries its own expiry.
type Lock struct {
	ID        string      `json:"id"`
	Account   string      `json:"account"`
	Amount    sdkmath.Int `json:"amount"`
	Level     Level       `json:"conviction"`
	Source    Source      `json:"source"`
	Reference string      `json:"reference,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UnlockAt  time.Time   `json:"unlock_at"`
}

// Expired reports whether the lock no longer reserves funds at now.
func (l *Lock) Expired(now time.Time) bool {
	if l == nil {
		return true
	}
	return !now.Before(l.UnlockAt)
}

// Remaining returns how long the lock still holds funds, floored at zero.
func (l *Lock) Remaining(now time.Time) time.Duration {
	if l.Expired(now) {
		return 0
	}
	return l.UnlockAt.Sub(now)
}

// State persists conviction locks.
type State interface {
	PutLock(ctx context.Context, lock *Lock) error
	GetLock(ctx context.Context, id string) (*Lock, bool, error)
	ListLocks(ctx context.Context, account string) ([]*Lock, error)
	DeleteLocks(ctx context.Context, account string, ids []string) error
}

// BalanceSource reports the free ledger balance of an account. ledger.Client
// satisfies it.
type BalanceSource interface {
	QueryBalance(ctx context.Context, account string) (sdkmath.Int, error)
}

var (
	errStateNotConfigured   = errors.New("conviction: state not configured")
	errBalanceNotConfigured = errors.New("conviction: balance source not configured")
)

// Manager creates, queries and releases conviction locks.
type Manager struct {
	state    State
	balances BalanceSource
	emitter  events.Emitter
	nowFn    func() time.Time
}

// NewManager constructs a lock manager over the supplied state and balance
// source.
func NewManager(state State, balances BalanceSource) *Manager {
	return &Manager{
		state:    state,
		balances: balances,
		emitter:  events.NoopEmitter{},
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// SetEmitter configures the event emitter. Nil installs a no-op emitter.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if m == nil {
		return
	}
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

// SetNowFunc overrides the clock. Nil restores the UTC wall clock.
func (m *Manager) SetNowFunc(now func() time.Time) {
	if m == nil {
		return
	}
	if now == nil {
		m.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	m.nowFn = now
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	if m == nil || m.nowFn == nil {
		return time.Now().UTC()
	}
	return m.nowFn()
}

func (m *Manager) ready() error {
	if m == nil || m.state == nil {
		return errStateNotConfigured
	}
	if m.balances == nil {
		return errBalanceNotConfigured
	}
	return nil
}

// Prepare validates a lock request against the account's unlocked balance
// and returns the lock that would be created without persisting it. Level 0
// checks the balance but returns a nil lock. Callers persist the returned lock
// together with their own records once the ledger has accepted the
// corresponding transaction.
func (m *Manager) Prepare(ctx context.Context, account string, amount sdkmath.Int, level Level, source Source, reference string) (*Lock, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	normalized, err := common.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	if err := common.RequirePositive("amount", amount); err != nil {
		return nil, err
	}
	duration, err := LockDuration(level)
	if err != nil {
		return nil, err
	}
	unlocked, err := m.Unlocked(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if amount.GT(unlocked) {
		return nil, fmt.Errorf("conviction: lock %s of %s with %s unlocked: %w", amount, normalized, unlocked, stakeerrors.ErrInsufficientUnlockedBalance)
	}
	if level == 0 {
		return nil, nil
	}
	now := m.Now()
	return &Lock{
		ID:        uuid.NewString(),
		Account:   normalized,
		Amount:    amount,
		Level:     level,
		Source:    source,
		Reference: strings.TrimSpace(reference),
		CreatedAt: now,
		UnlockAt:  now.Add(duration),
	}, nil
}

// Announce emits the lock creation event for a lock persisted by a caller.
func (m *Manager) Announce(lock *Lock) {
	if m == nil || lock == nil {
		return
	}
	m.emitter.Emit(events.ConvictionLocked{
		Account:  lock.Account,
		LockID:   lock.ID,
		Amount:   lock.Amount,
		Level:    uint8(lock.Level),
		UnlockAt: lock.UnlockAt,
	})
}

// Lock reserves amount of the account's unlocked balance at level and
// returns the lock id. Level 0 creates no lock and returns an empty id.
func (m *Manager) Lock(ctx context.Context, account string, amount sdkmath.Int, level Level) (string, error) {
	lock, err := m.Prepare(ctx, account, amount, level, SourceDirect, "")
	if err != nil {
		return "", err
	}
	if lock == nil {
		return "", nil
	}
	if err := m.state.PutLock(ctx, lock); err != nil {
		return "", fmt.Errorf("conviction: persist lock: %w", err)
	}
	m.Announce(lock)
	return lock.ID, nil
}

// ReleaseExpired deletes every lock of account whose unlock time has passed
// and returns how many were released. Calling it again without new expiries
// releases nothing.
func (m *Manager) ReleaseExpired(ctx context.Context, account string) (int, error) {
	if m == nil || m.state == nil {
		return 0, errStateNotConfigured
	}
	normalized, err := common.NormalizeAccount(account)
	if err != nil {
		return 0, err
	}
	locks, err := m.state.ListLocks(ctx, normalized)
	if err != nil {
		return 0, fmt.Errorf("conviction: list locks: %w", err)
	}
	now := m.Now()
	ids := make([]string, 0, len(locks))
	released := sdkmath.ZeroInt()
	for _, lock := range locks {
		if lock.Expired(now) {
			ids = append(ids, lock.ID)
			released = released.Add(common.ZeroIfNil(lock.Amount))
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := m.state.DeleteLocks(ctx, normalized, ids); err != nil {
		return 0, fmt.Errorf("conviction: delete expired locks: %w", err)
	}
	m.emitter.Emit(events.ConvictionReleased{Account: normalized, Count: len(ids), Amount: released})
	return len(ids), nil
}

// Locks returns the unexpired locks of account ordered by unlock time.
func (m *Manager) Locks(ctx context.Context, account string) ([]*Lock, error) {
	if m == nil || m.state == nil {
		return nil, errStateNotConfigured
	}
	normalized, err := common.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	locks, err := m.state.ListLocks(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("conviction: list locks: %w", err)
	}
	now := m.Now()
	active := make([]*Lock, 0, len(locks))
	for _, lock := range locks {
		if !lock.Expired(now) {
			active = append(active, lock)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].UnlockAt.Equal(active[j].UnlockAt) {
			return active[i].ID < active[j].ID
		}
		return active[i].UnlockAt.Before(active[j].UnlockAt)
	})
	return active, nil
}

// Get returns a lock by id.
func (m *Manager) Get(ctx context.Context, id string) (*Lock, error) {
	if m == nil || m.state == nil {
		return nil, errStateNotConfigured
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, stakeerrors.InvalidArgument("lock id must not be empty")
	}
	lock, ok, err := m.state.GetLock(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("conviction: load lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("conviction: lock %s: %w", trimmed, stakeerrors.ErrNotFound)
	}
	return lock, nil
}

// Locked sums the amounts reserved by unexpired locks.
func (m *Manager) Locked(ctx context.Context, account string) (sdkmath.Int, error) {
	locks, err := m.Locks(ctx, account)
	if err != nil {
		return sdkmath.Int{}, err
	}
	total := sdkmath.ZeroInt()
	for _, lock := range locks {
		total = total.Add(common.ZeroIfNil(lock.Amount))
	}
	return total, nil
}

// Unlocked returns the ledger balance minus active locks, floored at zero.
func (m *Manager) Unlocked(ctx context.Context, account string) (sdkmath.Int, error) {
	if err := m.ready(); err != nil {
		return sdkmath.Int{}, err
	}
	normalized, err := common.NormalizeAccount(account)
	if err != nil {
		return sdkmath.Int{}, err
	}
	balance, err := m.balances.QueryBalance(ctx, normalized)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("conviction: query balance: %w", err)
	}
	locked, err := m.Locked(ctx, normalized)
	if err != nil {
		return sdkmath.Int{}, err
	}
	free := common.ZeroIfNil(balance).Sub(locked)
	if free.IsNegative() {
		return sdkmath.ZeroInt(), nil
	}
	return free, nil
}
