// Package ledgertest provides a deterministic in-memory ledger for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"stakegov/ledger"
)

// Fake is a scripted ledger. Transaction ids are sequential and failures can
// be queued ahead of time.
type Fake struct {
	mu        sync.Mutex
	balances  map[string]sdkmath.Int
	staked    map[string]sdkmath.Int
	height    uint64
	seq       uint64
	failures  []error
	submitted []ledger.Tx
}

// New returns an empty fake ledger at block height 1.
func New() *Fake {
	return &Fake{
		balances: make(map[string]sdkmath.Int),
		staked:   make(map[string]sdkmath.Int),
		height:   1,
	}
}

// SetBalance overrides the free balance reported for account.
func (f *Fake) SetBalance(account string, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = sdkmath.NewInt(amount)
}

// SetStaked overrides the staked balance reported for account.
func (f *Fake) SetStaked(account string, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staked[account] = sdkmath.NewInt(amount)
}

// SetHeight sets the current block height.
func (f *Fake) SetHeight(height uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.height = height
}

// FailNext makes the next Submit call return err.
func (f *Fake) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, err)
}

// Submitted returns a copy of every accepted transaction.
func (f *Fake) Submitted() []ledger.Tx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.Tx(nil), f.submitted...)
}

// Submit implements ledger.Client.
func (f *Fake) Submit(ctx context.Context, tx ledger.Tx) (ledger.TxID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return "", err
	}
	f.seq++
	f.submitted = append(f.submitted, tx)
	return ledger.TxID(fmt.Sprintf("tx-%06d", f.seq)), nil
}

// QueryBalance implements ledger.Client.
func (f *Fake) QueryBalance(_ context.Context, account string) (sdkmath.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bal, ok := f.balances[account]; ok {
		return bal, nil
	}
	return sdkmath.ZeroInt(), nil
}

// QueryStakedBalance implements ledger.Client.
func (f *Fake) QueryStakedBalance(_ context.Context, account string) (sdkmath.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bal, ok := f.staked[account]; ok {
		return bal, nil
	}
	return sdkmath.ZeroInt(), nil
}

// BlockHeight implements ledger.Client.
func (f *Fake) BlockHeight(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, nil
}
