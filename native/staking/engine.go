// Package staking drives the bond, unbond, withdraw and claim lifecycle of
// staking positions. Every mutation is submitted to the ledger first and only
// persisted once the ledger accepted it.
package staking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	stakeerrors "stakegov/core/errors"
	"stakegov/core/events"
	"stakegov/ledger"
	"stakegov/native/common"
	"stakegov/native/rewards"
)

var errNotConfigured = errors.New("staking: engine not configured")

// Engine manages staking positions for all accounts. Callers serialize
// mutations per account.
type Engine struct {
	state     State
	directory Directory
	ledger    ledger.Client
	cfg       Config
	rewards   rewards.Config
	reporter  *common.Reporter
	pauses    common.PauseView
	emitter   events.Emitter
	nowFn     func() time.Time
}

// NewEngine wires a staking engine. Invalid configuration values fall back
// to DefaultConfig.
func NewEngine(state State, directory Directory, client ledger.Client, cfg Config) *Engine {
	defaults := DefaultConfig()
	if cfg.UnbondingPeriod <= 0 {
		cfg.UnbondingPeriod = defaults.UnbondingPeriod
	}
	if cfg.AutoSelectCount <= 0 {
		cfg.AutoSelectCount = defaults.AutoSelectCount
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaults.HistoryWindow
	}
	return &Engine{
		state:     state,
		directory: directory,
		ledger:    client,
		cfg:       cfg,
		rewards:   rewards.DefaultConfig(),
		emitter:   events.NoopEmitter{},
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// SetRewardsConfig overrides the APY bounds used for summaries.
func (e *Engine) SetRewardsConfig(cfg rewards.Config) { e.rewards = cfg }

// SetReporter configures where ledger/state divergences are reported.
func (e *Engine) SetReporter(reporter *common.Reporter) { e.reporter = reporter }

// SetPauses wires the module pause view.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter. Nil installs a no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock. Nil restores the UTC wall clock.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.directory == nil || e.ledger == nil {
		return errNotConfigured
	}
	return nil
}

// StakeRequest describes a bond. An empty Validator auto-selects the
// highest-APY active validators.
type StakeRequest struct {
	Account      string
	Amount       sdkmath.Int
	Validator    string
	AutoCompound bool
}

// StakeResult lists the positions created or topped up by a bond.
type StakeResult struct {
	TxID      string      `json:"tx_id"`
	Positions []*Position `json:"positions"`
}

type allocation struct {
	validator string
	amount    sdkmath.Int
}

// Stake bonds the requested amount. Nothing is persisted when the ledger
// rejects the bond.
func (e *Engine) Stake(ctx context.Context, req StakeRequest) (*StakeResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, common.ModuleStaking); err != nil {
		return nil, err
	}
	account, err := common.NormalizeAccount(req.Account)
	if err != nil {
		return nil, err
	}
	if err := common.RequirePositive("amount", req.Amount); err != nil {
		return nil, err
	}
	allocations, err := e.allocate(ctx, strings.TrimSpace(req.Validator), req.Amount)
	if err != nil {
		return nil, err
	}
	validators := make([]string, len(allocations))
	for i, alloc := range allocations {
		validators[i] = alloc.validator
	}

	txID, err := e.ledger.Submit(ctx, ledger.Tx{
		Kind:       ledger.TxKindBond,
		Account:    account,
		Amount:     req.Amount,
		Validators: validators,
	})
	if err != nil {
		return nil, &stakeerrors.LedgerError{Op: "staking.stake", Cause: err}
	}

	now := e.nowFn()
	positions, err := e.bondPositions(ctx, account, allocations, req.AutoCompound, string(txID), now)
	if err == nil {
		err = e.state.SavePositions(ctx, positions)
	}
	if err != nil {
		return nil, e.reporter.Diverged(ctx, "staking.stake", account, string(txID),
			fmt.Sprintf("bond %s to %s", req.Amount, strings.Join(validators, ",")), err)
	}
	for i, position := range positions {
		e.emitter.Emit(events.StakeBonded{
			Account:      account,
			PositionID:   position.ID,
			Validator:    position.Validator,
			Amount:       allocations[i].amount,
			AutoCompound: position.AutoCompound,
			TxID:         string(txID),
		})
	}
	return &StakeResult{TxID: string(txID), Positions: positions}, nil
}

func (e *Engine) bondPositions(ctx context.Context, account string, allocations []allocation, autoCompound bool, txID string, now time.Time) ([]*Position, error) {
	existing, err := e.state.ListPositions(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("staking: list positions: %w", err)
	}
	active := make(map[string]*Position, len(existing))
	for _, position := range existing {
		if position.Status == StatusActive {
			active[position.Validator] = position
		}
	}
	out := make([]*Position, 0, len(allocations))
	for _, alloc := range allocations {
		if position, ok := active[alloc.validator]; ok {
			updated := position.Clone()
			updated.Principal = common.ZeroIfNil(updated.Principal).Add(alloc.amount)
			updated.AutoCompound = autoCompound
			updated.UpdatedAt = now
			out = append(out, updated)
			continue
		}
		out = append(out, &Position{
			ID:           uuid.NewString(),
			Account:      account,
			Validator:    alloc.validator,
			Principal:    alloc.amount,
			Accrued:      sdkmath.ZeroInt(),
			AutoCompound: autoCompound,
			Status:       StatusActive,
			TxID:         txID,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return out, nil
}

// allocate splits amount across the named validator or the top validators by
// APY. The remainder of an uneven split goes to the highest-APY validator.
func (e *Engine) allocate(ctx context.Context, validator string, amount sdkmath.Int) ([]allocation, error) {
	active, err := e.directory.ListActiveValidators(ctx)
	if err != nil {
		return nil, fmt.Errorf("staking: list validators: %w", err)
	}
	if validator != "" {
		for _, v := range active {
			if v != nil && v.Active && v.Address == validator {
				return []allocation{{validator: validator, amount: amount}}, nil
			}
		}
		return nil, stakeerrors.InvalidArgument("validator %s is not active", validator)
	}
	candidates := make([]*Validator, 0, len(active))
	for _, v := range active {
		if v != nil && v.Active {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return nil, stakeerrors.ErrNoActiveValidators
	}
	sortValidators(candidates, SortByAPY)
	n := e.cfg.AutoSelectCount
	if n > len(candidates) {
		n = len(candidates)
	}
	if amount.LT(sdkmath.NewInt(int64(n))) {
		n = int(amount.Int64())
	}
	share := amount.QuoRaw(int64(n))
	remainder := amount.Sub(share.MulRaw(int64(n)))
	out := make([]allocation, n)
	for i := 0; i < n; i++ {
		out[i] = allocation{validator: candidates[i].Address, amount: share}
	}
	out[0].amount = out[0].amount.Add(remainder)
	return out, nil
}

// Unstake moves amount of a position's principal into a new unbonding entry.
// Unstaking the full principal moves the position to unbonding.
func (e *Engine) Unstake(ctx context.Context, account, positionID string, amount sdkmath.Int) (*UnbondingEntry, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, common.ModuleStaking); err != nil {
		return nil, err
	}
	owner, err := common.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	if err := common.RequirePositive("amount", amount); err != nil {
		return nil, err
	}
	position, err := e.ownedPosition(ctx, owner, positionID)
	if err != nil {
		return nil, err
	}
	if position.Status != StatusActive {
		return nil, fmt.Errorf("staking: position %s is %s: %w", position.ID, position.Status, stakeerrors.ErrPositionNotActive)
	}
	principal := common.ZeroIfNil(position.Principal)
	if amount.GT(principal) {
		return nil, fmt.Errorf("staking: unstake %s from principal %s: %w", amount, principal, stakeerrors.ErrExceedsStakedAmount)
	}

	txID, err := e.ledger.Submit(ctx, ledger.Tx{
		Kind:       ledger.TxKindUnbond,
		Account:    owner,
		Amount:     amount,
		Validators: []string{position.Validator},
		Reference:  position.ID,
	})
	if err != nil {
		return nil, &stakeerrors.LedgerError{Op: "staking.unstake", Cause: err}
	}

	now := e.nowFn()
	updated := position.Clone()
	updated.Principal = principal.Sub(amount)
	if updated.Principal.IsZero() {
		updated.Status = StatusUnbonding
	}
	updated.UpdatedAt = now
	entry := &UnbondingEntry{
		ID:         uuid.NewString(),
		PositionID: position.ID,
		Account:    owner,
		Amount:     amount,
		UnlockAt:   now.Add(e.cfg.UnbondingPeriod),
		TxID:       string(txID),
		CreatedAt:  now,
	}
	if err := e.state.ApplyUnbond(ctx, updated, entry); err != nil {
		return nil, e.reporter.Diverged(ctx, "staking.unstake", owner, string(txID),
			fmt.Sprintf("unbond %s from position %s", amount, position.ID), err)
	}
	e.emitter.Emit(events.StakeUnbonded{
		Account:    owner,
		PositionID: position.ID,
		EntryID:    entry.ID,
		Amount:     amount,
		Remaining:  updated.Principal,
		UnlockAt:   entry.UnlockAt,
		TxID:       string(txID),
	})
	return entry, nil
}

func (e *Engine) ownedPosition(ctx context.Context, owner, positionID string) (*Position, error) {
	id := strings.TrimSpace(positionID)
	if id == "" {
		return nil, stakeerrors.InvalidArgument("position id must not be empty")
	}
	position, ok, err := e.state.GetPosition(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("staking: load position: %w", err)
	}
	if !ok || position.Account != owner {
		return nil, fmt.Errorf("staking: position %s: %w", id, stakeerrors.ErrNotFound)
	}
	return position, nil
}

// WithdrawResult reports a payout of matured unbonding entries.
type WithdrawResult struct {
	TxID    string            `json:"tx_id"`
	Amount  sdkmath.Int       `json:"amount"`
	Entries []*UnbondingEntry `json:"entries"`
	Closed  []string          `json:"closed_positions"`
}

// WithdrawUnbonded pays out every matured unbonding entry of the account.
// Immature entries are left untouched.
func (e *Engine) WithdrawUnbonded(ctx context.Context, account string) (*WithdrawResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, common.ModuleStaking); err != nil {
		return nil, err
	}
	owner, err := common.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	entries, err := e.state.ListUnbonding(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("staking: list unbonding: %w", err)
	}
	now := e.nowFn()
	matured := make([]*UnbondingEntry, 0, len(entries))
	remaining := make(map[string]int, len(entries))
	total := sdkmath.ZeroInt()
	for _, entry := range entries {
		if entry.Matured(now) {
			matured = append(matured, entry)
			total = total.Add(common.ZeroIfNil(entry.Amount))
			continue
		}
		remaining[entry.PositionID]++
	}
	if len(matured) == 0 {
		return nil, stakeerrors.ErrNothingToWithdraw
	}

	txID, err := e.ledger.Submit(ctx, ledger.Tx{
		Kind:    ledger.TxKindWithdraw,
		Account: owner,
		Amount:  total,
	})
	if err != nil {
		return nil, &stakeerrors.LedgerError{Op: "staking.withdraw", Cause: err}
	}

	ids := make([]string, len(matured))
	touched := make(map[string]struct{}, len(matured))
	for i, entry := range matured {
		ids[i] = entry.ID
		touched[entry.PositionID] = struct{}{}
	}
	positions, err := e.state.ListPositions(ctx, owner)
	var updates []*Position
	var closed []string
	if err == nil {
		for _, position := range positions {
			if _, ok := touched[position.ID]; !ok {
				continue
			}
			if position.Status == StatusClosed || !common.ZeroIfNil(position.Principal).IsZero() || remaining[position.ID] > 0 {
				continue
			}
			updated := position.Clone()
			updated.UpdatedAt = now
			if common.ZeroIfNil(position.Accrued).IsPositive() {
				// Drained but still owed rewards; ClaimRewards closes it.
				updated.Status = StatusWithdrawable
				updates = append(updates, updated)
				continue
			}
			updated.Status = StatusClosed
			updates = append(updates, updated)
			closed = append(closed, updated.ID)
		}
		err = e.state.ApplyWithdraw(ctx, owner, ids, updates)
	}
	if err != nil {
		return nil, e.reporter.Diverged(ctx, "staking.withdraw", owner, string(txID),
			fmt.Sprintf("withdraw %d unbonding entries totalling %s", len(ids), total), err)
	}
	e.emitter.Emit(events.StakeWithdrawn{
		Account: owner,
		Amount:  total,
		Entries: len(matured),
		TxID:    string(txID),
	})
	return &WithdrawResult{TxID: string(txID), Amount: total, Entries: matured, Closed: closed}, nil
}

// ClaimResult reports a reward payout.
type ClaimResult struct {
	TxID   string      `json:"tx_id"`
	Amount sdkmath.Int `json:"amount"`
}

// ClaimRewards pays out accrued rewards and resets accrual to zero. Principal
// is unchanged; a drained position left open only for its rewards is closed.
func (e *Engine) ClaimRewards(ctx context.Context, account string) (*ClaimResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, common.ModuleStaking); err != nil {
		return nil, err
	}
	owner, err := common.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	positions, err := e.state.ListPositions(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("staking: list positions: %w", err)
	}
	total := sdkmath.ZeroInt()
	var pending []*Position
	validators := make([]string, 0, len(positions))
	for _, position := range positions {
		accrued := common.ZeroIfNil(position.Accrued)
		if !accrued.IsPositive() {
			continue
		}
		total = total.Add(accrued)
		pending = append(pending, position)
		validators = append(validators, position.Validator)
	}
	if len(pending) == 0 {
		return nil, stakeerrors.ErrNothingToClaim
	}

	txID, err := e.ledger.Submit(ctx, ledger.Tx{
		Kind:       ledger.TxKindClaim,
		Account:    owner,
		Amount:     total,
		Validators: validators,
	})
	if err != nil {
		return nil, &stakeerrors.LedgerError{Op: "staking.claim", Cause: err}
	}
	now := e.nowFn()
	updates := make([]*Position, len(pending))
	for i, position := range pending {
		updated := position.Clone()
		updated.Accrued = sdkmath.ZeroInt()
		updated.UpdatedAt = now
		if updated.Status == StatusWithdrawable && common.ZeroIfNil(updated.Principal).IsZero() {
			updated.Status = StatusClosed
		}
		updates[i] = updated
	}
	if err := e.state.SavePositions(ctx, updates); err != nil {
		return nil, e.reporter.Diverged(ctx, "staking.claim", owner, string(txID),
			fmt.Sprintf("claim %s accrued rewards", total), err)
	}
	e.emitter.Emit(events.StakeRewardsClaimed{Account: owner, Amount: total, TxID: string(txID)})
	return &ClaimResult{TxID: string(txID), Amount: total}, nil
}

// RecordReward credits a ledger reward to a position. Auto-compounding
// active positions add it to principal; all others accrue it for claiming.
func (e *Engine) RecordReward(ctx context.Context, reward RewardEvent) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	owner, err := common.NormalizeAccount(reward.Account)
	if err != nil {
		return nil, err
	}
	if err := common.RequirePositive("reward", reward.Amount); err != nil {
		return nil, err
	}
	position, err := e.ownedPosition(ctx, owner, reward.PositionID)
	if err != nil {
		return nil, err
	}
	if position.Status == StatusClosed {
		return nil, fmt.Errorf("staking: position %s is closed: %w", position.ID, stakeerrors.ErrPositionNotActive)
	}
	now := e.nowFn()
	updated := position.Clone()
	record := reward
	record.Account = owner
	record.PositionID = position.ID
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.At.IsZero() {
		record.At = now
	}
	record.Compounded = position.AutoCompound && position.Status == StatusActive
	if record.Compounded {
		updated.Principal = common.ZeroIfNil(updated.Principal).Add(reward.Amount)
	} else {
		updated.Accrued = common.ZeroIfNil(updated.Accrued).Add(reward.Amount)
	}
	updated.UpdatedAt = now
	if err := e.state.ApplyReward(ctx, updated, &record); err != nil {
		return nil, fmt.Errorf("staking: record reward: %w", err)
	}
	e.emitter.Emit(events.StakeRewardRecorded{
		Account:    owner,
		PositionID: position.ID,
		Amount:     reward.Amount,
		Compounded: record.Compounded,
	})
	return updated, nil
}
