package staking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"

	stakeerrors "stakegov/core/errors"
	"stakegov/native/common"
	"stakegov/native/rewards"
)

// deriveStatus applies the time-driven unbonding to withdrawable transition.
func deriveStatus(position *Position, entries []*UnbondingEntry, now time.Time) Status {
	if position.Status != StatusUnbonding {
		return position.Status
	}
	for _, entry := range entries {
		if entry.PositionID == position.ID && !entry.Matured(now) {
			return StatusUnbonding
		}
	}
	return StatusWithdrawable
}

// Positions returns the account's positions with their current status.
// Closed positions are omitted.
func (e *Engine) Positions(ctx context.Context, account string) ([]*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	owner, err := common.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	positions, entries, err := e.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	return e.refresh(positions, entries), nil
}

func (e *Engine) load(ctx context.Context, owner string) ([]*Position, []*UnbondingEntry, error) {
	positions, err := e.state.ListPositions(ctx, owner)
	if err != nil {
		return nil, nil, fmt.Errorf("staking: list positions: %w", err)
	}
	entries, err := e.state.ListUnbonding(ctx, owner)
	if err != nil {
		return nil, nil, fmt.Errorf("staking: list unbonding: %w", err)
	}
	return positions, entries, nil
}

func (e *Engine) refresh(positions []*Position, entries []*UnbondingEntry) []*Position {
	now := e.nowFn()
	out := make([]*Position, 0, len(positions))
	for _, position := range positions {
		if position.Status == StatusClosed {
			continue
		}
		view := position.Clone()
		view.Status = deriveStatus(position, entries, now)
		out = append(out, view)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// UnbondingView is an unbonding entry annotated for display.
type UnbondingView struct {
	*UnbondingEntry
	Remaining time.Duration `json:"remaining"`
	Ready     bool          `json:"ready"`
}

// Summary is the staking overview of one account.
type Summary struct {
	Account        string               `json:"account"`
	TotalStaked    sdkmath.Int          `json:"total_staked"`
	TotalUnbonding sdkmath.Int          `json:"total_unbonding"`
	TotalAccrued   sdkmath.Int          `json:"total_accrued"`
	EffectiveAPY   float64              `json:"effective_apy"`
	DailyEstimate  float64              `json:"daily_estimate"`
	Positions      []*Position          `json:"positions"`
	Unbonding      []UnbondingView      `json:"unbonding"`
	History        []rewards.DailyTotal `json:"history"`
}

// Summary aggregates the account's positions, unbonding queue and recent
// reward history.
func (e *Engine) Summary(ctx context.Context, account string) (*Summary, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	owner, err := common.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	positions, entries, err := e.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	now := e.nowFn()
	since := now.Add(-e.cfg.HistoryWindow)
	history, err := e.state.ListRewards(ctx, owner, since)
	if err != nil {
		return nil, fmt.Errorf("staking: list rewards: %w", err)
	}

	summary := &Summary{
		Account:        owner,
		TotalStaked:    sdkmath.ZeroInt(),
		TotalUnbonding: sdkmath.ZeroInt(),
		TotalAccrued:   sdkmath.ZeroInt(),
		Positions:      e.refresh(positions, entries),
	}
	for _, position := range summary.Positions {
		if position.Status == StatusActive {
			summary.TotalStaked = summary.TotalStaked.Add(common.ZeroIfNil(position.Principal))
		}
	}
	// Closed positions are hidden but anything still accrued on them is
	// claimable, so the total covers every position.
	for _, position := range positions {
		summary.TotalAccrued = summary.TotalAccrued.Add(common.ZeroIfNil(position.Accrued))
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].UnlockAt.Before(entries[j].UnlockAt) })
	summary.Unbonding = make([]UnbondingView, 0, len(entries))
	for _, entry := range entries {
		summary.TotalUnbonding = summary.TotalUnbonding.Add(common.ZeroIfNil(entry.Amount))
		view := UnbondingView{UnbondingEntry: entry, Ready: entry.Matured(now)}
		if !view.Ready {
			view.Remaining = entry.UnlockAt.Sub(now)
		}
		summary.Unbonding = append(summary.Unbonding, view)
	}

	observed := make([]rewards.Event, len(history))
	for i, reward := range history {
		observed[i] = rewards.Event{Amount: reward.Amount, At: reward.At}
	}
	summary.EffectiveAPY = e.rewards.EffectiveAPY(summary.TotalStaked, observed)
	estimate, err := rewards.ProjectInt(summary.TotalStaked, summary.EffectiveAPY)
	if err != nil {
		return nil, err
	}
	summary.DailyEstimate = estimate.Daily
	summary.History = rewards.DailyTotals(observed, since)
	return summary, nil
}

// Drift compares the ledger's staked balance for an account with the stake
// tracked locally.
type Drift struct {
	Account string      `json:"account"`
	Ledger  sdkmath.Int `json:"ledger_staked"`
	Local   sdkmath.Int `json:"local_staked"`
	Delta   sdkmath.Int `json:"delta"`
	InSync  bool        `json:"in_sync"`
}

// CheckDrift queries the ledger's staked balance and compares it with local
// state. Local stake is the principal of open positions plus unbonding
// entries not yet withdrawn, since the ledger holds both. A positive delta
// means the ledger holds more than the engine recorded.
func (e *Engine) CheckDrift(ctx context.Context, account string) (*Drift, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	owner, err := common.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	positions, entries, err := e.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	onLedger, err := e.ledger.QueryStakedBalance(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("staking: query staked balance: %w", err)
	}
	local := sdkmath.ZeroInt()
	for _, position := range positions {
		if position.Status != StatusClosed {
			local = local.Add(common.ZeroIfNil(position.Principal))
		}
	}
	for _, entry := range entries {
		local = local.Add(common.ZeroIfNil(entry.Amount))
	}
	onLedger = common.ZeroIfNil(onLedger)
	delta := onLedger.Sub(local)
	return &Drift{
		Account: owner,
		Ledger:  onLedger,
		Local:   local,
		Delta:   delta,
		InSync:  delta.IsZero(),
	}, nil
}

// Validator sort orders.
const (
	SortByAPY        = "apy"
	SortByCommission = "commission"
	SortByStake      = "stake"
)

// Validators lists active validators with their derived stake, ordered by
// sortBy. An empty sortBy orders by APY.
func (e *Engine) Validators(ctx context.Context, sortBy string) ([]*Validator, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	order := strings.ToLower(strings.TrimSpace(sortBy))
	switch order {
	case "":
		order = SortByAPY
	case SortByAPY, SortByCommission, SortByStake:
	default:
		return nil, stakeerrors.InvalidArgument("unknown validator sort %q", sortBy)
	}
	listed, err := e.directory.ListActiveValidators(ctx)
	if err != nil {
		return nil, fmt.Errorf("staking: list validators: %w", err)
	}
	stakes, err := e.state.StakeByValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("staking: aggregate stake: %w", err)
	}
	out := make([]*Validator, 0, len(listed))
	for _, v := range listed {
		if v == nil || !v.Active {
			continue
		}
		view := *v
		view.DelegatedStake = sdkmath.ZeroInt()
		view.Nominators = 0
		if stake, ok := stakes[v.Address]; ok {
			view.DelegatedStake = common.ZeroIfNil(stake.Amount)
			view.Nominators = stake.Nominators
		}
		out = append(out, &view)
	}
	sortValidators(out, order)
	return out, nil
}

// Validator returns one directory entry with its derived stake. Inactive
// validators are returned with Active unset.
func (e *Engine) Validator(ctx context.Context, address string) (*Validator, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	addr, err := common.NormalizeAccount(address)
	if err != nil {
		return nil, err
	}
	v, ok, err := e.directory.GetValidator(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("staking: load validator: %w", err)
	}
	if !ok || v == nil {
		return nil, fmt.Errorf("staking: validator %s: %w", addr, stakeerrors.ErrNotFound)
	}
	stakes, err := e.state.StakeByValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("staking: aggregate stake: %w", err)
	}
	view := *v
	view.DelegatedStake = sdkmath.ZeroInt()
	view.Nominators = 0
	if stake, ok := stakes[addr]; ok {
		view.DelegatedStake = common.ZeroIfNil(stake.Amount)
		view.Nominators = stake.Nominators
	}
	return &view, nil
}

func sortValidators(validators []*Validator, order string) {
	sort.SliceStable(validators, func(i, j int) bool {
		a, b := validators[i], validators[j]
		switch order {
		case SortByCommission:
			if a.CommissionBps != b.CommissionBps {
				return a.CommissionBps < b.CommissionBps
			}
		case SortByStake:
			as, bs := common.ZeroIfNil(a.DelegatedStake), common.ZeroIfNil(b.DelegatedStake)
			if !as.Equal(bs) {
				return as.GT(bs)
			}
		default:
			if a.APY != b.APY {
				return a.APY > b.APY
			}
		}
		return a.Address < b.Address
	})
}
