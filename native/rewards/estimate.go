package rewards

import (
	"math"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"

	stakeerrors "stakegov/core/errors"
)

// Estimate projects rewards for an amount at a given APY.
type Estimate struct {
	Daily        float64 `json:"daily"`
	Monthly      float64 `json:"monthly"`
	Yearly       float64 `json:"yearly"`
	EffectiveAPY float64 `json:"effective_apy"`
}

// Event is a reward credited by the ledger.
type Event struct {
	Amount sdkmath.Int
	At     time.Time
}

// Project returns the reward estimate for amount at apy percent.
//
//	daily   = amount * apy / 365 / 100
//	monthly = daily * 30
//	yearly  = amount * apy / 100
func Project(amount, apy float64) (Estimate, error) {
	if !finiteNonNegative(amount) {
		return Estimate{}, stakeerrors.InvalidArgument("amount must be a finite non-negative number")
	}
	if !finiteNonNegative(apy) {
		return Estimate{}, stakeerrors.InvalidArgument("apy must be a finite non-negative number")
	}
	daily := amount * apy / DaysPerYear / 100
	return Estimate{
		Daily:        daily,
		Monthly:      daily * DaysPerMonth,
		Yearly:       amount * apy / 100,
		EffectiveAPY: apy,
	}, nil
}

// ProjectInt is Project for an integer token amount.
func ProjectInt(amount sdkmath.Int, apy float64) (Estimate, error) {
	return Project(ToFloat(amount), apy)
}

// EffectiveAPY annualizes the average daily reward of history relative to
// staked and clamps the result to the configured bounds. Rewards are
// bucketed per UTC day. An empty history or zero stake yields DefaultAPY.
func (c Config) EffectiveAPY(staked sdkmath.Int, history []Event) float64 {
	stakedF := ToFloat(staked)
	if stakedF <= 0 || len(history) == 0 {
		return c.DefaultAPY
	}
	days := make(map[string]float64)
	for _, evt := range history {
		if evt.Amount.IsNil() || evt.Amount.IsNegative() {
			continue
		}
		days[evt.At.UTC().Format(time.DateOnly)] += ToFloat(evt.Amount)
	}
	if len(days) == 0 {
		return c.DefaultAPY
	}
	total := 0.0
	for _, amount := range days {
		total += amount
	}
	avgDaily := total / float64(len(days))
	apy := avgDaily * DaysPerYear / stakedF * 100
	return c.clamp(apy)
}

func (c Config) clamp(apy float64) float64 {
	if math.IsNaN(apy) {
		return c.DefaultAPY
	}
	if apy < c.MinAPY {
		return c.MinAPY
	}
	if apy > c.MaxAPY {
		return c.MaxAPY
	}
	return apy
}

// DailyTotal is one UTC day of reward history.
type DailyTotal struct {
	Day    string      `json:"day"`
	Amount sdkmath.Int `json:"amount"`
}

// DailyTotals groups history by UTC day in ascending order, keeping only days
// on or after since.
func DailyTotals(history []Event, since time.Time) []DailyTotal {
	buckets := make(map[string]sdkmath.Int)
	for _, evt := range history {
		if evt.Amount.IsNil() || evt.At.Before(since) {
			continue
		}
		day := evt.At.UTC().Format(time.DateOnly)
		current, ok := buckets[day]
		if !ok {
			current = sdkmath.ZeroInt()
		}
		buckets[day] = current.Add(evt.Amount)
	}
	out := make([]DailyTotal, 0, len(buckets))
	for day, amount := range buckets {
		out = append(out, DailyTotal{Day: day, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// ToFloat converts a token amount for display arithmetic.
func ToFloat(amount sdkmath.Int) float64 {
	if amount.IsNil() {
		return 0
	}
	value, err := sdkmath.LegacyNewDecFromInt(amount).Float64()
	if err != nil {
		return 0
	}
	return value
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
