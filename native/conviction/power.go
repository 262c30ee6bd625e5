// Package conviction implements conviction voting arithmetic and the locks
// that back it. Power calculations are pure; the lock manager persists locks
// through an injected state backend.
package conviction

import (
	"time"

	sdkmath "cosmossdk.io/math"

	stakeerrors "stakegov/core/errors"
)

// Level is a conviction level in the range [0, MaxLevel]. Level 0 means no
// lock and a 0.1x multiplier; level n>0 multiplies by n and locks the funds
// for BaseLockPeriod * 2^(n-1).
type Level uint8

const (
	// MaxLevel is the highest supported conviction level.
	MaxLevel Level = 6
	// BaseLockPeriod is the lock duration bound to level 1.
	BaseLockPeriod = 7 * 24 * time.Hour
)

// Valid reports whether the level is within the supported range.
func (l Level) Valid() bool { return l <= MaxLevel }

// ParseLevel converts a raw integer into a Level.
func ParseLevel(raw int) (Level, error) {
	if raw < 0 || raw > int(MaxLevel) {
		return 0, stakeerrors.InvalidArgument("conviction level %d outside [0, %d]", raw, MaxLevel)
	}
	return Level(raw), nil
}

// Multiplier returns the voting power multiplier bound to level.
func Multiplier(level Level) (sdkmath.LegacyDec, error) {
	if !level.Valid() {
		return sdkmath.LegacyDec{}, stakeerrors.InvalidArgument("conviction level %d outside [0, %d]", level, MaxLevel)
	}
	if level == 0 {
		return sdkmath.LegacyNewDecWithPrec(1, 1), nil
	}
	return sdkmath.LegacyNewDec(int64(level)), nil
}

// LockDuration returns how long funds stay locked at level. Level 0 does not
// lock.
func LockDuration(level Level) (time.Duration, error) {
	if !level.Valid() {
		return 0, stakeerrors.InvalidArgument("conviction level %d outside [0, %d]", level, MaxLevel)
	}
	if level == 0 {
		return 0, nil
	}
	return BaseLockPeriod << (level - 1), nil
}

// Power returns balance weighted by the level multiplier.
func Power(balance sdkmath.Int, level Level) (sdkmath.LegacyDec, error) {
	if balance.IsNil() || balance.IsNegative() {
		return sdkmath.LegacyDec{}, stakeerrors.InvalidArgument("balance must not be negative")
	}
	multiplier, err := Multiplier(level)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	return multiplier.MulInt(balance), nil
}

// LevelInfo describes a conviction level for display.
type LevelInfo struct {
	Level      Level             `json:"level"`
	Multiplier sdkmath.LegacyDec `json:"multiplier"`
	LockDays   int               `json:"lock_days"`
}

// Levels lists every supported level in ascending order.
func Levels() []LevelInfo {
	out := make([]LevelInfo, 0, int(MaxLevel)+1)
	for level := Level(0); level <= MaxLevel; level++ {
		multiplier, _ := Multiplier(level)
		duration, _ := LockDuration(level)
		out = append(out, LevelInfo{
			Level:      level,
			Multiplier: multiplier,
			LockDays:   int(duration / (24 * time.Hour)),
		})
	}
	return out
}
