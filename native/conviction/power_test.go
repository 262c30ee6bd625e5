package conviction

import (
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	stakeerrors "stakegov/core/errors"
)

func TestMultiplierTable(t *testing.T) {
	cases := []struct {
		level    Level
		want     sdkmath.LegacyDec
		lockDays int
	}{
		{0, sdkmath.LegacyNewDecWithPrec(1, 1), 0},
		{1, sdkmath.LegacyNewDec(1), 7},
		{2, sdkmath.LegacyNewDec(2), 14},
		{3, sdkmath.LegacyNewDec(3), 28},
		{4, sdkmath.LegacyNewDec(4), 56},
		{5, sdkmath.LegacyNewDec(5), 112},
		{6, sdkmath.LegacyNewDec(6), 224},
	}
	for _, tc := range cases {
		got, err := Multiplier(tc.level)
		require.NoError(t, err)
		require.True(t, tc.want.Equal(got), "level %d multiplier %s", tc.level, got)

		duration, err := LockDuration(tc.level)
		require.NoError(t, err)
		require.Equal(t, time.Duration(tc.lockDays)*24*time.Hour, duration)
	}
}

func TestInvalidLevelRejected(t *testing.T) {
	_, err := Multiplier(7)
	require.ErrorIs(t, err, stakeerrors.ErrInvalidArgument)
	_, err = LockDuration(200)
	require.ErrorIs(t, err, stakeerrors.ErrInvalidArgument)
	_, err = ParseLevel(-1)
	require.ErrorIs(t, err, stakeerrors.ErrInvalidArgument)
	level, err := ParseLevel(4)
	require.NoError(t, err)
	require.Equal(t, Level(4), level)
}

func TestPowerRejectsNegativeBalance(t *testing.T) {
	_, err := Power(sdkmath.NewInt(-1), 1)
	require.True(t, errors.Is(err, stakeerrors.ErrInvalidArgument))

	power, err := Power(sdkmath.NewInt(200), 3)
	require.NoError(t, err)
	require.True(t, sdkmath.LegacyNewDec(600).Equal(power))

	power, err = Power(sdkmath.NewInt(1000), 0)
	require.NoError(t, err)
	require.True(t, sdkmath.LegacyNewDec(100).Equal(power))
}

func TestLevelsListing(t *testing.T) {
	levels := Levels()
	require.Len(t, levels, int(MaxLevel)+1)
	require.Equal(t, 224, levels[6].LockDays)
}

func TestPowerMonotonicInLevel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		balance := sdkmath.NewInt(rapid.Int64Range(1, 1<<50).Draw(t, "balance"))
		low := Level(rapid.IntRange(0, int(MaxLevel)-1).Draw(t, "low"))
		high := Level(rapid.IntRange(int(low)+1, int(MaxLevel)).Draw(t, "high"))

		lowPower, err := Power(balance, low)
		if err != nil {
			t.Fatalf("power low: %v", err)
		}
		highPower, err := Power(balance, high)
		if err != nil {
			t.Fatalf("power high: %v", err)
		}
		if !highPower.GT(lowPower) {
			t.Fatalf("power(%s,%d)=%s not above power(%s,%d)=%s", balance, high, highPower, balance, low, lowPower)
		}
		lowLock, _ := LockDuration(low)
		highLock, _ := LockDuration(high)
		if highLock <= lowLock {
			t.Fatalf("lock duration not increasing: %s <= %s", highLock, lowLock)
		}
	})
}
