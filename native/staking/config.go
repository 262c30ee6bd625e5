package staking

import (
	"fmt"
	"time"
)

// Config controls the staking lifecycle.
type Config struct {
	UnbondingPeriod time.Duration
	// AutoSelectCount is how many validators receive a share of stake when
	// the caller does not name one.
	AutoSelectCount int
	// HistoryWindow bounds the reward history used for APY and summaries.
	HistoryWindow time.Duration
}

// DefaultConfig returns the production lifecycle parameters.
func DefaultConfig() Config {
	return Config{
		UnbondingPeriod: 28 * 24 * time.Hour,
		AutoSelectCount: 3,
		HistoryWindow:   30 * 24 * time.Hour,
	}
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	if c.UnbondingPeriod <= 0 {
		return fmt.Errorf("staking: unbonding period must be positive")
	}
	if c.AutoSelectCount <= 0 {
		return fmt.Errorf("staking: auto select count must be positive")
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("staking: history window must be positive")
	}
	return nil
}
