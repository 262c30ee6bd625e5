// Package rewards estimates staking returns. Everything here is a display
// aid: the ledger remains the authority on what is actually paid.
package rewards

import (
	"fmt"
	"math"
)

const (
	DaysPerYear  = 365
	DaysPerMonth = 30
)

// Config bounds the effective APY shown to users.
type Config struct {
	// DefaultAPY is reported when there is no reward history or no stake.
	DefaultAPY float64
	// MinAPY and MaxAPY clamp the APY derived from observed rewards.
	MinAPY float64
	MaxAPY float64
}

// DefaultConfig returns the production bounds.
func DefaultConfig() Config {
	return Config{DefaultAPY: 12.5, MinAPY: 8, MaxAPY: 20}
}

// Validate ensures the configuration is internally consistent.
func (c Config) Validate() error {
	for name, value := range map[string]float64{"default": c.DefaultAPY, "min": c.MinAPY, "max": c.MaxAPY} {
		if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
			return fmt.Errorf("rewards: %s apy must be a finite non-negative number", name)
		}
	}
	if c.MinAPY > c.MaxAPY {
		return fmt.Errorf("rewards: min apy %.2f exceeds max apy %.2f", c.MinAPY, c.MaxAPY)
	}
	if c.DefaultAPY < c.MinAPY || c.DefaultAPY > c.MaxAPY {
		return fmt.Errorf("rewards: default apy %.2f outside [%.2f, %.2f]", c.DefaultAPY, c.MinAPY, c.MaxAPY)
	}
	return nil
}
