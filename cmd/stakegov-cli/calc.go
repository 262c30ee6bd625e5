package main

import (
	"fmt"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/spf13/cobra"

	"stakegov/native/conviction"
	"stakegov/native/rewards"
)

func newEstimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate [amount] [apy]",
		Short: "Project daily, monthly and yearly rewards",
		Long: `Project rewards for a staked amount at an APY percentage.

Example:
  $ stakegov-cli estimate 1000 12.5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(strings.TrimSpace(args[0]), 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			apy, err := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
			if err != nil {
				return fmt.Errorf("invalid apy %q: %w", args[1], err)
			}
			estimate, err := rewards.Project(amount, apy)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), estimate)
		},
	}
}

type powerOutput struct {
	Balance    string `json:"balance"`
	Level      uint8  `json:"level"`
	Multiplier string `json:"multiplier"`
	Power      string `json:"power"`
	LockDays   int    `json:"lock_days"`
}

func newPowerCmd() *cobra.Command {
	var level int
	cmd := &cobra.Command{
		Use:   "power [balance]",
		Short: "Compute conviction-weighted voting power",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			balance, ok := sdkmath.NewIntFromString(strings.TrimSpace(args[0]))
			if !ok {
				return fmt.Errorf("invalid balance %q", args[0])
			}
			lvl, err := conviction.ParseLevel(level)
			if err != nil {
				return err
			}
			power, err := conviction.Power(balance, lvl)
			if err != nil {
				return err
			}
			multiplier, _ := conviction.Multiplier(lvl)
			duration, _ := conviction.LockDuration(lvl)
			return printJSON(cmd.OutOrStdout(), powerOutput{
				Balance:    balance.String(),
				Level:      uint8(lvl),
				Multiplier: multiplier.String(),
				Power:      power.String(),
				LockDays:   int(duration.Hours() / 24),
			})
		},
	}
	cmd.Flags().IntVar(&level, "level", 0, "conviction level (0-6)")
	return cmd
}

func newLevelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "levels",
		Short: "List conviction levels with multipliers and lock periods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), conviction.Levels())
		},
	}
}
