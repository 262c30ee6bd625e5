package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"stakegov/services/stakingd/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "stakegov-cli",
		Short:         "Operator tooling for the staking and governance engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to stakingd configuration (defaults plus environment when empty)")

	root.AddCommand(
		newEstimateCmd(),
		newPowerCmd(),
		newLevelsCmd(),
		newValidatorsCmd(opts),
		newReconcileCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (config.Config, error) {
	if strings.TrimSpace(o.configPath) == "" {
		cfg := config.Default()
		cfg.ApplyEnv(os.Getenv)
		return cfg, nil
	}
	return config.Load(o.configPath)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
