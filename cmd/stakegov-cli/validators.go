package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"stakegov/native/common"
	"stakegov/native/staking"
	"stakegov/storage/sqlstore"
)

// validatorEntry is one record of an import file. JSON files decode through
// the YAML parser.
type validatorEntry struct {
	Address       string  `yaml:"address" json:"address"`
	Name          string  `yaml:"name" json:"name"`
	CommissionBps uint32  `yaml:"commission_bps" json:"commission_bps"`
	APY           float64 `yaml:"apy" json:"apy"`
	Active        *bool   `yaml:"active" json:"active"`
}

type validatorFile struct {
	Validators []validatorEntry `yaml:"validators" json:"validators"`
}

func newValidatorsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validators",
		Short: "Manage the validator directory",
	}
	cmd.AddCommand(newValidatorsImportCmd(opts))
	return cmd
}

func newValidatorsImportCmd(opts *rootOptions) *cobra.Command {
	var driver, dsn string
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Upsert validators from a YAML or JSON file",
		Long: `Upsert validators into the SQL directory. The file holds a top-level
"validators" list; entries without "active" are imported as active.

Example:
  $ stakegov-cli validators import validators.yaml --driver sqlite --dsn stakegov.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			validators, err := readValidators(args[0])
			if err != nil {
				return err
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if driver == "" {
				driver = cfg.Database.Driver
			}
			if dsn == "" {
				dsn = cfg.Database.DSN
			}
			store, err := sqlstore.Open(driver, dsn)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := commandContext(cmd)
			for _, v := range validators {
				if err := store.UpsertValidator(ctx, v); err != nil {
					return fmt.Errorf("upsert %s: %w", v.Address, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d validators\n", len(validators))
			return nil
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "", "database driver (sqlite or postgres); overrides config")
	cmd.Flags().StringVar(&dsn, "dsn", "", "database DSN; overrides config")
	return cmd
}

func readValidators(path string) ([]*staking.Validator, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var file validatorFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(file.Validators) == 0 {
		return nil, fmt.Errorf("%s lists no validators", path)
	}
	seen := make(map[string]struct{}, len(file.Validators))
	out := make([]*staking.Validator, 0, len(file.Validators))
	for i, entry := range file.Validators {
		address, err := common.NormalizeAccount(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("validator %d: %w", i, err)
		}
		if _, dup := seen[address]; dup {
			return nil, fmt.Errorf("validator %s listed twice", address)
		}
		seen[address] = struct{}{}
		if entry.CommissionBps > 10_000 {
			return nil, fmt.Errorf("validator %s: commission_bps %d exceeds 10000", address, entry.CommissionBps)
		}
		if entry.APY < 0 {
			return nil, fmt.Errorf("validator %s: apy must not be negative", address)
		}
		active := true
		if entry.Active != nil {
			active = *entry.Active
		}
		out = append(out, &staking.Validator{
			Address:       address,
			Name:          strings.TrimSpace(entry.Name),
			CommissionBps: entry.CommissionBps,
			APY:           entry.APY,
			Active:        active,
		})
	}
	return out, nil
}
