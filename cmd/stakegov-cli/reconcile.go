package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"stakegov/ledger"
	"stakegov/native/staking"
	"stakegov/storage/journal"
	"stakegov/storage/sqlstore"
)

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Inspect ledger/state inconsistencies awaiting repair",
	}
	cmd.PersistentFlags().StringVar(&path, "journal", "", "journal directory; overrides config")

	open := func() (*journal.Journal, error) {
		if path == "" {
			cfg, err := opts.load()
			if err != nil {
				return nil, err
			}
			path = cfg.Journal.Path
		}
		if path == "" {
			return nil, fmt.Errorf("journal path not configured")
		}
		return journal.Open(path)
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List journaled inconsistencies, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()
			entries, err := j.List(commandContext(cmd), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	list.Flags().IntVar(&limit, "limit", 0, "maximum entries to print (0 for all)")

	resolve := &cobra.Command{
		Use:   "resolve [key]",
		Short: "Remove an entry after the local record was repaired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()
			if err := j.Resolve(commandContext(cmd), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, resolve, newDriftCmd(opts))
	return cmd
}

func newDriftCmd(opts *rootOptions) *cobra.Command {
	var driver, dsn, endpoint string
	cmd := &cobra.Command{
		Use:   "drift [account...]",
		Short: "Compare ledger staked balances with local positions",
		Long: `Query the ledger's staked balance of each account and compare it with the
principal and pending unbonding recorded locally. Exits non-zero when any
account is out of sync.

Example:
  $ stakegov-cli reconcile drift alice bob --ledger http://localhost:8545`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			if endpoint == "" {
				endpoint = cfg.Ledger.Endpoint
			}
			ctx := commandContext(cmd)
			store, err := sqlstore.Open(driver, dsn)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			client, err := ledger.DialRPC(ctx, ledger.RPCConfig{
				Endpoint: endpoint,
				Timeout:  cfg.Ledger.Timeout.Duration,
				Headers:  cfg.Ledger.Headers,
			})
			if err != nil {
				return err
			}
			defer client.Close()

			engine := staking.NewEngine(store, store, client, cfg.StakingParams())
			report := make([]*staking.Drift, 0, len(args))
			drifted := 0
			for _, account := range args {
				drift, err := engine.CheckDrift(ctx, account)
				if err != nil {
					return fmt.Errorf("check %s: %w", account, err)
				}
				if !drift.InSync {
					drifted++
				}
				report = append(report, drift)
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if drifted > 0 {
				return fmt.Errorf("%d of %d accounts out of sync with the ledger", drifted, len(report))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "", "database driver (sqlite or postgres); overrides config")
	cmd.Flags().StringVar(&dsn, "dsn", "", "database DSN; overrides config")
	cmd.Flags().StringVar(&endpoint, "ledger", "", "ledger JSON-RPC endpoint; overrides config")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
