package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"stakegov/ledger/ledgertest"
	"stakegov/native/common"
	"stakegov/native/rewards"
	"stakegov/native/staking"
	"stakegov/storage/journal"
	"stakegov/storage/sqlstore"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommandConstruction(t *testing.T) {
	root := newRootCmd()
	var walk func(cmd *cobra.Command)
	walk = func(cmd *cobra.Command) {
		require.NotEmpty(t, cmd.Use)
		require.NotEmpty(t, cmd.Short, cmd.Use)
		for _, child := range cmd.Commands() {
			walk(child)
		}
	}
	walk(root)
}

func TestEstimate(t *testing.T) {
	out, err := run(t, "estimate", "1000", "12.5")
	require.NoError(t, err)
	var estimate rewards.Estimate
	require.NoError(t, json.Unmarshal([]byte(out), &estimate))
	require.InDelta(t, 125.0, estimate.Yearly, 1e-9)
	require.InDelta(t, 1000*12.5/365/100, estimate.Daily, 1e-9)

	_, err = run(t, "estimate", "-5", "10")
	require.Error(t, err)
	_, err = run(t, "estimate", "abc", "10")
	require.Error(t, err)
}

func TestPower(t *testing.T) {
	out, err := run(t, "power", "100", "--level", "3")
	require.NoError(t, err)
	var got powerOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "300.000000000000000000", got.Power)
	require.Equal(t, 28, got.LockDays)

	out, err = run(t, "power", "100")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "10.000000000000000000", got.Power)
	require.Zero(t, got.LockDays)

	_, err = run(t, "power", "100", "--level", "7")
	require.Error(t, err)
}

func TestLevels(t *testing.T) {
	out, err := run(t, "levels")
	require.NoError(t, err)
	var levels []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &levels))
	require.Len(t, levels, 7)
}

func TestValidatorsImport(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "validators.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`validators:
  - address: val-a
    name: Alpha
    commission_bps: 500
    apy: 14
  - address: val-b
    name: Beta
    apy: 11
    active: false
`), 0o600))
	dsn := filepath.Join(dir, "stakegov.db")

	out, err := run(t, "validators", "import", file, "--driver", "sqlite", "--dsn", dsn)
	require.NoError(t, err)
	require.Contains(t, out, "imported 2 validators")

	store, err := sqlstore.Open(sqlstore.DriverSQLite, dsn)
	require.NoError(t, err)
	defer store.Close()
	active, err := store.ListActiveValidators(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "val-a", active[0].Address)
	require.EqualValues(t, 500, active[0].CommissionBps)
}

func TestValidatorsImportRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"duplicate.json":  `{"validators":[{"address":"val-a"},{"address":"val-a"}]}`,
		"empty.yaml":      `validators: []`,
		"commission.yaml": "validators:\n  - address: val-a\n    commission_bps: 20000\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, err := readValidators(path)
		require.Error(t, err, name)
	}
}

func TestReconcileListAndResolve(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reconcile")
	j, err := journal.Open(dir)
	require.NoError(t, err)
	require.NoError(t, j.Append(context.Background(), common.Inconsistency{
		Op:         "stake",
		Account:    "alice",
		TxID:       "tx-000001",
		Detail:     "persist positions",
		Cause:      "disk full",
		RecordedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, j.Close())

	out, err := run(t, "reconcile", "list", "--journal", dir)
	require.NoError(t, err)
	var entries []journal.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "tx-000001", entries[0].TxID)

	out, err = run(t, "reconcile", "resolve", entries[0].Key, "--journal", dir)
	require.NoError(t, err)
	require.Contains(t, out, "resolved")

	out, err = run(t, "reconcile", "list", "--journal", dir)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Empty(t, entries)
}

// stakedLedger answers ledger_getStakedBalance from a fixed table.
type stakedLedger map[string]string

func (l stakedLedger) GetStakedBalance(account string) (string, error) {
	if v, ok := l[account]; ok {
		return v, nil
	}
	return "0", nil
}

func TestReconcileDrift(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "stakegov.db")
	store, err := sqlstore.Open(sqlstore.DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, store.UpsertValidator(ctx, &staking.Validator{Address: "val-a", APY: 12, Active: true}))
	engine := staking.NewEngine(store, store, ledgertest.New(), staking.DefaultConfig())
	for _, account := range []string{"alice", "bob"} {
		_, err := engine.Stake(ctx, staking.StakeRequest{Account: account, Amount: sdkmath.NewInt(100), Validator: "val-a"})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("ledger", stakedLedger{"alice": "100", "bob": "150"}))
	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		httpServer.Close()
		server.Stop()
	})

	args := []string{"--driver", "sqlite", "--dsn", dsn, "--ledger", httpServer.URL}
	out, err := run(t, append([]string{"reconcile", "drift", "alice"}, args...)...)
	require.NoError(t, err)
	var report []staking.Drift
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report, 1)
	require.True(t, report[0].InSync)

	out, err = run(t, append([]string{"reconcile", "drift", "alice", "bob"}, args...)...)
	require.ErrorContains(t, err, "1 of 2 accounts out of sync")
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, "50", report[1].Delta.String())
}
