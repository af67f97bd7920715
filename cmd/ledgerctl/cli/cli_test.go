package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/fixture"
)

func run(t *testing.T, env cli.Env, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	env.Stdout = &stdout
	env.Stderr = &stderr
	cmd := cli.NewRootCommand(env)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func ledgerEnv(t *testing.T) (cli.Env, *accounting.Ledger) {
	t.Helper()
	ledger := fixture.Ledger(t, accounting.Options{})
	fixture.PostJanuary(t, ledger)
	return cli.Env{
		OpenLedger: func(context.Context) (*accounting.Ledger, func(), error) {
			return ledger, func() {}, nil
		},
	}, ledger
}

func TestAggregateThenTrialBalanceJSON(t *testing.T) {
	env, _ := ledgerEnv(t)

	out, err := run(t, env, "aggregate", "--fy", "2024", "--month", "1")
	require.NoError(t, err)
	require.Contains(t, out, "aggregated 2024-01")

	out, err = run(t, env, "trial-balance", "--fy", "2024", "--month", "1", "--json")
	require.NoError(t, err)

	var tb reports.TrialBalance
	require.NoError(t, json.Unmarshal([]byte(out), &tb))
	require.True(t, tb.IsBalanced())
	fixture.RequireAmount(t, 180000, tb.TotalDebit)
	fixture.RequireAmount(t, 180000, tb.TotalCredit)
}

func TestTrialBalanceTable(t *testing.T) {
	env, _ := ledgerEnv(t)
	_, err := run(t, env, "aggregate", "--fy", "2024", "--month", "1")
	require.NoError(t, err)

	out, err := run(t, env, "trial-balance", "--fy", "2024", "--month", "1")
	require.NoError(t, err)
	require.Contains(t, out, "FY2024-01")
	require.Contains(t, out, "11110")
	require.Contains(t, out, "70000")
}

func TestCarryForwardOpensNextMonth(t *testing.T) {
	env, ledger := ledgerEnv(t)
	_, err := run(t, env, "aggregate", "--fy", "2024", "--month", "1")
	require.NoError(t, err)

	out, err := run(t, env, "carry-forward", "--fy", "2024", "--month", "1")
	require.NoError(t, err)
	require.Contains(t, out, "carried 2024-01 forward")

	feb, err := ledger.Balances.FindMonthly(context.Background(), fixture.MonthlyKey(2024, 2, "11110"))
	require.NoError(t, err)
	fixture.RequireAmount(t, 70000, feb.OpeningBalance)
}

func TestIntegrityReportsCleanLedger(t *testing.T) {
	env, _ := ledgerEnv(t)
	out, err := run(t, env, "integrity", "--from", "2025-01-01", "--to", "2025-01-31")
	require.NoError(t, err)
	require.Contains(t, out, "0 drifted")
}

func TestIntegrityRejectsBadDate(t *testing.T) {
	env, _ := ledgerEnv(t)
	_, err := run(t, env, "integrity", "--from", "2025/01/01", "--to", "2025-01-31")
	require.ErrorContains(t, err, "--from")
}

func TestAggregateRejectsMonthOutOfRange(t *testing.T) {
	env, _ := ledgerEnv(t)
	_, err := run(t, env, "aggregate", "--fy", "2024", "--month", "13")
	require.Error(t, err)
}

func TestEnqueueWithoutQueue(t *testing.T) {
	env, _ := ledgerEnv(t)
	_, err := run(t, env, "aggregate", "--fy", "2024", "--month", "1", "--enqueue")
	require.ErrorContains(t, err, "job queue not configured")

	_, err = run(t, env, "jobs", "stats")
	require.ErrorContains(t, err, "job queue not configured")
}

func TestNewJobsCLIRequiresAddress(t *testing.T) {
	_, err := cli.NewJobsCLI("")
	require.Error(t, err)
}
