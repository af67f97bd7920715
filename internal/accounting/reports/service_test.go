package reports_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/fixture"
)

func closedJanuary(t *testing.T, opts accounting.Options) *accounting.Ledger {
	t.Helper()
	ledger := fixture.Ledger(t, opts)
	fixture.PostJanuary(t, ledger)
	_, _, err := ledger.CloseMonth(context.Background(), periods.Period{FiscalYear: 2024, Month: 1})
	require.NoError(t, err)
	return ledger
}

func TestTrialBalanceRollsUpHierarchy(t *testing.T) {
	ledger := closedJanuary(t, accounting.Options{})

	tb, err := ledger.Reports.TrialBalance(context.Background(), 2024, 1, "")
	require.NoError(t, err)
	require.True(t, tb.IsBalanced())
	fixture.RequireAmount(t, 180000, tb.TotalDebit)
	fixture.RequireAmount(t, 180000, tb.TotalCredit)
	fixture.RequireAmount(t, 150000, tb.TotalClosingDebit)
	fixture.RequireAmount(t, 150000, tb.TotalClosingCredit)

	codes := make([]string, 0, len(tb.Lines))
	for _, l := range tb.Lines {
		codes = append(codes, l.AccountCode)
	}
	want := []string{"10000", "11110", "11200", "30000", "31100", "40000", "41100", "50000", "51100"}
	if diff := cmp.Diff(want, codes); diff != "" {
		t.Fatalf("trial balance rows mismatch (-want +got):\n%s", diff)
	}
	assets := tb.Lines[0]
	require.True(t, assets.Summary)
	require.Equal(t, 1, assets.Depth)
	fixture.RequireAmount(t, 120000, assets.Closing.Decimal)
	require.Equal(t, 2, tb.Lines[1].Depth)

	feb, err := ledger.Reports.TrialBalance(context.Background(), 2024, 2, "")
	require.NoError(t, err)
	require.True(t, feb.IsBalanced())
	fixture.RequireAmount(t, 150000, feb.TotalOpeningDebit)
	fixture.RequireAmount(t, 0, feb.TotalDebit)
}

func TestTrialBalanceFilter(t *testing.T) {
	ledger := closedJanuary(t, accounting.Options{})

	tb, err := ledger.Reports.TrialBalance(context.Background(), 2024, 1, accounts.BalanceSheet)
	require.NoError(t, err)
	for _, l := range tb.Lines {
		require.Equal(t, accounts.BalanceSheet, l.BSPL, l.AccountCode)
	}

	_, err = ledger.Reports.TrialBalance(context.Background(), 2024, 1, accounts.BSPL("XX"))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = ledger.Reports.TrialBalance(context.Background(), 2024, 13, "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestGeneralLedgerOpeningIncludesEarlierDays(t *testing.T) {
	ledger := closedJanuary(t, accounting.Options{})

	gl, err := ledger.Reports.GeneralLedger(context.Background(), "11110", fixture.Day(2025, time.January, 12), fixture.Day(2025, time.January, 31))
	require.NoError(t, err)
	fixture.RequireAmount(t, 100000, gl.OpeningBalance)
	require.Len(t, gl.Entries, 1)
	require.Equal(t, "J00002", gl.Entries[0].VoucherNumber)
	fixture.RequireAmount(t, 70000, gl.Entries[0].Balance)
	fixture.RequireAmount(t, 70000, gl.ClosingBalance)

	full, err := ledger.Reports.GeneralLedger(context.Background(), "11110", fixture.Day(2025, time.January, 1), fixture.Day(2025, time.January, 31))
	require.NoError(t, err)
	fixture.RequireAmount(t, 0, full.OpeningBalance)
	require.Len(t, full.Entries, 2)
	fixture.RequireAmount(t, 100000, full.TotalDebit)
	fixture.RequireAmount(t, 30000, full.TotalCredit)
}

func TestGeneralLedgerCreditAccountIsDebitPositive(t *testing.T) {
	ledger := closedJanuary(t, accounting.Options{})

	gl, err := ledger.Reports.GeneralLedger(context.Background(), "31100", fixture.Day(2025, time.February, 1), fixture.Day(2025, time.February, 28))
	require.NoError(t, err)
	fixture.RequireAmount(t, -100000, gl.OpeningBalance)
	require.Empty(t, gl.Entries)
	fixture.RequireAmount(t, -100000, gl.ClosingBalance)

	_, err = ledger.Reports.GeneralLedger(context.Background(), "99999", fixture.Day(2025, time.February, 1), fixture.Day(2025, time.February, 28))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDailyReport(t *testing.T) {
	ledger := closedJanuary(t, accounting.Options{})

	report, err := ledger.Reports.DailyReport(context.Background(), fixture.Day(2025, time.January, 15))
	require.NoError(t, err)
	require.True(t, report.IsBalanced())
	require.Len(t, report.Lines, 2)
	require.Equal(t, "11110", report.Lines[0].AccountCode)
	require.Equal(t, shared.Debit, report.Lines[0].Side)
	fixture.RequireAmount(t, -30000, report.Lines[0].Balance())
	fixture.RequireAmount(t, 30000, report.Lines[1].Balance())
}

func TestBalanceSheetAndIncomeStatement(t *testing.T) {
	ledger := closedJanuary(t, accounting.Options{})
	ctx := context.Background()

	for _, asOf := range []time.Time{fixture.Day(2025, time.January, 31), fixture.Day(2025, time.February, 10)} {
		bs, err := ledger.Reports.BalanceSheet(ctx, asOf)
		require.NoError(t, err)
		require.True(t, bs.IsBalanced(), asOf)
		fixture.RequireAmount(t, 120000, bs.Assets.Total)
		fixture.RequireAmount(t, 20000, bs.NetIncome)
		fixture.RequireAmount(t, 120000, bs.Equity.Total)
	}

	pl, err := ledger.Reports.IncomeStatement(ctx, 2024, 1, 1)
	require.NoError(t, err)
	fixture.RequireAmount(t, 50000, pl.Revenue.Total)
	fixture.RequireAmount(t, 30000, pl.Expenses.Total)
	fixture.RequireAmount(t, 20000, pl.NetIncome)

	_, err = ledger.Reports.IncomeStatement(ctx, 2024, 2, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCachedReportsFollowVersionBumps(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	cache := reports.NewCache(client, time.Minute)
	ledger := fixture.Ledger(t, accounting.Options{Cache: cache})
	fixture.PostJanuary(t, ledger)
	date := fixture.Day(2025, time.January, 15)

	first, err := ledger.Reports.DailyReport(ctx, date)
	require.NoError(t, err)
	version, err := cache.Version(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists("ledger:reports:daily:2025-01-15:"+strconv.FormatInt(version, 10)))

	_, err = ledger.Journals.Post(ctx, fixture.Transfer(date, "11110", "41100", 5000))
	require.NoError(t, err)
	next, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Greater(t, next, version)

	second, err := ledger.Reports.DailyReport(ctx, date)
	require.NoError(t, err)
	require.Len(t, first.Lines, 2)
	require.Len(t, second.Lines, 3)
}

func TestCachesSharingRedisSeeEachOthersBumps(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	open := func() *redis.Client {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return client
	}

	api := reports.NewCache(open(), time.Minute)
	worker := reports.NewCache(open(), time.Minute)
	other := reports.NewCache(open(), time.Minute).WithNamespace("tenant-b:reports:")

	key, err := api.BuildKey(ctx, "tb", "2024", "1")
	require.NoError(t, err)
	require.Equal(t, "ledger:reports:tb:2024:1:1", key)

	require.NoError(t, worker.Bump(ctx))
	next, err := api.BuildKey(ctx, "tb", "2024", "1")
	require.NoError(t, err)
	require.Equal(t, "ledger:reports:tb:2024:1:2", next)

	otherKey, err := other.BuildKey(ctx, "tb", "2024", "1")
	require.NoError(t, err)
	require.Equal(t, "tenant-b:reports:tb:2024:1:1", otherKey)
}

func TestFetchJSONRebuildsUndecodablePayload(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	cache := reports.NewCache(client, time.Minute)
	key, err := cache.BuildKey(ctx, "daily", "2025-01-15")
	require.NoError(t, err)
	require.NoError(t, mr.Set(key, "{not json"))

	var got map[string]int
	err = cache.FetchJSON(ctx, key, &got, func(context.Context) (any, error) {
		return map[string]int{"rows": 2}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, got["rows"])
	stored, err := mr.Get(key)
	require.NoError(t, err)
	require.JSONEq(t, `{"rows":2}`, stored)
}

func TestNilCacheBuildsDirectly(t *testing.T) {
	var cache *reports.Cache
	key, err := cache.BuildKey(context.Background(), "tb", "2024")
	require.NoError(t, err)
	require.Equal(t, "ledger:reports:tb:2024", key)

	var got map[string]int
	err = cache.FetchJSON(context.Background(), key, &got, func(context.Context) (any, error) {
		return map[string]int{"rows": 3}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, got["rows"])
}

func cachedJanuary(t *testing.T) (*accounting.Ledger, *reports.Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := reports.NewCache(client, time.Minute)
	return closedJanuary(t, accounting.Options{Cache: cache}), cache
}

func trialLine(t *testing.T, tb reports.TrialBalance, code string) reports.TrialBalanceLine {
	t.Helper()
	for _, l := range tb.Lines {
		if l.AccountCode == code {
			return l
		}
	}
	t.Fatalf("no trial balance line for %s", code)
	return reports.TrialBalanceLine{}
}

func TestCachedTrialBalanceFollowsMonthlyCorrection(t *testing.T) {
	ctx := context.Background()
	ledger, _ := cachedJanuary(t)

	before, err := ledger.Reports.TrialBalance(ctx, 2024, 1, "")
	require.NoError(t, err)
	fixture.RequireAmount(t, 0, before.TotalOpeningDebit)

	cash, err := ledger.Balances.FindMonthly(ctx, fixture.MonthlyKey(2024, 1, "11110"))
	require.NoError(t, err)
	cash.OpeningBalance = fixture.Amount(999999)
	_, err = ledger.Balances.UpdateMonthly(ctx, cash)
	require.NoError(t, err)

	after, err := ledger.Reports.TrialBalance(ctx, 2024, 1, "")
	require.NoError(t, err)
	fixture.RequireAmount(t, 999999, after.TotalOpeningDebit)
	fixture.RequireAmount(t, 999999+70000, trialLine(t, after, "11110").Closing.Decimal)
}

func TestCachedTrialBalanceFollowsDailyCorrection(t *testing.T) {
	ctx := context.Background()
	ledger, cache := cachedJanuary(t)

	_, err := ledger.Reports.DailyReport(ctx, fixture.Day(2025, time.January, 15))
	require.NoError(t, err)
	version, err := cache.Version(ctx)
	require.NoError(t, err)

	row, err := ledger.Balances.FindDaily(ctx, fixture.DailyKey(fixture.Day(2025, time.January, 15), "11110"))
	require.NoError(t, err)
	row.CreditAmount = fixture.Amount(31000)
	_, err = ledger.Balances.UpdateDaily(ctx, row)
	require.NoError(t, err)

	next, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Greater(t, next, version)
	daily, err := ledger.Reports.DailyReport(ctx, fixture.Day(2025, time.January, 15))
	require.NoError(t, err)
	var credit int64
	for _, l := range daily.Lines {
		if l.AccountCode == "11110" {
			credit = l.CreditTotal.IntPart()
		}
	}
	require.Equal(t, int64(31000), credit)
}

func TestCachedTrialBalanceFollowsChartChanges(t *testing.T) {
	ctx := context.Background()
	ledger, _ := cachedJanuary(t)

	before, err := ledger.Reports.TrialBalance(ctx, 2024, 1, "")
	require.NoError(t, err)
	fixture.RequireAmount(t, 120000, trialLine(t, before, "10000").Closing.Decimal)

	cash, err := ledger.Accounts.Get(ctx, "11110")
	require.NoError(t, err)
	cash.Name = "小口現金"
	_, err = ledger.Accounts.Update(ctx, cash)
	require.NoError(t, err)

	renamed, err := ledger.Reports.TrialBalance(ctx, 2024, 1, "")
	require.NoError(t, err)
	require.Equal(t, "小口現金", trialLine(t, renamed, "11110").AccountName)

	receivable, err := ledger.Accounts.Structure(ctx, "11200")
	require.NoError(t, err)
	_, err = ledger.Accounts.Reparent(ctx, "11200", "", receivable.Version)
	require.NoError(t, err)

	moved, err := ledger.Reports.TrialBalance(ctx, 2024, 1, "")
	require.NoError(t, err)
	fixture.RequireAmount(t, 70000, trialLine(t, moved, "10000").Closing.Decimal)
	require.Equal(t, 1, trialLine(t, moved, "11200").Depth)
}
