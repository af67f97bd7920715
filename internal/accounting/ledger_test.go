package accounting_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/fixture"
)

type recordingMetrics struct {
	mu         sync.Mutex
	events     []string
	guards     []string
	unbalanced []string
}

func (m *recordingMetrics) JournalEvent(action, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, action+":"+outcome)
}

func (m *recordingMetrics) GuardFailure(entity, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guards = append(m.guards, entity+":"+outcome)
}

func (m *recordingMetrics) UnbalancedReport(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unbalanced = append(m.unbalanced, kind)
}

func TestPostAppliesDailyDeltas(t *testing.T) {
	ctx := context.Background()
	ledger := fixture.Ledger(t, accounting.Options{})

	posted, err := ledger.Journals.Post(ctx, fixture.Transfer(fixture.Day(2025, time.January, 15), "11110", "21110", 10000))
	require.NoError(t, err)
	require.Equal(t, "J00001", posted.VoucherNumber)
	require.Equal(t, int64(1), posted.Version)
	require.Equal(t, int64(1), posted.Details[0].Lines[0].Version)
	fixture.RequireAmount(t, 10000, posted.DebitTotal())
	fixture.RequireAmount(t, 10000, posted.CreditTotal())

	cash, err := ledger.Balances.FindDaily(ctx, fixture.DailyKey(fixture.Day(2025, time.January, 15), "11110"))
	require.NoError(t, err)
	fixture.RequireAmount(t, 10000, cash.DebitAmount)
	fixture.RequireAmount(t, 0, cash.CreditAmount)

	payable, err := ledger.Balances.FindDaily(ctx, fixture.DailyKey(fixture.Day(2025, time.January, 15), "21110"))
	require.NoError(t, err)
	fixture.RequireAmount(t, 0, payable.DebitAmount)
	fixture.RequireAmount(t, 10000, payable.CreditAmount)
}

func TestPostRejectsUnbalancedWithoutWrites(t *testing.T) {
	ctx := context.Background()
	metrics := &recordingMetrics{}
	ledger := fixture.Ledger(t, accounting.Options{Metrics: metrics})

	j := fixture.Transfer(fixture.Day(2025, time.January, 15), "11110", "21110", 10000)
	j.Details[0].Lines[1].Amount = fixture.Amount(9000)
	_, err := ledger.Journals.Post(ctx, j)

	var violation *shared.BalanceViolationError
	require.ErrorAs(t, err, &violation)
	require.ErrorIs(t, err, shared.ErrValidation)
	fixture.RequireAmount(t, 10000, violation.Debit)
	fixture.RequireAmount(t, 9000, violation.Credit)

	list, err := ledger.Journals.List(ctx, journals.Filter{})
	require.NoError(t, err)
	require.Empty(t, list)
	rows, err := ledger.Balances.ListDaily(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Empty(t, rows)
	require.Equal(t, []string{"post:invalid"}, metrics.events)
}

func TestPostRejectsHeadingAccount(t *testing.T) {
	ledger := fixture.Ledger(t, accounting.Options{})
	_, err := ledger.Journals.Post(context.Background(), fixture.Transfer(fixture.Day(2025, time.January, 15), "10000", "21110", 10000))
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = ledger.Journals.Post(context.Background(), fixture.Transfer(fixture.Day(2025, time.January, 15), "19999", "21110", 10000))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCancelPostsLinkedRedSlip(t *testing.T) {
	ctx := context.Background()
	ledger := fixture.Ledger(t, accounting.Options{})

	posted, err := ledger.Journals.Post(ctx, fixture.Transfer(fixture.Day(2025, time.January, 15), "11110", "21110", 10000))
	require.NoError(t, err)

	red, err := ledger.Journals.Cancel(ctx, posted.VoucherNumber)
	require.NoError(t, err)
	require.Equal(t, "J00002", red.VoucherNumber)
	require.True(t, red.RedSlipFlag)
	require.Equal(t, posted.VoucherNumber, red.RedBlackVoucherNumber)
	require.Equal(t, posted.PostingDate, red.PostingDate)
	require.Equal(t, shared.Credit, red.Details[0].Lines[0].Side)

	original, err := ledger.Journals.Get(ctx, posted.VoucherNumber)
	require.NoError(t, err)
	require.True(t, original.RedSlipFlag)
	require.Equal(t, red.VoucherNumber, original.RedBlackVoucherNumber)
	require.Equal(t, int64(2), original.Version)

	cash, err := ledger.Balances.FindDaily(ctx, fixture.DailyKey(fixture.Day(2025, time.January, 15), "11110"))
	require.NoError(t, err)
	fixture.RequireAmount(t, 10000, cash.DebitAmount)
	fixture.RequireAmount(t, 10000, cash.CreditAmount)
	require.True(t, cash.Balance().IsZero())

	_, err = ledger.Journals.Cancel(ctx, posted.VoucherNumber)
	var cancelled *shared.AlreadyCancelledError
	require.ErrorAs(t, err, &cancelled)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCancelUnknownVoucher(t *testing.T) {
	ledger := fixture.Ledger(t, accounting.Options{})
	_, err := ledger.Journals.Cancel(context.Background(), "J99999")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateAppliesDifferenceAndRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	metrics := &recordingMetrics{}
	ledger := fixture.Ledger(t, accounting.Options{Metrics: metrics})

	posted, err := ledger.Journals.Post(ctx, fixture.Transfer(fixture.Day(2025, time.January, 15), "11110", "21110", 10000))
	require.NoError(t, err)

	edit := posted
	edit.Details = []journals.Detail{posted.Details[0]}
	edit.Details[0].Lines = append([]journals.Line(nil), posted.Details[0].Lines...)
	edit.Details[0].Lines[0].Amount = fixture.Amount(12000)
	edit.Details[0].Lines[1].Amount = fixture.Amount(12000)
	updated, err := ledger.Journals.Update(ctx, edit)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Version)

	cash, err := ledger.Balances.FindDaily(ctx, fixture.DailyKey(fixture.Day(2025, time.January, 15), "11110"))
	require.NoError(t, err)
	require.True(t, cash.Balance().Equal(fixture.Amount(12000)))

	stale := edit
	stale.Details[0].Lines[0].Amount = fixture.Amount(15000)
	stale.Details[0].Lines[1].Amount = fixture.Amount(15000)
	_, err = ledger.Journals.Update(ctx, stale)
	var conflict *shared.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, int64(1), conflict.Expected)
	require.Equal(t, int64(2), conflict.Actual)

	again, err := ledger.Balances.FindDaily(ctx, fixture.DailyKey(fixture.Day(2025, time.January, 15), "11110"))
	require.NoError(t, err)
	require.True(t, again.Balance().Equal(fixture.Amount(12000)))
	require.Contains(t, metrics.guards, "journal:conflict")
}

func TestDeleteThenNotFound(t *testing.T) {
	ctx := context.Background()
	ledger := fixture.Ledger(t, accounting.Options{})
	posted, err := ledger.Journals.Post(ctx, fixture.Transfer(fixture.Day(2025, time.January, 15), "11110", "21110", 10000))
	require.NoError(t, err)

	require.NoError(t, ledger.Journals.Delete(ctx, posted.VoucherNumber))
	_, err = ledger.Journals.Get(ctx, posted.VoucherNumber)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.ErrorIs(t, ledger.Journals.Delete(ctx, posted.VoucherNumber), shared.ErrNotFound)
}

func TestCloseMonthAggregatesAndCarries(t *testing.T) {
	ctx := context.Background()
	ledger := fixture.Ledger(t, accounting.Options{})
	fixture.PostJanuary(t, ledger)

	jan := periods.Period{FiscalYear: 2024, Month: 1}
	aggregated, carried, err := ledger.CloseMonth(ctx, jan)
	require.NoError(t, err)
	require.Equal(t, 5, aggregated)
	require.Equal(t, 5, carried)

	cash, err := ledger.Balances.FindMonthly(ctx, fixture.MonthlyKey(2024, 2, "11110"))
	require.NoError(t, err)
	fixture.RequireAmount(t, 70000, cash.OpeningBalance)
	fixture.RequireAmount(t, 0, cash.DebitAmount)
	fixture.RequireAmount(t, 70000, cash.ClosingBalance)

	again, _, err := ledger.CloseMonth(ctx, jan)
	require.NoError(t, err)
	require.Equal(t, aggregated, again)
	janCash, err := ledger.Balances.FindMonthly(ctx, fixture.MonthlyKey(2024, 1, "11110"))
	require.NoError(t, err)
	fixture.RequireAmount(t, 100000, janCash.DebitAmount)
	fixture.RequireAmount(t, 30000, janCash.CreditAmount)
}

func TestIntegrityDetectsDriftAndRebuildRepairs(t *testing.T) {
	ctx := context.Background()
	ledger := fixture.Ledger(t, accounting.Options{})
	fixture.PostJanuary(t, ledger)
	from, to := fixture.Day(2025, time.January, 1), fixture.Day(2025, time.January, 31)

	report, err := ledger.CheckIntegrity(ctx, from, to)
	require.NoError(t, err)
	require.True(t, report.Clean())
	require.Equal(t, 6, report.Checked)

	require.NoError(t, ledger.Journals.Delete(ctx, "J00003"))
	report, err = ledger.CheckIntegrity(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 2)
	require.Equal(t, "11200", report.Drifts[0].Key.AccountCode)
	fixture.RequireAmount(t, 50000, report.Drifts[0].StoredDebit)
	fixture.RequireAmount(t, 0, report.Drifts[0].ExpectedDebit)

	applied, err := ledger.RebuildDaily(ctx, from, to)
	require.NoError(t, err)
	require.Equal(t, 4, applied)
	report, err = ledger.CheckIntegrity(ctx, from, to)
	require.NoError(t, err)
	require.True(t, report.Clean())
}

func TestNewRejectsBadStartMonth(t *testing.T) {
	_, err := accounting.New(memstore.New(), accounting.Options{FiscalStartMonth: 13})
	require.True(t, errors.Is(err, shared.ErrValidation))
}

func TestCancelExplicitlyNumberedVoucher(t *testing.T) {
	ctx := context.Background()
	ledger := fixture.Ledger(t, accounting.Options{})

	manual := fixture.Transfer(fixture.Day(2025, time.January, 15), "11110", "21110", 10000)
	manual.VoucherNumber = "J00001"
	posted, err := ledger.Journals.Post(ctx, manual)
	require.NoError(t, err)
	require.Equal(t, "J00001", posted.VoucherNumber)

	red, err := ledger.Journals.Cancel(ctx, "J00001")
	require.NoError(t, err)
	require.Equal(t, "J00002", red.VoucherNumber)
	require.Equal(t, "J00001", red.RedBlackVoucherNumber)

	original, err := ledger.Journals.Get(ctx, "J00001")
	require.NoError(t, err)
	require.True(t, original.RedSlipFlag)
	require.Equal(t, "J00002", original.RedBlackVoucherNumber)
	require.Equal(t, int64(2), original.Version)
	fixture.RequireAmount(t, 10000, original.DebitTotal())
	require.Equal(t, shared.Debit, original.Details[0].Lines[0].Side)

	list, err := ledger.Journals.List(ctx, journals.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 2)

	cash, err := ledger.Balances.FindDaily(ctx, fixture.DailyKey(fixture.Day(2025, time.January, 15), "11110"))
	require.NoError(t, err)
	require.True(t, cash.Balance().IsZero())

	next, err := ledger.Journals.Post(ctx, fixture.Transfer(fixture.Day(2025, time.January, 16), "11110", "21110", 500))
	require.NoError(t, err)
	require.Equal(t, "J00003", next.VoucherNumber)

	clash := fixture.Transfer(fixture.Day(2025, time.January, 16), "11110", "21110", 500)
	clash.VoucherNumber = "J00003"
	_, err = ledger.Journals.Post(ctx, clash)
	var dup *shared.DuplicateError
	require.ErrorAs(t, err, &dup)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestAutoNumberSkipsExplicitVouchers(t *testing.T) {
	ctx := context.Background()
	ledger := fixture.Ledger(t, accounting.Options{})

	for _, number := range []string{"J00001", "J00002"} {
		j := fixture.Transfer(fixture.Day(2025, time.January, 10), "11110", "31100", 1000)
		j.VoucherNumber = number
		_, err := ledger.Journals.Post(ctx, j)
		require.NoError(t, err)
	}
	posted, err := ledger.Journals.Post(ctx, fixture.Transfer(fixture.Day(2025, time.January, 11), "11110", "31100", 1000))
	require.NoError(t, err)
	require.Equal(t, "J00003", posted.VoucherNumber)
}

func TestUpdateRejectsStaleLineUnderCurrentHeader(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	metrics := &recordingMetrics{}
	ledger := fixture.LedgerOn(t, store, accounting.Options{Metrics: metrics})

	posted, err := ledger.Journals.Post(ctx, fixture.Transfer(fixture.Day(2025, time.January, 15), "11110", "21110", 10000))
	require.NoError(t, err)

	// Another writer touched only the credit line.
	lineKey := journals.LineKey{VoucherNumber: posted.VoucherNumber, LineNumber: 1, Side: shared.Credit}
	_, err = store.UpdateLineIfVersion(ctx, lineKey, 1, posted.Details[0].Lines[1])
	require.NoError(t, err)

	edit := posted
	edit.Details = []journals.Detail{posted.Details[0]}
	edit.Details[0].Lines = append([]journals.Line(nil), posted.Details[0].Lines...)
	edit.Details[0].Lines[0].Amount = fixture.Amount(12000)
	edit.Details[0].Lines[1].Amount = fixture.Amount(12000)
	_, err = ledger.Journals.Update(ctx, edit)

	var conflict *shared.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "journal line", conflict.Entity)
	require.Equal(t, int64(1), conflict.Expected)
	require.Equal(t, int64(2), conflict.Actual)
	require.ErrorIs(t, err, shared.ErrConflict)

	current, err := ledger.Journals.Get(ctx, posted.VoucherNumber)
	require.NoError(t, err)
	require.Equal(t, int64(1), current.Version)
	fixture.RequireAmount(t, 10000, current.DebitTotal())

	for _, code := range []string{"11110", "21110"} {
		row, err := ledger.Balances.FindDaily(ctx, fixture.DailyKey(fixture.Day(2025, time.January, 15), code))
		require.NoError(t, err)
		fixture.RequireAmount(t, 10000, row.DebitAmount.Add(row.CreditAmount))
	}
	require.Contains(t, metrics.guards, "journal line:conflict")

	// A caller version ahead of the stored one is just as stale.
	ahead := edit
	ahead.Details = []journals.Detail{edit.Details[0]}
	ahead.Details[0].Lines = append([]journals.Line(nil), edit.Details[0].Lines...)
	ahead.Details[0].Lines[1].Version = 2
	ahead.Details[0].Lines[0].Version = 5
	_, err = ledger.Journals.Update(ctx, ahead)
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "journal line", conflict.Entity)
	current, err = ledger.Journals.Get(ctx, posted.VoucherNumber)
	require.NoError(t, err)
	require.Equal(t, int64(1), current.Version)
}

func TestAggregateDropsTotalsOfDeletedJournals(t *testing.T) {
	ctx := context.Background()
	ledger := fixture.Ledger(t, accounting.Options{})
	fixture.PostJanuary(t, ledger)
	jan := periods.Period{FiscalYear: 2024, Month: 1}
	from, to := fixture.Day(2025, time.January, 1), fixture.Day(2025, time.January, 31)

	_, err := ledger.AggregatePeriod(ctx, jan)
	require.NoError(t, err)
	receivable, err := ledger.Balances.FindMonthly(ctx, fixture.MonthlyKey(2024, 1, "11200"))
	require.NoError(t, err)
	fixture.RequireAmount(t, 50000, receivable.DebitAmount)

	require.NoError(t, ledger.Journals.Delete(ctx, "J00003"))
	_, err = ledger.RebuildDaily(ctx, from, to)
	require.NoError(t, err)
	touched, err := ledger.AggregatePeriod(ctx, jan)
	require.NoError(t, err)
	require.Equal(t, 5, touched)

	receivable, err = ledger.Balances.FindMonthly(ctx, fixture.MonthlyKey(2024, 1, "11200"))
	require.NoError(t, err)
	fixture.RequireAmount(t, 0, receivable.DebitAmount)
	fixture.RequireAmount(t, 0, receivable.CreditAmount)
	fixture.RequireAmount(t, 0, receivable.ClosingBalance)
	sales, err := ledger.Balances.FindMonthly(ctx, fixture.MonthlyKey(2024, 1, "41100"))
	require.NoError(t, err)
	fixture.RequireAmount(t, 0, sales.CreditAmount)
	fixture.RequireAmount(t, 0, sales.ClosingBalance)
	cash, err := ledger.Balances.FindMonthly(ctx, fixture.MonthlyKey(2024, 1, "11110"))
	require.NoError(t, err)
	fixture.RequireAmount(t, 100000, cash.DebitAmount)
	fixture.RequireAmount(t, 70000, cash.ClosingBalance)

	again, err := ledger.AggregatePeriod(ctx, jan)
	require.NoError(t, err)
	require.Equal(t, 3, again)
}
