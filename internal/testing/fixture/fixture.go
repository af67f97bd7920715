// Package fixture builds in-memory ledgers with a small chart of accounts for tests.
package fixture

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ODYSSEY_TEST_MODE") == "" {
			_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		}
	})
}

// Clock is the fixed entry date of fixture ledgers.
var Clock = Day(2025, time.February, 1)

// Chart is the seeded chart: code, name, parent, element, aggregation.
var Chart = []struct {
	Code, Name, Parent string
	Element            accounts.TransactionElement
	Aggregation        accounts.AggregationKind
}{
	{"10000", "資産", "", accounts.ElementAsset, accounts.AggregationHeading},
	{"11110", "現金", "10000", accounts.ElementAsset, accounts.AggregationPosting},
	{"11200", "売掛金", "10000", accounts.ElementAsset, accounts.AggregationPosting},
	{"20000", "負債", "", accounts.ElementLiability, accounts.AggregationHeading},
	{"21110", "買掛金", "20000", accounts.ElementLiability, accounts.AggregationPosting},
	{"30000", "純資産", "", accounts.ElementEquity, accounts.AggregationHeading},
	{"31100", "資本金", "30000", accounts.ElementEquity, accounts.AggregationPosting},
	{"40000", "収益", "", accounts.ElementRevenue, accounts.AggregationHeading},
	{"41100", "売上高", "40000", accounts.ElementRevenue, accounts.AggregationPosting},
	{"50000", "費用", "", accounts.ElementExpense, accounts.AggregationHeading},
	{"51100", "仕入高", "50000", accounts.ElementExpense, accounts.AggregationPosting},
}

// Day returns midnight UTC.
func Day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Amount converts an integer amount.
func Amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// RequireAmount compares decimals by value.
func RequireAmount(t testing.TB, want int64, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, Amount(want).Equal(got), "want %d, got %s", want, got)
}

// Ledger returns a memory-backed ledger with Chart seeded and the clock fixed.
func Ledger(t testing.TB, opts accounting.Options) *accounting.Ledger {
	t.Helper()
	return LedgerOn(t, memstore.New(), opts)
}

// LedgerOn is Ledger over a caller-held store.
func LedgerOn(t testing.TB, store accounting.Store, opts accounting.Options) *accounting.Ledger {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ledger, err := accounting.New(store, opts)
	require.NoError(t, err)
	ledger.Journals.WithNow(func() time.Time { return Clock })
	for _, e := range Chart {
		_, _, err := ledger.Accounts.Create(context.Background(), accounts.NewAccount(e.Code, e.Name, e.Element, e.Aggregation), e.Parent)
		require.NoError(t, err)
	}
	return ledger
}

// Transfer is a one-detail journal moving value from credit to debit.
func Transfer(date time.Time, debit, credit string, value int64) journals.Journal {
	return journals.Journal{
		PostingDate: date,
		Description: "transfer",
		Details: []journals.Detail{{
			LineNumber: 1,
			Lines: []journals.Line{
				{Side: shared.Debit, AccountCode: debit, Amount: Amount(value)},
				{Side: shared.Credit, AccountCode: credit, Amount: Amount(value)},
			},
		}},
	}
}

// DailyKey addresses an account's daily row without analytic codes.
func DailyKey(date time.Time, code string) balances.DailyKey {
	return balances.DailyKey{PostingDate: date, Dimensions: balances.Dimensions{AccountCode: code}}
}

// MonthlyKey addresses an account's monthly row without analytic codes.
func MonthlyKey(fiscalYear, month int, code string) balances.MonthlyKey {
	return balances.MonthlyKey{FiscalYear: fiscalYear, Month: month, Dimensions: balances.Dimensions{AccountCode: code}}
}

// PostJanuary posts into fiscal 2024 month 1: capital of 100000 on the 10th
// (J00001), a cash purchase of 30000 on the 15th (J00002) and a credit sale of
// 50000 on the 20th (J00003).
func PostJanuary(t testing.TB, ledger *accounting.Ledger) {
	t.Helper()
	for _, j := range []journals.Journal{
		Transfer(Day(2025, time.January, 10), "11110", "31100", 100000),
		Transfer(Day(2025, time.January, 15), "51100", "11110", 30000),
		Transfer(Day(2025, time.January, 20), "11200", "41100", 50000),
	} {
		_, err := ledger.Journals.Post(context.Background(), j)
		require.NoError(t, err)
	}
}
