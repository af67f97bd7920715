package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
)

func main() {
	withJournals := flag.Bool("journals", false, "post a month of sample journals")
	flag.Parse()

	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)
	rt, err := app.OpenLedger(ctx, cfg, logger, nil)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer rt.Close()

	fmt.Println("→ Seeding chart of accounts...")
	created, err := seedChart(ctx, rt.Ledger)
	if err != nil {
		log.Fatalf("seed chart: %v", err)
	}
	logger.Info("chart seeded", slog.Int("created", created))

	if *withJournals {
		fmt.Println("→ Seeding journals...")
		if err := seedJournals(ctx, rt.Ledger); err != nil {
			log.Fatalf("seed journals: %v", err)
		}
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

// =============================================================================
// CHART OF ACCOUNTS
// =============================================================================

var chart = []struct {
	code, name, parent string
	element            accounts.TransactionElement
	aggregation        accounts.AggregationKind
}{
	{"10000", "Assets", "", accounts.ElementAsset, accounts.AggregationHeading},
	{"11000", "Current assets", "10000", accounts.ElementAsset, accounts.AggregationSummary},
	{"11110", "Cash", "11000", accounts.ElementAsset, accounts.AggregationPosting},
	{"11120", "Bank", "11000", accounts.ElementAsset, accounts.AggregationPosting},
	{"11200", "Accounts receivable", "11000", accounts.ElementAsset, accounts.AggregationPosting},
	{"20000", "Liabilities", "", accounts.ElementLiability, accounts.AggregationHeading},
	{"21110", "Accounts payable", "20000", accounts.ElementLiability, accounts.AggregationPosting},
	{"21200", "VAT payable", "20000", accounts.ElementLiability, accounts.AggregationPosting},
	{"30000", "Equity", "", accounts.ElementEquity, accounts.AggregationHeading},
	{"31100", "Share capital", "30000", accounts.ElementEquity, accounts.AggregationPosting},
	{"31200", "Retained earnings", "30000", accounts.ElementEquity, accounts.AggregationPosting},
	{"40000", "Revenue", "", accounts.ElementRevenue, accounts.AggregationHeading},
	{"41100", "Sales", "40000", accounts.ElementRevenue, accounts.AggregationPosting},
	{"50000", "Expenses", "", accounts.ElementExpense, accounts.AggregationHeading},
	{"51100", "Purchases", "50000", accounts.ElementExpense, accounts.AggregationPosting},
	{"52100", "Rent", "50000", accounts.ElementExpense, accounts.AggregationPosting},
}

func seedChart(ctx context.Context, ledger *accounting.Ledger) (int, error) {
	created := 0
	for _, e := range chart {
		_, _, err := ledger.Accounts.Create(ctx, accounts.NewAccount(e.code, e.name, e.element, e.aggregation), e.parent)
		if errors.Is(err, shared.ErrConflict) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("account %s: %w", e.code, err)
		}
		created++
	}
	return created, nil
}

// =============================================================================
// JOURNALS
// =============================================================================

func seedJournals(ctx context.Context, ledger *accounting.Ledger) error {
	month := time.Now().UTC().AddDate(0, -1, 0)
	day := func(d int) time.Time {
		return time.Date(month.Year(), month.Month(), d, 0, 0, 0, 0, time.UTC)
	}
	entries := []struct {
		date          time.Time
		description   string
		debit, credit string
		amount        int64
	}{
		{day(1), "Capital injection", "11120", "31100", 1000000},
		{day(3), "Cash withdrawal", "11110", "11120", 50000},
		{day(5), "Stock purchase on credit", "51100", "21110", 300000},
		{day(10), "Credit sale", "11200", "41100", 450000},
		{day(15), "Office rent", "52100", "11120", 80000},
		{day(20), "Supplier payment", "21110", "11120", 300000},
		{day(25), "Customer receipt", "11120", "11200", 250000},
	}
	for _, e := range entries {
		j := journals.Journal{
			PostingDate: e.date,
			Description: e.description,
			Details: []journals.Detail{{
				LineNumber: 1,
				Lines: []journals.Line{
					{Side: shared.Debit, AccountCode: e.debit, Amount: decimal.NewFromInt(e.amount)},
					{Side: shared.Credit, AccountCode: e.credit, Amount: decimal.NewFromInt(e.amount)},
				},
			}},
		}
		posted, err := ledger.Journals.Post(ctx, j)
		if err != nil {
			return fmt.Errorf("%s: %w", e.description, err)
		}
		fmt.Println("  posted", posted.VoucherNumber, e.description)
	}
	return nil
}
