package accounting

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Drift is a daily key whose stored totals differ from the replayed journals.
type Drift struct {
	Key            balances.DailyKey
	StoredDebit    decimal.Decimal
	StoredCredit   decimal.Decimal
	ExpectedDebit  decimal.Decimal
	ExpectedCredit decimal.Decimal
}

// IntegrityReport summarises a comparison of daily balances against journals.
type IntegrityReport struct {
	From    time.Time
	To      time.Time
	Checked int
	Drifts  []Drift
}

// Clean reports whether no drift was found.
func (r IntegrityReport) Clean() bool {
	return len(r.Drifts) == 0
}

// CheckIntegrity replays the journals posted between from and to in memory and
// compares the result with the stored daily balances. Nothing is written.
func (l *Ledger) CheckIntegrity(ctx context.Context, from, to time.Time) (IntegrityReport, error) {
	from, to = periods.Day(from), periods.Day(to)
	if to.Before(from) {
		return IntegrityReport{}, shared.Invalid("to", "must not be before from")
	}
	postings, err := l.Journals.Postings(ctx, from, to)
	if err != nil {
		return IntegrityReport{}, err
	}
	stored, err := l.Balances.ListDaily(ctx, from, to)
	if err != nil {
		return IntegrityReport{}, err
	}

	type totals struct{ debit, credit decimal.Decimal }
	expected := make(map[balances.DailyKey]*totals)
	for _, p := range postings {
		t, ok := expected[p.Key]
		if !ok {
			t = &totals{debit: decimal.Zero, credit: decimal.Zero}
			expected[p.Key] = t
		}
		t.debit = t.debit.Add(p.Debit)
		t.credit = t.credit.Add(p.Credit)
	}

	report := IntegrityReport{From: from, To: to}
	seen := make(map[balances.DailyKey]struct{}, len(stored))
	for _, row := range stored {
		seen[row.DailyKey] = struct{}{}
		report.Checked++
		want, ok := expected[row.DailyKey]
		if !ok {
			want = &totals{debit: decimal.Zero, credit: decimal.Zero}
		}
		if !row.DebitAmount.Equal(want.debit) || !row.CreditAmount.Equal(want.credit) {
			report.Drifts = append(report.Drifts, Drift{
				Key:            row.DailyKey,
				StoredDebit:    row.DebitAmount,
				StoredCredit:   row.CreditAmount,
				ExpectedDebit:  want.debit,
				ExpectedCredit: want.credit,
			})
		}
	}
	for key, want := range expected {
		if _, ok := seen[key]; ok {
			continue
		}
		if want.debit.IsZero() && want.credit.IsZero() {
			continue
		}
		report.Checked++
		report.Drifts = append(report.Drifts, Drift{
			Key:            key,
			StoredDebit:    decimal.Zero,
			StoredCredit:   decimal.Zero,
			ExpectedDebit:  want.debit,
			ExpectedCredit: want.credit,
		})
	}
	sort.Slice(report.Drifts, func(i, j int) bool {
		return report.Drifts[i].Key.String() < report.Drifts[j].Key.String()
	})
	if !report.Clean() {
		l.logger.Warn("daily balance drift detected",
			slog.String("from", from.Format(time.DateOnly)),
			slog.String("to", to.Format(time.DateOnly)),
			slog.Int("drifts", len(report.Drifts)),
		)
	}
	return report, nil
}
