package reports

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// TrialBalanceLine is one account row of a trial balance. Absent amounts count as zero.
type TrialBalanceLine struct {
	AccountCode string              `json:"account_code"`
	AccountName string              `json:"account_name"`
	Nature      shared.DebitCredit  `json:"nature"`
	BSPL        accounts.BSPL       `json:"bspl"`
	Depth       int                 `json:"depth"`
	Summary     bool                `json:"summary"`
	Opening     decimal.NullDecimal `json:"opening"`
	Debit       decimal.NullDecimal `json:"debit"`
	Credit      decimal.NullDecimal `json:"credit"`
	Closing     decimal.NullDecimal `json:"closing"`
}

// TrialBalance lists opening, period and closing amounts with side totals.
type TrialBalance struct {
	FiscalYear         int                `json:"fiscal_year"`
	Month              int                `json:"month"`
	Lines              []TrialBalanceLine `json:"lines"`
	TotalOpeningDebit  decimal.Decimal    `json:"total_opening_debit"`
	TotalOpeningCredit decimal.Decimal    `json:"total_opening_credit"`
	TotalDebit         decimal.Decimal    `json:"total_debit"`
	TotalCredit        decimal.Decimal    `json:"total_credit"`
	TotalClosingDebit  decimal.Decimal    `json:"total_closing_debit"`
	TotalClosingCredit decimal.Decimal    `json:"total_closing_credit"`
}

// IsOpeningBalanced compares the opening totals of both sides.
func (tb TrialBalance) IsOpeningBalanced() bool {
	return tb.TotalOpeningDebit.Equal(tb.TotalOpeningCredit)
}

// IsTransactionBalanced compares period debit and credit totals.
func (tb TrialBalance) IsTransactionBalanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

// IsClosingBalanced compares the closing totals of both sides.
func (tb TrialBalance) IsClosingBalanced() bool {
	return tb.TotalClosingDebit.Equal(tb.TotalClosingCredit)
}

// IsBalanced holds when opening, period and closing totals all balance.
func (tb TrialBalance) IsBalanced() bool {
	return tb.IsOpeningBalanced() && tb.IsTransactionBalanced() && tb.IsClosingBalanced()
}

// BuildTrialBalance totals lines. Summary lines are carried through but not
// added, since their amounts already appear on the posting accounts below them.
func BuildTrialBalance(fiscalYear, month int, lines []TrialBalanceLine) TrialBalance {
	tb := TrialBalance{
		FiscalYear:         fiscalYear,
		Month:              month,
		Lines:              lines,
		TotalOpeningDebit:  decimal.Zero,
		TotalOpeningCredit: decimal.Zero,
		TotalDebit:         decimal.Zero,
		TotalCredit:        decimal.Zero,
		TotalClosingDebit:  decimal.Zero,
		TotalClosingCredit: decimal.Zero,
	}
	for _, line := range lines {
		if line.Summary {
			continue
		}
		opening, closing := orZero(line.Opening), orZero(line.Closing)
		if line.Nature == shared.Credit {
			tb.TotalOpeningCredit = tb.TotalOpeningCredit.Add(opening)
			tb.TotalClosingCredit = tb.TotalClosingCredit.Add(closing)
		} else {
			tb.TotalOpeningDebit = tb.TotalOpeningDebit.Add(opening)
			tb.TotalClosingDebit = tb.TotalClosingDebit.Add(closing)
		}
		tb.TotalDebit = tb.TotalDebit.Add(orZero(line.Debit))
		tb.TotalCredit = tb.TotalCredit.Add(orZero(line.Credit))
	}
	return tb
}

func orZero(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}

func valid(v decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: v, Valid: true}
}
