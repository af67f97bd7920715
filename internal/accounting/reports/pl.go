package reports

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// IncomeStatement lists revenue and expense movements over fiscal months.
type IncomeStatement struct {
	FiscalYear int             `json:"fiscal_year"`
	FromMonth  int             `json:"from_month"`
	ToMonth    int             `json:"to_month"`
	Revenue    Section         `json:"revenue"`
	Expenses   Section         `json:"expenses"`
	NetIncome  decimal.Decimal `json:"net_income"`
}

// BuildIncomeStatement groups positions into revenue and expense sections.
func BuildIncomeStatement(fiscalYear, fromMonth, toMonth int, positions []Position) IncomeStatement {
	pl := IncomeStatement{
		FiscalYear: fiscalYear,
		FromMonth:  fromMonth,
		ToMonth:    toMonth,
		Revenue:    buildSection(accounts.ElementRevenue, positions),
		Expenses:   buildSection(accounts.ElementExpense, positions),
	}
	pl.Revenue.appendTotal()
	pl.Expenses.appendTotal()
	pl.NetIncome = pl.Revenue.Total.Sub(pl.Expenses.Total)
	return pl
}
