package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// BalanceSheet lists asset, liability and equity positions as of a date.
// Equity includes the year-to-date net income.
type BalanceSheet struct {
	AsOf                      time.Time       `json:"as_of"`
	Assets                    Section         `json:"assets"`
	Liabilities               Section         `json:"liabilities"`
	Equity                    Section         `json:"equity"`
	NetIncome                 decimal.Decimal `json:"net_income"`
	TotalLiabilitiesAndEquity decimal.Decimal `json:"total_liabilities_and_equity"`
}

// IsBalanced reports whether total assets equal liabilities plus equity.
func (bs BalanceSheet) IsBalanced() bool {
	return bs.Assets.Total.Equal(bs.TotalLiabilitiesAndEquity)
}

// BuildBalanceSheet groups positions into sections. Revenue and expense
// positions only contribute the net income row of the equity section.
func BuildBalanceSheet(asOf time.Time, positions []Position) BalanceSheet {
	bs := BalanceSheet{
		AsOf:        asOf,
		Assets:      buildSection(accounts.ElementAsset, positions),
		Liabilities: buildSection(accounts.ElementLiability, positions),
		Equity:      buildSection(accounts.ElementEquity, positions),
		NetIncome:   netIncome(positions),
	}
	bs.Equity.Lines = append(bs.Equity.Lines, StatementLine{
		Kind:        LineAccount,
		AccountCode: netIncomeCode,
		AccountName: netIncomeName,
		Depth:       1,
		Amount:      bs.NetIncome,
	})
	bs.Equity.Total = bs.Equity.Total.Add(bs.NetIncome)

	bs.Assets.appendTotal()
	bs.Liabilities.appendTotal()
	bs.Equity.appendTotal()
	bs.TotalLiabilitiesAndEquity = bs.Liabilities.Total.Add(bs.Equity.Total)
	return bs
}
