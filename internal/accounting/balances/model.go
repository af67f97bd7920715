package balances

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Dimensions are the analytic codes shared by daily and monthly keys.
type Dimensions struct {
	AccountCode    string
	SubAccountCode string
	DepartmentCode string
	ProjectCode    string
	ClosingFlag    bool
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%t", d.AccountCode, d.SubAccountCode, d.DepartmentCode, d.ProjectCode, d.ClosingFlag)
}

// DailyKey identifies a daily balance row.
type DailyKey struct {
	PostingDate time.Time
	Dimensions
}

func (k DailyKey) String() string {
	return k.PostingDate.Format("2006-01-02") + "/" + k.Dimensions.String()
}

// DailyAccountBalance holds cumulative debit and credit amounts for one key.
type DailyAccountBalance struct {
	DailyKey
	DebitAmount  decimal.Decimal
	CreditAmount decimal.Decimal
	Version      int64
}

// Balance is debit minus credit regardless of the account's nature.
func (b DailyAccountBalance) Balance() decimal.Decimal {
	return b.DebitAmount.Sub(b.CreditAmount)
}

// MonthlyKey identifies a monthly balance row.
type MonthlyKey struct {
	FiscalYear int
	Month      int
	Dimensions
}

func (k MonthlyKey) String() string {
	return fmt.Sprintf("%d-%02d/%s", k.FiscalYear, k.Month, k.Dimensions.String())
}

// MonthlyAccountBalance holds the opening balance, period totals and closing balance.
type MonthlyAccountBalance struct {
	MonthlyKey
	OpeningBalance decimal.Decimal
	DebitAmount    decimal.Decimal
	CreditAmount   decimal.Decimal
	ClosingBalance decimal.Decimal
	Version        int64
}

// NewMonthlyBalance returns a row at version 1 with zero amounts.
func NewMonthlyBalance(key MonthlyKey) MonthlyAccountBalance {
	return MonthlyAccountBalance{
		MonthlyKey:     key,
		OpeningBalance: decimal.Zero,
		DebitAmount:    decimal.Zero,
		CreditAmount:   decimal.Zero,
		ClosingBalance: decimal.Zero,
		Version:        1,
	}
}

// RecalcClosing sets ClosingBalance from the opening balance and period totals
// according to nature.
func (m *MonthlyAccountBalance) RecalcClosing(nature shared.DebitCredit) {
	if nature == shared.Credit {
		m.ClosingBalance = m.OpeningBalance.Sub(m.DebitAmount).Add(m.CreditAmount)
		return
	}
	m.ClosingBalance = m.OpeningBalance.Add(m.DebitAmount).Sub(m.CreditAmount)
}

// NetChange is closing minus opening.
func (m MonthlyAccountBalance) NetChange() decimal.Decimal {
	return m.ClosingBalance.Sub(m.OpeningBalance)
}

// Posting is a signed contribution of one journal line to a daily key.
type Posting struct {
	Key    DailyKey
	Debit  decimal.Decimal
	Credit decimal.Decimal
}
