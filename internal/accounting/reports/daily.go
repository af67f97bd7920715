package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// DailyReportLine summarises one account's postings on a day.
type DailyReportLine struct {
	AccountCode string             `json:"account_code"`
	AccountName string             `json:"account_name"`
	Side        shared.DebitCredit `json:"side"`
	DebitTotal  decimal.Decimal    `json:"debit_total"`
	CreditTotal decimal.Decimal    `json:"credit_total"`
}

// Balance is signed by the displayed side of the account.
func (l DailyReportLine) Balance() decimal.Decimal {
	if l.Side == shared.Credit {
		return l.CreditTotal.Sub(l.DebitTotal)
	}
	return l.DebitTotal.Sub(l.CreditTotal)
}

// DailyReport lists every account posted on Date.
type DailyReport struct {
	Date        time.Time         `json:"date"`
	Lines       []DailyReportLine `json:"lines"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
}

// IsBalanced compares the debit and credit totals of all lines.
func (r DailyReport) IsBalanced() bool {
	return r.TotalDebit.Equal(r.TotalCredit)
}

// BuildDailyReport totals lines.
func BuildDailyReport(date time.Time, lines []DailyReportLine) DailyReport {
	report := DailyReport{Date: date, Lines: lines, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, l := range lines {
		report.TotalDebit = report.TotalDebit.Add(l.DebitTotal)
		report.TotalCredit = report.TotalCredit.Add(l.CreditTotal)
	}
	return report
}
