package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// GeneralLedgerEntry is one posting with the balance after it.
type GeneralLedgerEntry struct {
	PostingDate   time.Time       `json:"posting_date"`
	VoucherNumber string          `json:"voucher_number"`
	LineNumber    int             `json:"line_number"`
	Description   string          `json:"description"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Balance       decimal.Decimal `json:"balance"`
}

// GeneralLedger is the chronological detail of one account. Balances are debit
// positive: closing = opening + debit - credit.
type GeneralLedger struct {
	AccountCode    string               `json:"account_code"`
	AccountName    string               `json:"account_name"`
	From           time.Time            `json:"from"`
	To             time.Time            `json:"to"`
	OpeningBalance decimal.Decimal      `json:"opening_balance"`
	Entries        []GeneralLedgerEntry `json:"entries"`
	TotalDebit     decimal.Decimal      `json:"total_debit"`
	TotalCredit    decimal.Decimal      `json:"total_credit"`
	ClosingBalance decimal.Decimal      `json:"closing_balance"`
}

// BuildGeneralLedger fills running balances and totals. entries must be in
// chronological order.
func BuildGeneralLedger(gl GeneralLedger, entries []GeneralLedgerEntry) GeneralLedger {
	running := gl.OpeningBalance
	gl.TotalDebit, gl.TotalCredit = decimal.Zero, decimal.Zero
	gl.Entries = make([]GeneralLedgerEntry, len(entries))
	for i, e := range entries {
		running = running.Add(e.Debit).Sub(e.Credit)
		e.Balance = running
		gl.Entries[i] = e
		gl.TotalDebit = gl.TotalDebit.Add(e.Debit)
		gl.TotalCredit = gl.TotalCredit.Add(e.Credit)
	}
	gl.ClosingBalance = gl.OpeningBalance.Add(gl.TotalDebit).Sub(gl.TotalCredit)
	return gl
}
