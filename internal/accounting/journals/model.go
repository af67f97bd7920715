package journals

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// VoucherKind classifies a journal voucher.
type VoucherKind string

const (
	VoucherNormal   VoucherKind = "NORMAL"
	VoucherClosing  VoucherKind = "CLOSING"
	VoucherTransfer VoucherKind = "TRANSFER"
	VoucherReceipt  VoucherKind = "RECEIPT"
	VoucherPayment  VoucherKind = "PAYMENT"
)

var voucherKindLabels = shared.NewLabelTable("voucher kind", map[VoucherKind]string{
	VoucherNormal:   "通常",
	VoucherClosing:  "決算",
	VoucherTransfer: "振替",
	VoucherReceipt:  "入金",
	VoucherPayment:  "出金",
})

// Label returns the stored label.
func (k VoucherKind) Label() string { return voucherKindLabels.Label(k) }

// ParseVoucherKind resolves a stored label.
func ParseVoucherKind(label string) (VoucherKind, error) { return voucherKindLabels.Parse(label) }

// TaxKind is the consumption tax treatment of a line.
type TaxKind string

const (
	TaxNone       TaxKind = ""
	TaxTaxable    TaxKind = "TAXABLE"
	TaxNonTaxable TaxKind = "NON_TAXABLE"
	TaxExempt     TaxKind = "EXEMPT"
	TaxOutOfScope TaxKind = "OUT_OF_SCOPE"
)

var taxKindLabels = shared.NewLabelTable("tax kind", map[TaxKind]string{
	TaxTaxable:    "課税",
	TaxNonTaxable: "非課税",
	TaxExempt:     "免税",
	TaxOutOfScope: "不課税",
})

// Label returns the stored label, empty for TaxNone.
func (k TaxKind) Label() string { return taxKindLabels.Label(k) }

// ParseTaxKind resolves a stored label. An empty label is TaxNone.
func ParseTaxKind(label string) (TaxKind, error) {
	if shared.NormalizeLabel(label) == "" {
		return TaxNone, nil
	}
	return taxKindLabels.Parse(label)
}

// Journal is a voucher header with its ordered details.
type Journal struct {
	VoucherNumber         string      `validate:"omitempty,max=20"`
	PostingDate           time.Time   `validate:"required"`
	EntryDate             time.Time
	Kind                  VoucherKind `validate:"omitempty,oneof=NORMAL CLOSING TRANSFER RECEIPT PAYMENT"`
	ClosingFlag           bool
	SingleEntryFlag       bool
	PeriodicFlag          bool
	RedSlipFlag           bool
	RedBlackVoucherNumber string
	Description           string `validate:"max=1000"`
	Version               int64
	Details               []Detail `validate:"required,min=1,dive"`
}

// Detail is one numbered line of a voucher holding its debit and credit entries.
type Detail struct {
	LineNumber  int    `validate:"gte=1"`
	Description string `validate:"max=1000"`
	Version     int64
	Lines       []Line `validate:"required,min=1,max=2,dive"`
}

// Line is a debit or credit entry of a detail.
type Line struct {
	Side           shared.DebitCredit `validate:"required,oneof=DEBIT CREDIT"`
	AccountCode    string             `validate:"required,max=10"`
	SubAccountCode string             `validate:"max=10"`
	DepartmentCode string             `validate:"max=10"`
	ProjectCode    string             `validate:"max=10"`
	Amount         decimal.Decimal
	CurrencyCode   string `validate:"omitempty,len=3,uppercase"`
	ExchangeRate   decimal.Decimal
	ForeignAmount  decimal.Decimal
	TaxKind        TaxKind `validate:"omitempty,oneof=TAXABLE NON_TAXABLE EXEMPT OUT_OF_SCOPE"`
	TaxRate        decimal.Decimal
	TaxAmount      decimal.Decimal
	DueDate        *time.Time
	CashFlowFlag   bool
	Version        int64
}

// DetailKey addresses a detail.
type DetailKey struct {
	VoucherNumber string
	LineNumber    int
}

func (k DetailKey) String() string {
	return fmt.Sprintf("%s/%d", k.VoucherNumber, k.LineNumber)
}

// LineKey addresses a debit or credit entry.
type LineKey struct {
	VoucherNumber string
	LineNumber    int
	Side          shared.DebitCredit
}

func (k LineKey) String() string {
	return fmt.Sprintf("%s/%d/%s", k.VoucherNumber, k.LineNumber, k.Side)
}

// DebitTotal sums every debit entry.
func (j Journal) DebitTotal() decimal.Decimal {
	return j.sideTotal(shared.Debit)
}

// CreditTotal sums every credit entry.
func (j Journal) CreditTotal() decimal.Decimal {
	return j.sideTotal(shared.Credit)
}

func (j Journal) sideTotal(side shared.DebitCredit) decimal.Decimal {
	total := decimal.Zero
	for _, d := range j.Details {
		for _, l := range d.Lines {
			if l.Side == side {
				total = total.Add(l.Amount)
			}
		}
	}
	return total
}

// Cancelled reports whether the journal is a red slip or has been cancelled by one.
func (j Journal) Cancelled() bool {
	return j.RedSlipFlag
}

// WithInitialVersions returns a copy with header, details and lines at version 1.
func (j Journal) WithInitialVersions() Journal {
	out := j
	out.Version = 1
	out.Details = make([]Detail, len(j.Details))
	for i, d := range j.Details {
		nd := d
		nd.Version = 1
		nd.Lines = make([]Line, len(d.Lines))
		for k, l := range d.Lines {
			l.Version = 1
			nd.Lines[k] = l
		}
		out.Details[i] = nd
	}
	return out
}

// Reversed returns the red slip of j under voucherNumber: every side swapped,
// same amounts, linked back to j.
func (j Journal) Reversed(voucherNumber string, entryDate time.Time) Journal {
	out := j.WithInitialVersions()
	out.VoucherNumber = voucherNumber
	out.EntryDate = entryDate
	out.RedSlipFlag = true
	out.RedBlackVoucherNumber = j.VoucherNumber
	for i := range out.Details {
		for k := range out.Details[i].Lines {
			out.Details[i].Lines[k].Side = out.Details[i].Lines[k].Side.Opposite()
		}
	}
	return out
}

// Filter selects journals for listing.
type Filter struct {
	From        time.Time
	To          time.Time
	AccountCode string
}

// Matches reports whether j falls inside the filter.
func (f Filter) Matches(j Journal) bool {
	if !f.From.IsZero() && j.PostingDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && j.PostingDate.After(f.To) {
		return false
	}
	if f.AccountCode == "" {
		return true
	}
	for _, d := range j.Details {
		for _, l := range d.Lines {
			if l.AccountCode == f.AccountCode {
				return true
			}
		}
	}
	return false
}

// AccountLine is one posting to an account, flattened for ledger reports.
type AccountLine struct {
	PostingDate    time.Time
	VoucherNumber  string
	LineNumber     int
	Side           shared.DebitCredit
	AccountCode    string
	SubAccountCode string
	DepartmentCode string
	ProjectCode    string
	Amount         decimal.Decimal
	Description    string
	ClosingFlag    bool
}
