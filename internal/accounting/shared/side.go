package shared

// DebitCredit identifies a journal side and an account's increasing side.
type DebitCredit string

const (
	Debit  DebitCredit = "DEBIT"
	Credit DebitCredit = "CREDIT"
)

var debitCreditLabels = NewLabelTable("debit/credit side", map[DebitCredit]string{
	Debit:  "借方",
	Credit: "貸方",
})

// Label returns the stored label of the side.
func (d DebitCredit) Label() string { return debitCreditLabels.Label(d) }

// Valid reports whether d is a known side.
func (d DebitCredit) Valid() bool { return debitCreditLabels.Has(d) }

// Opposite swaps debit and credit.
func (d DebitCredit) Opposite() DebitCredit {
	if d == Debit {
		return Credit
	}
	return Debit
}

// ParseDebitCredit resolves a stored label.
func ParseDebitCredit(label string) (DebitCredit, error) {
	return debitCreditLabels.Parse(label)
}
