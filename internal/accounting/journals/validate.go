package journals

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

var structValidator = validator.New()

// Validate checks the journal shape and then that debits equal credits.
// Shape problems yield *shared.ValidationError; unequal sides yield
// *shared.BalanceViolationError carrying both sums.
func Validate(j Journal) error {
	if err := validateShape(j); err != nil {
		return err
	}
	return ValidateBalance(j)
}

// ValidateBalance sums the debit and credit entries of every detail.
func ValidateBalance(j Journal) error {
	debit, credit := j.DebitTotal(), j.CreditTotal()
	if !debit.Equal(credit) {
		return &shared.BalanceViolationError{Debit: debit, Credit: credit}
	}
	return nil
}

func validateShape(j Journal) error {
	if err := structValidator.Struct(j); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return shared.Invalid(fe.Namespace(), "failed "+fe.Tag())
		}
		return shared.Invalid("journal", err.Error())
	}
	seenLines := make(map[int]struct{}, len(j.Details))
	for i, d := range j.Details {
		if _, dup := seenLines[d.LineNumber]; dup {
			return shared.Invalid(fmt.Sprintf("details[%d].line_number", i), fmt.Sprintf("%d is repeated", d.LineNumber))
		}
		seenLines[d.LineNumber] = struct{}{}
		var sides [2]bool
		for k, l := range d.Lines {
			field := fmt.Sprintf("details[%d].lines[%d]", i, k)
			if !l.Amount.IsPositive() {
				return shared.Invalid(field+".amount", "must be greater than zero")
			}
			idx := 0
			if l.Side == shared.Credit {
				idx = 1
			}
			if sides[idx] {
				return shared.Invalid(field+".side", "only one "+l.Side.Label()+" entry per detail")
			}
			sides[idx] = true
			if l.TaxAmount.IsNegative() {
				return shared.Invalid(field+".tax_amount", "must not be negative")
			}
			if l.CurrencyCode != "" && !l.ExchangeRate.IsPositive() {
				return shared.Invalid(field+".exchange_rate", "required with a currency code")
			}
		}
	}
	return nil
}
