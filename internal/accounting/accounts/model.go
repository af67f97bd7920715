package accounts

import "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"

// BSPL separates balance-sheet accounts from profit-and-loss accounts.
type BSPL string

const (
	BalanceSheet BSPL = "BS"
	ProfitLoss   BSPL = "PL"
)

var bsplLabels = shared.NewLabelTable("BS/PL type", map[BSPL]string{
	BalanceSheet: "貸借対照表",
	ProfitLoss:   "損益計算書",
})

// Label returns the stored label.
func (b BSPL) Label() string { return bsplLabels.Label(b) }

// ParseBSPL resolves a stored label.
func ParseBSPL(label string) (BSPL, error) { return bsplLabels.Parse(label) }

// TransactionElement is the class of an account within the accounting equation.
type TransactionElement string

const (
	ElementAsset     TransactionElement = "ASSET"
	ElementLiability TransactionElement = "LIABILITY"
	ElementEquity    TransactionElement = "EQUITY"
	ElementRevenue   TransactionElement = "REVENUE"
	ElementExpense   TransactionElement = "EXPENSE"
)

var elementLabels = shared.NewLabelTable("transaction element", map[TransactionElement]string{
	ElementAsset:     "資産",
	ElementLiability: "負債",
	ElementEquity:    "純資産",
	ElementRevenue:   "収益",
	ElementExpense:   "費用",
})

// Label returns the stored label.
func (e TransactionElement) Label() string { return elementLabels.Label(e) }

// ParseTransactionElement resolves a stored label.
func ParseTransactionElement(label string) (TransactionElement, error) {
	return elementLabels.Parse(label)
}

// NormalSide is the side that increases an account of this element.
func (e TransactionElement) NormalSide() shared.DebitCredit {
	switch e {
	case ElementAsset, ElementExpense:
		return shared.Debit
	default:
		return shared.Credit
	}
}

// BSPL returns the statement an element belongs to.
func (e TransactionElement) BSPL() BSPL {
	switch e {
	case ElementRevenue, ElementExpense:
		return ProfitLoss
	default:
		return BalanceSheet
	}
}

// AggregationKind says whether an account heads a group, sums children, or takes postings.
type AggregationKind string

const (
	AggregationHeading AggregationKind = "HEADING"
	AggregationSummary AggregationKind = "SUMMARY"
	AggregationPosting AggregationKind = "POSTING"
)

var aggregationLabels = shared.NewLabelTable("aggregation kind", map[AggregationKind]string{
	AggregationHeading: "見出科目",
	AggregationSummary: "集計科目",
	AggregationPosting: "計上科目",
})

// Label returns the stored label.
func (a AggregationKind) Label() string { return aggregationLabels.Label(a) }

// ParseAggregationKind resolves a stored label.
func ParseAggregationKind(label string) (AggregationKind, error) {
	return aggregationLabels.Parse(label)
}

// Account is a chart of accounts entry.
type Account struct {
	Code        string
	Name        string
	BSPL        BSPL
	Nature      shared.DebitCredit
	Element     TransactionElement
	Aggregation AggregationKind
	Version     int64
}

// NewAccount fills Nature and BSPL from the element and starts at version 1.
func NewAccount(code, name string, element TransactionElement, aggregation AggregationKind) Account {
	return Account{
		Code:        code,
		Name:        name,
		BSPL:        element.BSPL(),
		Nature:      element.NormalSide(),
		Element:     element,
		Aggregation: aggregation,
		Version:     1,
	}
}

// AcceptsPostings reports whether journal lines may reference the account.
func (a Account) AcceptsPostings() bool {
	return a.Aggregation == AggregationPosting
}

// Validate checks the variant fields.
func (a Account) Validate() error {
	if a.Code == "" {
		return shared.Invalid("code", "required")
	}
	if a.Name == "" {
		return shared.Invalid("name", "required")
	}
	if !bsplLabels.Has(a.BSPL) {
		return shared.Invalid("bspl", "unknown value "+string(a.BSPL))
	}
	if !a.Nature.Valid() {
		return shared.Invalid("nature", "unknown value "+string(a.Nature))
	}
	if !elementLabels.Has(a.Element) {
		return shared.Invalid("element", "unknown value "+string(a.Element))
	}
	if !aggregationLabels.Has(a.Aggregation) {
		return shared.Invalid("aggregation", "unknown value "+string(a.Aggregation))
	}
	return nil
}

// Structure places an account in the hierarchy.
type Structure struct {
	AccountCode string
	Path        string
	Version     int64
}

// NewStructure builds a structure at version 1 whose path ends with the account itself.
func NewStructure(code string, ancestors ...string) Structure {
	return Structure{AccountCode: code, Path: BuildPath(append(ancestors, code)...), Version: 1}
}

// Depth is the number of path segments.
func (s Structure) Depth() int { return Depth(s.Path) }

// ParentCode is the code of the direct parent, empty for a root.
func (s Structure) ParentCode() (string, bool) { return ParentCode(s.Path) }
