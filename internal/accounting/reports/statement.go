package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// LineKind distinguishes account rows from inserted subtotal rows.
type LineKind string

const (
	LineAccount  LineKind = "ACCOUNT"
	LineSubtotal LineKind = "SUBTOTAL"
	LineTotal    LineKind = "TOTAL"
)

const (
	netIncomeCode = "NET_INCOME"
	netIncomeName = "当期純利益"
)

// Position is an account's amount signed by its normal side, placed under its
// direct parent in the hierarchy.
type Position struct {
	AccountCode string                      `json:"account_code"`
	AccountName string                      `json:"account_name"`
	Element     accounts.TransactionElement `json:"element"`
	Path        string                      `json:"path"`
	ParentCode  string                      `json:"parent_code"`
	ParentName  string                      `json:"parent_name"`
	Amount      decimal.Decimal             `json:"amount"`
}

// StatementLine is one row of a balance sheet or income statement.
type StatementLine struct {
	Kind        LineKind        `json:"kind"`
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Depth       int             `json:"depth"`
	Amount      decimal.Decimal `json:"amount"`
}

// Section groups the rows of one transaction element.
type Section struct {
	Element accounts.TransactionElement `json:"element"`
	Title   string                      `json:"title"`
	Lines   []StatementLine             `json:"lines"`
	Total   decimal.Decimal             `json:"total"`
}

// buildSection lists the positions of element in path order. Accounts sharing
// a parent are followed by a subtotal row for that parent.
func buildSection(element accounts.TransactionElement, positions []Position) Section {
	section := Section{Element: element, Title: element.Label(), Total: decimal.Zero}
	var members []Position
	for _, p := range positions {
		if p.Element == element {
			members = append(members, p)
		}
	}
	sort.SliceStable(members, func(i, j int) bool { return accounts.ComparePath(members[i].Path, members[j].Path) < 0 })

	var (
		group    []Position
		subtotal = decimal.Zero
	)
	flush := func() {
		if len(group) == 0 {
			return
		}
		parent := group[0]
		if parent.ParentCode != "" {
			section.Lines = append(section.Lines, StatementLine{
				Kind:        LineSubtotal,
				AccountCode: parent.ParentCode,
				AccountName: parent.ParentName,
				Depth:       accounts.Depth(parent.Path) - 1,
				Amount:      subtotal,
			})
		}
		group, subtotal = nil, decimal.Zero
	}
	for _, p := range members {
		if len(group) > 0 && group[0].ParentCode != p.ParentCode {
			flush()
		}
		group = append(group, p)
		subtotal = subtotal.Add(p.Amount)
		section.Total = section.Total.Add(p.Amount)
		section.Lines = append(section.Lines, StatementLine{
			Kind:        LineAccount,
			AccountCode: p.AccountCode,
			AccountName: p.AccountName,
			Depth:       accounts.Depth(p.Path),
			Amount:      p.Amount,
		})
	}
	flush()
	return section
}

func (s *Section) appendTotal() {
	s.Lines = append(s.Lines, StatementLine{
		Kind:        LineTotal,
		AccountName: s.Title,
		Amount:      s.Total,
	})
}

func netIncome(positions []Position) decimal.Decimal {
	net := decimal.Zero
	for _, p := range positions {
		switch p.Element {
		case accounts.ElementRevenue:
			net = net.Add(p.Amount)
		case accounts.ElementExpense:
			net = net.Sub(p.Amount)
		}
	}
	return net
}
