// Package memstore keeps ledger aggregates in process memory. It backs tests
// and the LEDGER_STORE=memory mode of the binaries.
package memstore

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/concurrency"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Store implements every ledger repository.
type Store struct {
	accounts   *concurrency.MemoryTable[string, accounts.Account]
	structures *concurrency.MemoryTable[string, accounts.Structure]

	headers  *concurrency.MemoryTable[string, journals.Journal]
	details  *concurrency.MemoryTable[journals.DetailKey, journals.Detail]
	lines    *concurrency.MemoryTable[journals.LineKey, journals.Line]
	sequence atomic.Int64

	daily   *concurrency.MemoryTable[balances.DailyKey, balances.DailyAccountBalance]
	monthly *concurrency.MemoryTable[balances.MonthlyKey, balances.MonthlyAccountBalance]
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:   concurrency.NewMemoryTable[string, accounts.Account](),
		structures: concurrency.NewMemoryTable[string, accounts.Structure](),
		headers:    concurrency.NewMemoryTable[string, journals.Journal](),
		details:    concurrency.NewMemoryTable[journals.DetailKey, journals.Detail](),
		lines:      concurrency.NewMemoryTable[journals.LineKey, journals.Line](),
		daily:      concurrency.NewMemoryTable[balances.DailyKey, balances.DailyAccountBalance](),
		monthly:    concurrency.NewMemoryTable[balances.MonthlyKey, balances.MonthlyAccountBalance](),
	}
}

// WithinTx runs fn directly. Writes that succeeded before a failure stay applied.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// --- accounts ---

func (s *Store) InsertAccount(_ context.Context, account accounts.Account, structure accounts.Structure) error {
	if !s.accounts.Insert(account.Code, account) {
		return &shared.DuplicateError{Entity: "account", Key: account.Code}
	}
	s.structures.Upsert(structure.AccountCode, func(accounts.Structure, bool) accounts.Structure { return structure })
	return nil
}

func (s *Store) FindAccount(_ context.Context, code string) (accounts.Account, error) {
	row, ok := s.accounts.Get(code)
	if !ok {
		return accounts.Account{}, &shared.NotFoundError{Entity: "account", Key: code}
	}
	row.Value.Version = row.Version
	return row.Value, nil
}

func (s *Store) ListAccounts(context.Context) ([]accounts.Account, error) {
	rows := s.accounts.Select(nil)
	out := make([]accounts.Account, 0, len(rows))
	for _, row := range rows {
		row.Value.Version = row.Version
		out = append(out, row.Value)
	}
	return out, nil
}

func (s *Store) UpdateAccountIfVersion(ctx context.Context, code string, expected int64, account accounts.Account) (int64, error) {
	return s.accounts.UpdateIfVersion(ctx, code, expected, account)
}

func (s *Store) AccountVersion(ctx context.Context, code string) (int64, bool, error) {
	return s.accounts.CurrentVersion(ctx, code)
}

func (s *Store) FindStructure(_ context.Context, code string) (accounts.Structure, error) {
	row, ok := s.structures.Get(code)
	if !ok {
		return accounts.Structure{}, &shared.NotFoundError{Entity: "account structure", Key: code}
	}
	row.Value.Version = row.Version
	return row.Value, nil
}

func (s *Store) ListStructures(context.Context) ([]accounts.Structure, error) {
	rows := s.structures.Select(nil)
	out := make([]accounts.Structure, 0, len(rows))
	for _, row := range rows {
		row.Value.Version = row.Version
		out = append(out, row.Value)
	}
	return out, nil
}

func (s *Store) UpdateStructureIfVersion(ctx context.Context, code string, expected int64, structure accounts.Structure) (int64, error) {
	return s.structures.UpdateIfVersion(ctx, code, expected, structure)
}

func (s *Store) StructureVersion(ctx context.Context, code string) (int64, bool, error) {
	return s.structures.CurrentVersion(ctx, code)
}

// --- journals ---

func (s *Store) NextVoucherSequence(context.Context) (int64, error) {
	return s.sequence.Add(1), nil
}

func (s *Store) Insert(_ context.Context, j journals.Journal) error {
	header := j
	header.Details = nil
	if !s.headers.Insert(j.VoucherNumber, header) {
		return &shared.DuplicateError{Entity: "journal", Key: j.VoucherNumber}
	}
	for _, d := range j.Details {
		detail := d
		detail.Lines = nil
		s.details.Insert(journals.DetailKey{VoucherNumber: j.VoucherNumber, LineNumber: d.LineNumber}, detail)
		for _, l := range d.Lines {
			s.lines.Insert(journals.LineKey{VoucherNumber: j.VoucherNumber, LineNumber: d.LineNumber, Side: l.Side}, l)
		}
	}
	return nil
}

func (s *Store) Find(_ context.Context, voucherNumber string) (journals.Journal, error) {
	j, ok := s.assemble(voucherNumber)
	if !ok {
		return journals.Journal{}, &shared.NotFoundError{Entity: "journal", Key: voucherNumber}
	}
	return j, nil
}

func (s *Store) List(_ context.Context, filter journals.Filter) ([]journals.Journal, error) {
	headers := s.headers.Select(nil)
	out := make([]journals.Journal, 0, len(headers))
	for _, h := range headers {
		j, ok := s.assemble(h.Value.VoucherNumber)
		if ok && filter.Matches(j) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, voucherNumber string) (bool, error) {
	if !s.headers.Delete(voucherNumber) {
		return false, nil
	}
	s.details.DeleteWhere(func(k journals.DetailKey, _ journals.Detail) bool { return k.VoucherNumber == voucherNumber })
	s.lines.DeleteWhere(func(k journals.LineKey, _ journals.Line) bool { return k.VoucherNumber == voucherNumber })
	return true, nil
}

func (s *Store) UpdateHeaderIfVersion(ctx context.Context, voucherNumber string, expected int64, j journals.Journal) (int64, error) {
	j.Details = nil
	return s.headers.UpdateIfVersion(ctx, voucherNumber, expected, j)
}

func (s *Store) HeaderVersion(ctx context.Context, voucherNumber string) (int64, bool, error) {
	return s.headers.CurrentVersion(ctx, voucherNumber)
}

func (s *Store) UpdateDetailIfVersion(ctx context.Context, key journals.DetailKey, expected int64, d journals.Detail) (int64, error) {
	d.Lines = nil
	return s.details.UpdateIfVersion(ctx, key, expected, d)
}

func (s *Store) DetailVersion(ctx context.Context, key journals.DetailKey) (int64, bool, error) {
	return s.details.CurrentVersion(ctx, key)
}

func (s *Store) UpdateLineIfVersion(ctx context.Context, key journals.LineKey, expected int64, l journals.Line) (int64, error) {
	return s.lines.UpdateIfVersion(ctx, key, expected, l)
}

func (s *Store) LineVersion(ctx context.Context, key journals.LineKey) (int64, bool, error) {
	return s.lines.CurrentVersion(ctx, key)
}

func (s *Store) assemble(voucherNumber string) (journals.Journal, bool) {
	header, ok := s.headers.Get(voucherNumber)
	if !ok {
		return journals.Journal{}, false
	}
	j := header.Value
	j.Version = header.Version

	detailRows := s.details.Select(func(k journals.DetailKey, _ journals.Detail) bool { return k.VoucherNumber == voucherNumber })
	j.Details = make([]journals.Detail, 0, len(detailRows))
	for _, row := range detailRows {
		d := row.Value
		d.Version = row.Version
		lineRows := s.lines.Select(func(k journals.LineKey, _ journals.Line) bool {
			return k.VoucherNumber == voucherNumber && k.LineNumber == d.LineNumber
		})
		d.Lines = make([]journals.Line, 0, len(lineRows))
		for _, lr := range lineRows {
			l := lr.Value
			l.Version = lr.Version
			d.Lines = append(d.Lines, l)
		}
		sort.Slice(d.Lines, func(a, b int) bool { return d.Lines[a].Side == shared.Debit && d.Lines[b].Side != shared.Debit })
		j.Details = append(j.Details, d)
	}
	sort.Slice(j.Details, func(a, b int) bool { return j.Details[a].LineNumber < j.Details[b].LineNumber })
	return j, true
}

// --- balances ---

func (s *Store) UpsertDaily(_ context.Context, key balances.DailyKey, debit, credit decimal.Decimal) (balances.DailyAccountBalance, error) {
	row := s.daily.Upsert(key, func(current balances.DailyAccountBalance, exists bool) balances.DailyAccountBalance {
		if !exists {
			return balances.DailyAccountBalance{DailyKey: key, DebitAmount: debit, CreditAmount: credit}
		}
		current.DebitAmount = current.DebitAmount.Add(debit)
		current.CreditAmount = current.CreditAmount.Add(credit)
		return current
	})
	row.Value.Version = row.Version
	return row.Value, nil
}

func (s *Store) FindDaily(_ context.Context, key balances.DailyKey) (balances.DailyAccountBalance, error) {
	row, ok := s.daily.Get(key)
	if !ok {
		return balances.DailyAccountBalance{}, &shared.NotFoundError{Entity: "daily balance", Key: key.String()}
	}
	row.Value.Version = row.Version
	return row.Value, nil
}

func (s *Store) ListDaily(_ context.Context, from, to time.Time) ([]balances.DailyAccountBalance, error) {
	rows := s.daily.Select(func(k balances.DailyKey, _ balances.DailyAccountBalance) bool {
		return inRange(k.PostingDate, from, to)
	})
	out := make([]balances.DailyAccountBalance, 0, len(rows))
	for _, row := range rows {
		row.Value.Version = row.Version
		out = append(out, row.Value)
	}
	return out, nil
}

func (s *Store) DeleteDaily(_ context.Context, from, to time.Time) (int, error) {
	return s.daily.DeleteWhere(func(k balances.DailyKey, _ balances.DailyAccountBalance) bool {
		return inRange(k.PostingDate, from, to)
	}), nil
}

func (s *Store) UpdateDailyIfVersion(ctx context.Context, key balances.DailyKey, expected int64, row balances.DailyAccountBalance) (int64, error) {
	return s.daily.UpdateIfVersion(ctx, key, expected, row)
}

func (s *Store) DailyVersion(ctx context.Context, key balances.DailyKey) (int64, bool, error) {
	return s.daily.CurrentVersion(ctx, key)
}

func (s *Store) InsertMonthly(_ context.Context, row balances.MonthlyAccountBalance) error {
	if !s.monthly.Insert(row.MonthlyKey, row) {
		return &shared.DuplicateError{Entity: "monthly balance", Key: row.MonthlyKey.String()}
	}
	return nil
}

func (s *Store) FindMonthly(_ context.Context, key balances.MonthlyKey) (balances.MonthlyAccountBalance, error) {
	row, ok := s.monthly.Get(key)
	if !ok {
		return balances.MonthlyAccountBalance{}, &shared.NotFoundError{Entity: "monthly balance", Key: key.String()}
	}
	row.Value.Version = row.Version
	return row.Value, nil
}

func (s *Store) ListMonthly(_ context.Context, fiscalYear, month int) ([]balances.MonthlyAccountBalance, error) {
	rows := s.monthly.Select(func(k balances.MonthlyKey, _ balances.MonthlyAccountBalance) bool {
		return k.FiscalYear == fiscalYear && k.Month == month
	})
	out := make([]balances.MonthlyAccountBalance, 0, len(rows))
	for _, row := range rows {
		row.Value.Version = row.Version
		out = append(out, row.Value)
	}
	return out, nil
}

func (s *Store) UpdateMonthlyIfVersion(ctx context.Context, key balances.MonthlyKey, expected int64, row balances.MonthlyAccountBalance) (int64, error) {
	return s.monthly.UpdateIfVersion(ctx, key, expected, row)
}

func (s *Store) MonthlyVersion(ctx context.Context, key balances.MonthlyKey) (int64, bool, error) {
	return s.monthly.CurrentVersion(ctx, key)
}

func inRange(day, from, to time.Time) bool {
	if !from.IsZero() && day.Before(from) {
		return false
	}
	if !to.IsZero() && day.After(to) {
		return false
	}
	return true
}

var (
	_ accounts.Repository = (*Store)(nil)
	_ journals.Repository = (*Store)(nil)
	_ balances.Repository = (*Store)(nil)
	_ shared.TxRunner     = (*Store)(nil)
)
