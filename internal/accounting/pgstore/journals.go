package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const headerColumns = `voucher_number, posting_date, entry_date, kind, closing_flag, single_entry_flag,
	periodic_flag, red_slip_flag, red_black_voucher_number, description, version`

const lineColumns = `voucher_number, line_number, side, account_code, sub_account_code, department_code,
	project_code, amount::text, currency_code, exchange_rate::text, foreign_amount::text, tax_kind,
	tax_rate::text, tax_amount::text, due_date, cash_flow_flag, version`

// NextVoucherSequence draws from journal_voucher_seq.
func (s *Store) NextVoucherSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := s.conn(ctx).QueryRow(ctx, `SELECT nextval('journal_voucher_seq')`).Scan(&seq)
	return seq, err
}

// Insert stores the header, details and lines of j.
func (s *Store) Insert(ctx context.Context, j journals.Journal) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		conn := s.conn(ctx)
		_, err := conn.Exec(ctx, `
INSERT INTO journal_headers (`+headerColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			j.VoucherNumber, j.PostingDate, j.EntryDate, j.Kind.Label(), j.ClosingFlag, j.SingleEntryFlag,
			j.PeriodicFlag, j.RedSlipFlag, j.RedBlackVoucherNumber, j.Description, j.Version)
		if db.IsUniqueViolation(err) {
			return &shared.DuplicateError{Entity: "journal", Key: j.VoucherNumber}
		}
		if err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, d := range j.Details {
			batch.Queue(`
INSERT INTO journal_details (voucher_number, line_number, description, version) VALUES ($1, $2, $3, $4)`,
				j.VoucherNumber, d.LineNumber, d.Description, d.Version)
			for _, l := range d.Lines {
				batch.Queue(`
INSERT INTO journal_lines (voucher_number, line_number, side, account_code, sub_account_code, department_code,
	project_code, amount, currency_code, exchange_rate, foreign_amount, tax_kind, tax_rate, tax_amount,
	due_date, cash_flow_flag, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
					lineArgs(j.VoucherNumber, d.LineNumber, l)...)
			}
		}
		return sendBatch(ctx, conn, batch)
	})
}

// Find loads one journal with its details and lines.
func (s *Store) Find(ctx context.Context, voucherNumber string) (journals.Journal, error) {
	row := s.conn(ctx).QueryRow(ctx, `SELECT `+headerColumns+` FROM journal_headers WHERE voucher_number = $1`, voucherNumber)
	j, err := scanHeader(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return journals.Journal{}, &shared.NotFoundError{Entity: "journal", Key: voucherNumber}
	}
	if err != nil {
		return journals.Journal{}, err
	}
	list, err := s.attachDetails(ctx, []journals.Journal{j})
	if err != nil {
		return journals.Journal{}, err
	}
	return list[0], nil
}

// List loads the journals matching filter.
func (s *Store) List(ctx context.Context, filter journals.Filter) ([]journals.Journal, error) {
	rows, err := s.conn(ctx).Query(ctx, `
SELECT `+headerColumns+` FROM journal_headers h
WHERE ($1::date IS NULL OR h.posting_date >= $1)
  AND ($2::date IS NULL OR h.posting_date <= $2)
  AND ($3 = '' OR EXISTS (
        SELECT 1 FROM journal_lines l WHERE l.voucher_number = h.voucher_number AND l.account_code = $3))
ORDER BY h.posting_date, h.voucher_number`,
		dateParam(filter.From), dateParam(filter.To), filter.AccountCode)
	if err != nil {
		return nil, err
	}
	headers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (journals.Journal, error) {
		return scanHeader(row)
	})
	if err != nil || len(headers) == 0 {
		return headers, err
	}
	return s.attachDetails(ctx, headers)
}

// Delete removes a journal; details and lines cascade.
func (s *Store) Delete(ctx context.Context, voucherNumber string) (bool, error) {
	affected, err := s.exec(ctx, `DELETE FROM journal_headers WHERE voucher_number = $1`, voucherNumber)
	return affected > 0, err
}

// UpdateHeaderIfVersion rewrites header fields when the version matches.
func (s *Store) UpdateHeaderIfVersion(ctx context.Context, voucherNumber string, expected int64, j journals.Journal) (int64, error) {
	return s.exec(ctx, `
UPDATE journal_headers
SET posting_date = $3, entry_date = $4, kind = $5, closing_flag = $6, single_entry_flag = $7,
    periodic_flag = $8, red_slip_flag = $9, red_black_voucher_number = $10, description = $11,
    version = version + 1
WHERE voucher_number = $1 AND version = $2`,
		voucherNumber, expected, j.PostingDate, j.EntryDate, j.Kind.Label(), j.ClosingFlag, j.SingleEntryFlag,
		j.PeriodicFlag, j.RedSlipFlag, j.RedBlackVoucherNumber, j.Description)
}

// HeaderVersion reads a header's version.
func (s *Store) HeaderVersion(ctx context.Context, voucherNumber string) (int64, bool, error) {
	return s.version(ctx, `SELECT version FROM journal_headers WHERE voucher_number = $1`, voucherNumber)
}

// UpdateDetailIfVersion rewrites a detail when the version matches.
func (s *Store) UpdateDetailIfVersion(ctx context.Context, key journals.DetailKey, expected int64, d journals.Detail) (int64, error) {
	return s.exec(ctx, `
UPDATE journal_details SET description = $4, version = version + 1
WHERE voucher_number = $1 AND line_number = $2 AND version = $3`,
		key.VoucherNumber, key.LineNumber, expected, d.Description)
}

// DetailVersion reads a detail's version.
func (s *Store) DetailVersion(ctx context.Context, key journals.DetailKey) (int64, bool, error) {
	return s.version(ctx, `SELECT version FROM journal_details WHERE voucher_number = $1 AND line_number = $2`,
		key.VoucherNumber, key.LineNumber)
}

// UpdateLineIfVersion rewrites a line when the version matches.
func (s *Store) UpdateLineIfVersion(ctx context.Context, key journals.LineKey, expected int64, l journals.Line) (int64, error) {
	return s.exec(ctx, `
UPDATE journal_lines
SET account_code = $5, sub_account_code = $6, department_code = $7, project_code = $8, amount = $9,
    currency_code = $10, exchange_rate = $11, foreign_amount = $12, tax_kind = $13, tax_rate = $14,
    tax_amount = $15, due_date = $16, cash_flow_flag = $17, version = version + 1
WHERE voucher_number = $1 AND line_number = $2 AND side = $3 AND version = $4`,
		key.VoucherNumber, key.LineNumber, key.Side.Label(), expected,
		l.AccountCode, l.SubAccountCode, l.DepartmentCode, l.ProjectCode, l.Amount.String(),
		l.CurrencyCode, l.ExchangeRate.String(), l.ForeignAmount.String(), l.TaxKind.Label(),
		l.TaxRate.String(), l.TaxAmount.String(), dueDateParam(l.DueDate), l.CashFlowFlag)
}

// LineVersion reads a line's version.
func (s *Store) LineVersion(ctx context.Context, key journals.LineKey) (int64, bool, error) {
	return s.version(ctx, `
SELECT version FROM journal_lines WHERE voucher_number = $1 AND line_number = $2 AND side = $3`,
		key.VoucherNumber, key.LineNumber, key.Side.Label())
}

func (s *Store) attachDetails(ctx context.Context, headers []journals.Journal) ([]journals.Journal, error) {
	vouchers := make([]string, len(headers))
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		vouchers[i] = h.VoucherNumber
		index[h.VoucherNumber] = i
	}
	conn := s.conn(ctx)

	rows, err := conn.Query(ctx, `
SELECT voucher_number, line_number, description, version FROM journal_details
WHERE voucher_number = ANY($1) ORDER BY voucher_number, line_number`, vouchers)
	if err != nil {
		return nil, err
	}
	type detailRow struct {
		voucher string
		detail  journals.Detail
	}
	details, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (detailRow, error) {
		var r detailRow
		err := row.Scan(&r.voucher, &r.detail.LineNumber, &r.detail.Description, &r.detail.Version)
		return r, err
	})
	if err != nil {
		return nil, err
	}
	detailIndex := make(map[journals.DetailKey][2]int, len(details))
	for _, r := range details {
		i := index[r.voucher]
		headers[i].Details = append(headers[i].Details, r.detail)
		detailIndex[journals.DetailKey{VoucherNumber: r.voucher, LineNumber: r.detail.LineNumber}] = [2]int{i, len(headers[i].Details) - 1}
	}

	lineRows, err := conn.Query(ctx, `
SELECT `+lineColumns+` FROM journal_lines
WHERE voucher_number = ANY($1) ORDER BY voucher_number, line_number, side = $2 DESC`,
		vouchers, shared.Debit.Label())
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		voucher, lineNumber, l, err := scanLine(lineRows)
		if err != nil {
			return nil, err
		}
		pos, ok := detailIndex[journals.DetailKey{VoucherNumber: voucher, LineNumber: lineNumber}]
		if !ok {
			continue
		}
		d := &headers[pos[0]].Details[pos[1]]
		d.Lines = append(d.Lines, l)
	}
	return headers, lineRows.Err()
}

func scanHeader(row pgx.Row) (journals.Journal, error) {
	var (
		j    journals.Journal
		kind string
	)
	err := row.Scan(&j.VoucherNumber, &j.PostingDate, &j.EntryDate, &kind, &j.ClosingFlag, &j.SingleEntryFlag,
		&j.PeriodicFlag, &j.RedSlipFlag, &j.RedBlackVoucherNumber, &j.Description, &j.Version)
	if err != nil {
		return journals.Journal{}, err
	}
	j.PostingDate, j.EntryDate = j.PostingDate.UTC(), j.EntryDate.UTC()
	if j.Kind, err = journals.ParseVoucherKind(kind); err != nil {
		return journals.Journal{}, err
	}
	return j, nil
}

func scanLine(row pgx.Row) (string, int, journals.Line, error) {
	var (
		voucher    string
		lineNumber int
		l          journals.Line
		side, tax  string
		numerics   = make([]string, 5)
		due        pgtype.Date
	)
	err := row.Scan(&voucher, &lineNumber, &side, &l.AccountCode, &l.SubAccountCode, &l.DepartmentCode,
		&l.ProjectCode, &numerics[0], &l.CurrencyCode, &numerics[1], &numerics[2], &tax,
		&numerics[3], &numerics[4], &due, &l.CashFlowFlag, &l.Version)
	if err != nil {
		return "", 0, journals.Line{}, err
	}
	if l.Side, err = shared.ParseDebitCredit(side); err != nil {
		return "", 0, journals.Line{}, err
	}
	if l.TaxKind, err = journals.ParseTaxKind(tax); err != nil {
		return "", 0, journals.Line{}, err
	}
	if err := parseDecimals(numerics, &l.Amount, &l.ExchangeRate, &l.ForeignAmount, &l.TaxRate, &l.TaxAmount); err != nil {
		return "", 0, journals.Line{}, err
	}
	if due.Valid {
		d := due.Time.UTC()
		l.DueDate = &d
	}
	return voucher, lineNumber, l, nil
}

func lineArgs(voucher string, lineNumber int, l journals.Line) []any {
	return []any{
		voucher, lineNumber, l.Side.Label(), l.AccountCode, l.SubAccountCode, l.DepartmentCode,
		l.ProjectCode, l.Amount.String(), l.CurrencyCode, l.ExchangeRate.String(), l.ForeignAmount.String(),
		l.TaxKind.Label(), l.TaxRate.String(), l.TaxAmount.String(), dueDateParam(l.DueDate), l.CashFlowFlag,
		l.Version,
	}
}

func sendBatch(ctx context.Context, conn db.Querier, batch *pgx.Batch) error {
	sender, ok := conn.(interface {
		SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	})
	if !ok {
		for _, q := range batch.QueuedQueries {
			if _, err := conn.Exec(ctx, q.SQL, q.Arguments...); err != nil {
				return err
			}
		}
		return nil
	}
	results := sender.SendBatch(ctx, batch)
	for range batch.QueuedQueries {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

func dateParam(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: t, Valid: true}
}

func dueDateParam(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return dateParam(*t)
}
