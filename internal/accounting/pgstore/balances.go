package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const dailyColumns = `posting_date, account_code, sub_account_code, department_code, project_code, closing_flag,
	debit_amount::text, credit_amount::text, version`

const monthlyColumns = `fiscal_year, month, account_code, sub_account_code, department_code, project_code, closing_flag,
	opening_balance::text, debit_amount::text, credit_amount::text, closing_balance::text, version`

const dailyKeyMatch = `posting_date = $1 AND account_code = $2 AND sub_account_code = $3
	AND department_code = $4 AND project_code = $5 AND closing_flag = $6`

const monthlyKeyMatch = `fiscal_year = $1 AND month = $2 AND account_code = $3 AND sub_account_code = $4
	AND department_code = $5 AND project_code = $6 AND closing_flag = $7`

// UpsertDaily adds the deltas to the row, creating it at version 1.
func (s *Store) UpsertDaily(ctx context.Context, key balances.DailyKey, debit, credit decimal.Decimal) (balances.DailyAccountBalance, error) {
	row := s.conn(ctx).QueryRow(ctx, `
INSERT INTO daily_account_balances (posting_date, account_code, sub_account_code, department_code, project_code,
	closing_flag, debit_amount, credit_amount, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
ON CONFLICT (posting_date, account_code, sub_account_code, department_code, project_code, closing_flag)
DO UPDATE SET debit_amount = daily_account_balances.debit_amount + EXCLUDED.debit_amount,
              credit_amount = daily_account_balances.credit_amount + EXCLUDED.credit_amount,
              version = daily_account_balances.version + 1
RETURNING `+dailyColumns,
		append(dailyKeyArgs(key), debit.String(), credit.String())...)
	return scanDaily(row)
}

// FindDaily loads one daily row.
func (s *Store) FindDaily(ctx context.Context, key balances.DailyKey) (balances.DailyAccountBalance, error) {
	row := s.conn(ctx).QueryRow(ctx, `SELECT `+dailyColumns+` FROM daily_account_balances WHERE `+dailyKeyMatch, dailyKeyArgs(key)...)
	b, err := scanDaily(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return balances.DailyAccountBalance{}, &shared.NotFoundError{Entity: "daily balance", Key: key.String()}
	}
	return b, err
}

// ListDaily loads the rows between from and to inclusive; a zero bound is open.
func (s *Store) ListDaily(ctx context.Context, from, to time.Time) ([]balances.DailyAccountBalance, error) {
	rows, err := s.conn(ctx).Query(ctx, `
SELECT `+dailyColumns+` FROM daily_account_balances
WHERE ($1::date IS NULL OR posting_date >= $1) AND ($2::date IS NULL OR posting_date <= $2)
ORDER BY posting_date, account_code, sub_account_code, department_code, project_code, closing_flag`,
		dateParam(from), dateParam(to))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (balances.DailyAccountBalance, error) {
		return scanDaily(row)
	})
}

// DeleteDaily removes the rows between from and to inclusive.
func (s *Store) DeleteDaily(ctx context.Context, from, to time.Time) (int, error) {
	affected, err := s.exec(ctx, `
DELETE FROM daily_account_balances
WHERE ($1::date IS NULL OR posting_date >= $1) AND ($2::date IS NULL OR posting_date <= $2)`,
		dateParam(from), dateParam(to))
	return int(affected), err
}

// UpdateDailyIfVersion replaces the amounts when the version matches.
func (s *Store) UpdateDailyIfVersion(ctx context.Context, key balances.DailyKey, expected int64, row balances.DailyAccountBalance) (int64, error) {
	return s.exec(ctx, `
UPDATE daily_account_balances SET debit_amount = $8, credit_amount = $9, version = version + 1
WHERE `+dailyKeyMatch+` AND version = $7`,
		append(dailyKeyArgs(key), expected, row.DebitAmount.String(), row.CreditAmount.String())...)
}

// DailyVersion reads a daily row's version.
func (s *Store) DailyVersion(ctx context.Context, key balances.DailyKey) (int64, bool, error) {
	return s.version(ctx, `SELECT version FROM daily_account_balances WHERE `+dailyKeyMatch, dailyKeyArgs(key)...)
}

// InsertMonthly stores a new monthly row.
func (s *Store) InsertMonthly(ctx context.Context, row balances.MonthlyAccountBalance) error {
	_, err := s.conn(ctx).Exec(ctx, `
INSERT INTO monthly_account_balances (fiscal_year, month, account_code, sub_account_code, department_code,
	project_code, closing_flag, opening_balance, debit_amount, credit_amount, closing_balance, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		append(monthlyKeyArgs(row.MonthlyKey), row.OpeningBalance.String(), row.DebitAmount.String(),
			row.CreditAmount.String(), row.ClosingBalance.String(), row.Version)...)
	if db.IsUniqueViolation(err) {
		return &shared.DuplicateError{Entity: "monthly balance", Key: row.MonthlyKey.String()}
	}
	return err
}

// FindMonthly loads one monthly row.
func (s *Store) FindMonthly(ctx context.Context, key balances.MonthlyKey) (balances.MonthlyAccountBalance, error) {
	row := s.conn(ctx).QueryRow(ctx, `SELECT `+monthlyColumns+` FROM monthly_account_balances WHERE `+monthlyKeyMatch, monthlyKeyArgs(key)...)
	m, err := scanMonthly(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return balances.MonthlyAccountBalance{}, &shared.NotFoundError{Entity: "monthly balance", Key: key.String()}
	}
	return m, err
}

// ListMonthly loads every row of one fiscal month.
func (s *Store) ListMonthly(ctx context.Context, fiscalYear, month int) ([]balances.MonthlyAccountBalance, error) {
	rows, err := s.conn(ctx).Query(ctx, `
SELECT `+monthlyColumns+` FROM monthly_account_balances
WHERE fiscal_year = $1 AND month = $2
ORDER BY account_code, sub_account_code, department_code, project_code, closing_flag`, fiscalYear, month)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (balances.MonthlyAccountBalance, error) {
		return scanMonthly(row)
	})
}

// UpdateMonthlyIfVersion replaces the amounts when the version matches.
func (s *Store) UpdateMonthlyIfVersion(ctx context.Context, key balances.MonthlyKey, expected int64, row balances.MonthlyAccountBalance) (int64, error) {
	return s.exec(ctx, `
UPDATE monthly_account_balances
SET opening_balance = $9, debit_amount = $10, credit_amount = $11, closing_balance = $12, version = version + 1
WHERE `+monthlyKeyMatch+` AND version = $8`,
		append(monthlyKeyArgs(key), expected, row.OpeningBalance.String(), row.DebitAmount.String(),
			row.CreditAmount.String(), row.ClosingBalance.String())...)
}

// MonthlyVersion reads a monthly row's version.
func (s *Store) MonthlyVersion(ctx context.Context, key balances.MonthlyKey) (int64, bool, error) {
	return s.version(ctx, `SELECT version FROM monthly_account_balances WHERE `+monthlyKeyMatch, monthlyKeyArgs(key)...)
}

func dailyKeyArgs(key balances.DailyKey) []any {
	return []any{dateParam(key.PostingDate), key.AccountCode, key.SubAccountCode, key.DepartmentCode, key.ProjectCode, key.ClosingFlag}
}

func monthlyKeyArgs(key balances.MonthlyKey) []any {
	return []any{key.FiscalYear, key.Month, key.AccountCode, key.SubAccountCode, key.DepartmentCode, key.ProjectCode, key.ClosingFlag}
}

func scanDaily(row pgx.Row) (balances.DailyAccountBalance, error) {
	var (
		b             balances.DailyAccountBalance
		debit, credit string
	)
	err := row.Scan(&b.PostingDate, &b.AccountCode, &b.SubAccountCode, &b.DepartmentCode, &b.ProjectCode,
		&b.ClosingFlag, &debit, &credit, &b.Version)
	if err != nil {
		return balances.DailyAccountBalance{}, err
	}
	b.PostingDate = b.PostingDate.UTC()
	if err := parseDecimals([]string{debit, credit}, &b.DebitAmount, &b.CreditAmount); err != nil {
		return balances.DailyAccountBalance{}, err
	}
	return b, nil
}

func scanMonthly(row pgx.Row) (balances.MonthlyAccountBalance, error) {
	var (
		m        balances.MonthlyAccountBalance
		numerics = make([]string, 4)
	)
	err := row.Scan(&m.FiscalYear, &m.Month, &m.AccountCode, &m.SubAccountCode, &m.DepartmentCode, &m.ProjectCode,
		&m.ClosingFlag, &numerics[0], &numerics[1], &numerics[2], &numerics[3], &m.Version)
	if err != nil {
		return balances.MonthlyAccountBalance{}, err
	}
	if err := parseDecimals(numerics, &m.OpeningBalance, &m.DebitAmount, &m.CreditAmount, &m.ClosingBalance); err != nil {
		return balances.MonthlyAccountBalance{}, err
	}
	return m, nil
}
