package pgstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const accountColumns = `code, name, bspl, nature, element, aggregation, version`

// InsertAccount stores an account with its structure.
func (s *Store) InsertAccount(ctx context.Context, account accounts.Account, structure accounts.Structure) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.conn(ctx).Exec(ctx, `
INSERT INTO accounts (`+accountColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			account.Code, account.Name, account.BSPL.Label(), account.Nature.Label(),
			account.Element.Label(), account.Aggregation.Label(), account.Version)
		if db.IsUniqueViolation(err) {
			return &shared.DuplicateError{Entity: "account", Key: account.Code}
		}
		if err != nil {
			return err
		}
		_, err = s.conn(ctx).Exec(ctx, `
INSERT INTO account_structures (account_code, path, version) VALUES ($1, $2, $3)`,
			structure.AccountCode, structure.Path, structure.Version)
		return err
	})
}

// FindAccount loads one account.
func (s *Store) FindAccount(ctx context.Context, code string) (accounts.Account, error) {
	row := s.conn(ctx).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = $1`, code)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return accounts.Account{}, &shared.NotFoundError{Entity: "account", Key: code}
	}
	return account, err
}

// ListAccounts loads every account.
func (s *Store) ListAccounts(ctx context.Context) ([]accounts.Account, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []accounts.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

// UpdateAccountIfVersion rewrites master fields when the version matches.
func (s *Store) UpdateAccountIfVersion(ctx context.Context, code string, expected int64, account accounts.Account) (int64, error) {
	return s.exec(ctx, `
UPDATE accounts
SET name = $3, bspl = $4, nature = $5, element = $6, aggregation = $7, version = version + 1
WHERE code = $1 AND version = $2`,
		code, expected, account.Name, account.BSPL.Label(), account.Nature.Label(),
		account.Element.Label(), account.Aggregation.Label())
}

// AccountVersion reads an account's version.
func (s *Store) AccountVersion(ctx context.Context, code string) (int64, bool, error) {
	return s.version(ctx, `SELECT version FROM accounts WHERE code = $1`, code)
}

// FindStructure loads one structure.
func (s *Store) FindStructure(ctx context.Context, code string) (accounts.Structure, error) {
	var st accounts.Structure
	err := s.conn(ctx).QueryRow(ctx, `
SELECT account_code, path, version FROM account_structures WHERE account_code = $1`, code).
		Scan(&st.AccountCode, &st.Path, &st.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return accounts.Structure{}, &shared.NotFoundError{Entity: "account structure", Key: code}
	}
	return st, err
}

// ListStructures loads every structure.
func (s *Store) ListStructures(ctx context.Context) ([]accounts.Structure, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT account_code, path, version FROM account_structures`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (accounts.Structure, error) {
		var st accounts.Structure
		err := row.Scan(&st.AccountCode, &st.Path, &st.Version)
		return st, err
	})
}

// UpdateStructureIfVersion moves a structure when the version matches.
func (s *Store) UpdateStructureIfVersion(ctx context.Context, code string, expected int64, structure accounts.Structure) (int64, error) {
	return s.exec(ctx, `
UPDATE account_structures SET path = $3, version = version + 1
WHERE account_code = $1 AND version = $2`, code, expected, structure.Path)
}

// StructureVersion reads a structure's version.
func (s *Store) StructureVersion(ctx context.Context, code string) (int64, bool, error) {
	return s.version(ctx, `SELECT version FROM account_structures WHERE account_code = $1`, code)
}

func scanAccount(row pgx.Row) (accounts.Account, error) {
	var (
		a                                      accounts.Account
		bspl, nature, element, aggregationText string
		err                                    error
	)
	if err = row.Scan(&a.Code, &a.Name, &bspl, &nature, &element, &aggregationText, &a.Version); err != nil {
		return accounts.Account{}, err
	}
	if a.BSPL, err = accounts.ParseBSPL(bspl); err != nil {
		return accounts.Account{}, err
	}
	if a.Nature, err = shared.ParseDebitCredit(nature); err != nil {
		return accounts.Account{}, err
	}
	if a.Element, err = accounts.ParseTransactionElement(element); err != nil {
		return accounts.Account{}, err
	}
	if a.Aggregation, err = accounts.ParseAggregationKind(aggregationText); err != nil {
		return accounts.Account{}, err
	}
	return a, nil
}
