// Package pgstore persists ledger aggregates in PostgreSQL through pgx.
//
// Every conditional update is a single UPDATE matched on key and version that
// bumps the version; the affected row count is handed back to the guard.
// Statements run on the transaction carried by the context when there is one.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

//go:embed schema.sql
var schema string

// Store implements every ledger repository over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// WithinTx runs fn inside one RepeatableRead transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, s.pool, fn)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.pool)
}

// version reads a version column, reporting found=false on no rows.
func (s *Store) version(ctx context.Context, query string, args ...any) (int64, bool, error) {
	var v int64
	err := s.conn(ctx).QueryRow(ctx, query, args...).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// exec runs a conditional update and returns the affected row count.
func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := s.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pgstore: numeric %q: %w", raw, err)
	}
	return d, nil
}

func parseDecimals(raws []string, targets ...*decimal.Decimal) error {
	for i, raw := range raws {
		d, err := parseDecimal(raw)
		if err != nil {
			return err
		}
		*targets[i] = d
	}
	return nil
}

var (
	_ accounts.Repository = (*Store)(nil)
	_ journals.Repository = (*Store)(nil)
	_ balances.Repository = (*Store)(nil)
)
