package balances

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository persists daily and monthly balances.
type Repository interface {
	// UpsertDaily inserts the row at version 1 or adds the deltas and bumps the version.
	UpsertDaily(ctx context.Context, key DailyKey, debit, credit decimal.Decimal) (DailyAccountBalance, error)
	FindDaily(ctx context.Context, key DailyKey) (DailyAccountBalance, error)
	ListDaily(ctx context.Context, from, to time.Time) ([]DailyAccountBalance, error)
	DeleteDaily(ctx context.Context, from, to time.Time) (int, error)
	UpdateDailyIfVersion(ctx context.Context, key DailyKey, expected int64, row DailyAccountBalance) (int64, error)
	DailyVersion(ctx context.Context, key DailyKey) (int64, bool, error)

	InsertMonthly(ctx context.Context, row MonthlyAccountBalance) error
	FindMonthly(ctx context.Context, key MonthlyKey) (MonthlyAccountBalance, error)
	ListMonthly(ctx context.Context, fiscalYear, month int) ([]MonthlyAccountBalance, error)
	UpdateMonthlyIfVersion(ctx context.Context, key MonthlyKey, expected int64, row MonthlyAccountBalance) (int64, error)
	MonthlyVersion(ctx context.Context, key MonthlyKey) (int64, bool, error)
}

type dailyAdapter struct{ repo Repository }

func (a dailyAdapter) UpdateIfVersion(ctx context.Context, key DailyKey, expected int64, row DailyAccountBalance) (int64, error) {
	return a.repo.UpdateDailyIfVersion(ctx, key, expected, row)
}

func (a dailyAdapter) CurrentVersion(ctx context.Context, key DailyKey) (int64, bool, error) {
	return a.repo.DailyVersion(ctx, key)
}

type monthlyAdapter struct{ repo Repository }

func (a monthlyAdapter) UpdateIfVersion(ctx context.Context, key MonthlyKey, expected int64, row MonthlyAccountBalance) (int64, error) {
	return a.repo.UpdateMonthlyIfVersion(ctx, key, expected, row)
}

func (a monthlyAdapter) CurrentVersion(ctx context.Context, key MonthlyKey) (int64, bool, error) {
	return a.repo.MonthlyVersion(ctx, key)
}
