package balances

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/concurrency"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountLookup resolves account master data.
type AccountLookup interface {
	Get(ctx context.Context, code string) (accounts.Account, error)
}

// PostingSource replays journal postings for a date range.
type PostingSource interface {
	Postings(ctx context.Context, from, to time.Time) ([]Posting, error)
}

// Config wires optional collaborators.
type Config struct {
	Logger   *slog.Logger
	Cache    shared.Invalidator
	Guard    concurrency.Options
	Calendar periods.Calendar
}

// Service maintains daily and monthly account balances.
type Service struct {
	repo     Repository
	accounts AccountLookup
	calendar periods.Calendar
	logger   *slog.Logger
	cache    shared.Invalidator
	daily    *concurrency.Guard[DailyKey, DailyAccountBalance]
	monthly  *concurrency.Guard[MonthlyKey, MonthlyAccountBalance]
}

// NewService constructs the aggregator.
func NewService(repo Repository, lookup AccountLookup, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	guardOpts := cfg.Guard
	if guardOpts.Logger == nil {
		guardOpts.Logger = logger
	}
	return &Service{
		repo:     repo,
		accounts: lookup,
		calendar: cfg.Calendar,
		logger:   logger,
		cache:    cfg.Cache,
		daily:    concurrency.New[DailyKey, DailyAccountBalance]("daily balance", dailyAdapter{repo}, DailyKey.String, guardOpts),
		monthly:  concurrency.New[MonthlyKey, MonthlyAccountBalance]("monthly balance", monthlyAdapter{repo}, MonthlyKey.String, guardOpts),
	}
}

// Calendar exposes the fiscal calendar used by the service.
func (s *Service) Calendar() periods.Calendar {
	return s.calendar
}

// UpsertDaily adds the deltas to the row for key, creating it at version 1.
func (s *Service) UpsertDaily(ctx context.Context, key DailyKey, deltaDebit, deltaCredit decimal.Decimal) (DailyAccountBalance, error) {
	key.PostingDate = periods.Day(key.PostingDate)
	if key.AccountCode == "" {
		return DailyAccountBalance{}, shared.Invalid("account_code", "required")
	}
	row, err := s.repo.UpsertDaily(ctx, key, deltaDebit, deltaCredit)
	if err != nil {
		return DailyAccountBalance{}, shared.System("upsert daily balance", err)
	}
	return row, nil
}

// Apply upserts every posting in order and stops at the first failure.
func (s *Service) Apply(ctx context.Context, postings []Posting) error {
	for _, p := range postings {
		if _, err := s.UpsertDaily(ctx, p.Key, p.Debit, p.Credit); err != nil {
			return err
		}
	}
	return nil
}

// FindDaily returns one daily row.
func (s *Service) FindDaily(ctx context.Context, key DailyKey) (DailyAccountBalance, error) {
	key.PostingDate = periods.Day(key.PostingDate)
	return s.repo.FindDaily(ctx, key)
}

// ListDaily returns daily rows between from and to inclusive.
func (s *Service) ListDaily(ctx context.Context, from, to time.Time) ([]DailyAccountBalance, error) {
	rows, err := s.repo.ListDaily(ctx, periods.Day(from), periods.Day(to))
	if err != nil {
		return nil, shared.System("list daily balances", err)
	}
	sortDaily(rows)
	return rows, nil
}

// UpdateDaily overwrites a daily row under its version.
func (s *Service) UpdateDaily(ctx context.Context, row DailyAccountBalance) (DailyAccountBalance, error) {
	row.PostingDate = periods.Day(row.PostingDate)
	version, err := s.daily.ConditionalWrite(ctx, row.DailyKey, row.Version, row)
	if err != nil {
		return DailyAccountBalance{}, err
	}
	row.Version = version
	s.invalidate(ctx)
	return row, nil
}

// RecalcMonthlyClosing returns row with its closing balance recomputed for nature.
func RecalcMonthlyClosing(row MonthlyAccountBalance, nature shared.DebitCredit) MonthlyAccountBalance {
	row.RecalcClosing(nature)
	return row
}

// FindMonthly returns one monthly row.
func (s *Service) FindMonthly(ctx context.Context, key MonthlyKey) (MonthlyAccountBalance, error) {
	return s.repo.FindMonthly(ctx, key)
}

// ListMonthly returns every monthly row of a period ordered by dimensions.
func (s *Service) ListMonthly(ctx context.Context, fiscalYear, month int) ([]MonthlyAccountBalance, error) {
	if err := periods.ValidMonth(month); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListMonthly(ctx, fiscalYear, month)
	if err != nil {
		return nil, shared.System("list monthly balances", err)
	}
	sortMonthly(rows)
	return rows, nil
}

// UpdateMonthly overwrites a monthly row under its version after recomputing
// its closing balance.
func (s *Service) UpdateMonthly(ctx context.Context, row MonthlyAccountBalance) (MonthlyAccountBalance, error) {
	account, err := s.accounts.Get(ctx, row.AccountCode)
	if err != nil {
		return MonthlyAccountBalance{}, err
	}
	row.RecalcClosing(account.Nature)
	version, err := s.monthly.ConditionalWrite(ctx, row.MonthlyKey, row.Version, row)
	if err != nil {
		return MonthlyAccountBalance{}, err
	}
	row.Version = version
	s.invalidate(ctx)
	return row, nil
}

// AggregateFromDaily recomputes the period totals of (fiscalYear, month) from the
// daily rows between from and to. Existing rows keep their opening balance and have
// their totals replaced; rows without daily activity in the range drop to zero
// totals. Repeated calls converge. It returns the rows touched.
func (s *Service) AggregateFromDaily(ctx context.Context, fiscalYear, month int, from, to time.Time) (int, error) {
	if err := periods.ValidMonth(month); err != nil {
		return 0, err
	}
	from, to = periods.Day(from), periods.Day(to)
	if to.Before(from) {
		return 0, shared.Invalid("to", "must not be before from")
	}
	daily, err := s.repo.ListDaily(ctx, from, to)
	if err != nil {
		return 0, shared.System("list daily balances", err)
	}

	sums := make(map[Dimensions]*MonthlyAccountBalance)
	for _, row := range daily {
		agg, ok := sums[row.Dimensions]
		if !ok {
			fresh := NewMonthlyBalance(MonthlyKey{FiscalYear: fiscalYear, Month: month, Dimensions: row.Dimensions})
			agg = &fresh
			sums[row.Dimensions] = agg
		}
		agg.DebitAmount = agg.DebitAmount.Add(row.DebitAmount)
		agg.CreditAmount = agg.CreditAmount.Add(row.CreditAmount)
	}
	totals := make([]MonthlyAccountBalance, 0, len(sums))
	for _, agg := range sums {
		totals = append(totals, *agg)
	}
	sortMonthly(totals)

	natures := newNatureCache(s.accounts)
	touched := 0
	for _, total := range totals {
		nature, err := natures.nature(ctx, total.AccountCode)
		if err != nil {
			return touched, err
		}
		existing, err := s.repo.FindMonthly(ctx, total.MonthlyKey)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			total.RecalcClosing(nature)
			if err := s.repo.InsertMonthly(ctx, total); err != nil {
				return touched, shared.System("insert monthly balance", err)
			}
		case err != nil:
			return touched, shared.System("find monthly balance", err)
		default:
			next := existing
			next.DebitAmount = total.DebitAmount
			next.CreditAmount = total.CreditAmount
			next.RecalcClosing(nature)
			if _, err := s.monthly.ConditionalWrite(ctx, next.MonthlyKey, existing.Version, next); err != nil {
				return touched, err
			}
		}
		touched++
	}

	existing, err := s.repo.ListMonthly(ctx, fiscalYear, month)
	if err != nil {
		return touched, shared.System("list monthly balances", err)
	}
	sortMonthly(existing)
	for _, row := range existing {
		if _, ok := sums[row.Dimensions]; ok {
			continue
		}
		if row.DebitAmount.IsZero() && row.CreditAmount.IsZero() {
			continue
		}
		nature, err := natures.nature(ctx, row.AccountCode)
		if err != nil {
			return touched, err
		}
		next := row
		next.DebitAmount = decimal.Zero
		next.CreditAmount = decimal.Zero
		next.RecalcClosing(nature)
		if _, err := s.monthly.ConditionalWrite(ctx, next.MonthlyKey, row.Version, next); err != nil {
			return touched, err
		}
		touched++
	}
	s.logger.Info("monthly balances aggregated",
		slog.Int("fiscal_year", fiscalYear),
		slog.Int("month", month),
		slog.String("from", from.Format(time.DateOnly)),
		slog.String("to", to.Format(time.DateOnly)),
		slog.Int("rows", touched),
	)
	s.invalidate(ctx)
	return touched, nil
}

// AggregatePeriod aggregates a whole fiscal month.
func (s *Service) AggregatePeriod(ctx context.Context, p periods.Period) (int, error) {
	from, to := s.calendar.Range(p)
	return s.AggregateFromDaily(ctx, p.FiscalYear, p.Month, from, to)
}

// CarryForward opens toMonth with fromMonth's closing balances and zero period
// totals. Both months belong to fiscalYear. It returns the rows carried.
func (s *Service) CarryForward(ctx context.Context, fiscalYear, fromMonth, toMonth int) (int, error) {
	if err := periods.ValidMonth(fromMonth); err != nil {
		return 0, err
	}
	if err := periods.ValidMonth(toMonth); err != nil {
		return 0, err
	}
	if s.calendar.Index(toMonth) <= s.calendar.Index(fromMonth) {
		return 0, shared.Invalid("to_month", "must come after from_month in the fiscal year")
	}
	return s.carry(ctx, periods.Period{FiscalYear: fiscalYear, Month: fromMonth}, periods.Period{FiscalYear: fiscalYear, Month: toMonth}, nil)
}

// CarryForwardYearEnd opens the first month of fiscalYear+1 with the closing
// balances of the last month of fiscalYear. Profit-and-loss accounts start the
// new year at zero and are not carried.
func (s *Service) CarryForwardYearEnd(ctx context.Context, fiscalYear int) (int, error) {
	from := periods.Period{FiscalYear: fiscalYear, Month: s.calendar.LastMonth()}
	to := s.calendar.Next(from)
	return s.carry(ctx, from, to, func(a accounts.Account) bool {
		return a.BSPL == accounts.BalanceSheet
	})
}

func (s *Service) carry(ctx context.Context, from, to periods.Period, include func(accounts.Account) bool) (int, error) {
	rows, err := s.repo.ListMonthly(ctx, from.FiscalYear, from.Month)
	if err != nil {
		return 0, shared.System("list monthly balances", err)
	}
	sortMonthly(rows)

	carried := 0
	for _, src := range rows {
		if include != nil {
			account, err := s.accounts.Get(ctx, src.AccountCode)
			if err != nil {
				return carried, err
			}
			if !include(account) {
				continue
			}
		}
		key := MonthlyKey{FiscalYear: to.FiscalYear, Month: to.Month, Dimensions: src.Dimensions}
		existing, err := s.repo.FindMonthly(ctx, key)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			row := NewMonthlyBalance(key)
			row.OpeningBalance = src.ClosingBalance
			row.ClosingBalance = src.ClosingBalance
			if err := s.repo.InsertMonthly(ctx, row); err != nil {
				return carried, shared.System("insert monthly balance", err)
			}
		case err != nil:
			return carried, shared.System("find monthly balance", err)
		default:
			next := existing
			next.OpeningBalance = src.ClosingBalance
			next.DebitAmount = decimal.Zero
			next.CreditAmount = decimal.Zero
			next.ClosingBalance = src.ClosingBalance
			if _, err := s.monthly.ConditionalWrite(ctx, key, existing.Version, next); err != nil {
				return carried, err
			}
		}
		carried++
	}
	s.logger.Info("monthly balances carried forward",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Int("rows", carried),
	)
	s.invalidate(ctx)
	return carried, nil
}

// RebuildDaily resets the daily rows between from and to and replays the
// postings of source over the same range. It returns the postings applied.
func (s *Service) RebuildDaily(ctx context.Context, source PostingSource, from, to time.Time) (int, error) {
	from, to = periods.Day(from), periods.Day(to)
	if to.Before(from) {
		return 0, shared.Invalid("to", "must not be before from")
	}
	postings, err := source.Postings(ctx, from, to)
	if err != nil {
		return 0, err
	}
	removed, err := s.repo.DeleteDaily(ctx, from, to)
	if err != nil {
		return 0, shared.System("delete daily balances", err)
	}
	if err := s.Apply(ctx, postings); err != nil {
		return 0, err
	}
	s.logger.Info("daily balances rebuilt",
		slog.String("from", from.Format(time.DateOnly)),
		slog.String("to", to.Format(time.DateOnly)),
		slog.Int("removed", removed),
		slog.Int("postings", len(postings)),
	)
	s.invalidate(ctx)
	return len(postings), nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump", slog.Any("error", err))
	}
}

type natureCache struct {
	lookup AccountLookup
	seen   map[string]shared.DebitCredit
}

func newNatureCache(lookup AccountLookup) *natureCache {
	return &natureCache{lookup: lookup, seen: make(map[string]shared.DebitCredit)}
}

func (c *natureCache) nature(ctx context.Context, code string) (shared.DebitCredit, error) {
	if n, ok := c.seen[code]; ok {
		return n, nil
	}
	account, err := c.lookup.Get(ctx, code)
	if err != nil {
		return "", err
	}
	c.seen[code] = account.Nature
	return account.Nature, nil
}

func lessDimensions(a, b Dimensions) bool {
	if a.AccountCode != b.AccountCode {
		return a.AccountCode < b.AccountCode
	}
	if a.SubAccountCode != b.SubAccountCode {
		return a.SubAccountCode < b.SubAccountCode
	}
	if a.DepartmentCode != b.DepartmentCode {
		return a.DepartmentCode < b.DepartmentCode
	}
	if a.ProjectCode != b.ProjectCode {
		return a.ProjectCode < b.ProjectCode
	}
	return !a.ClosingFlag && b.ClosingFlag
}

func sortDaily(rows []DailyAccountBalance) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].PostingDate.Equal(rows[j].PostingDate) {
			return rows[i].PostingDate.Before(rows[j].PostingDate)
		}
		return lessDimensions(rows[i].Dimensions, rows[j].Dimensions)
	})
}

func sortMonthly(rows []MonthlyAccountBalance) {
	sort.Slice(rows, func(i, j int) bool {
		return lessDimensions(rows[i].Dimensions, rows[j].Dimensions)
	})
}
