// Package accounting assembles the general ledger: chart of accounts, journals,
// daily and monthly balances, and the reports derived from them.
package accounting

import (
	"context"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/concurrency"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Store persists every ledger aggregate.
type Store interface {
	accounts.Repository
	journals.Repository
	balances.Repository
	shared.TxRunner
	Ping(ctx context.Context) error
}

// Metrics observes ledger outcomes. observability.LedgerMetrics implements it.
type Metrics interface {
	JournalEvent(action, outcome string)
	GuardFailure(entity, outcome string)
	UnbalancedReport(kind string)
}

// Options tunes the ledger.
type Options struct {
	Logger           *slog.Logger
	Cache            *reports.Cache
	Metrics          Metrics
	FiscalStartMonth int
	VoucherPrefix    string
}

// Ledger exposes the ledger services sharing one store.
type Ledger struct {
	Accounts *accounts.Service
	Journals *journals.Service
	Balances *balances.Service
	Reports  *reports.Service

	store    Store
	calendar periods.Calendar
	logger   *slog.Logger
}

// New wires the services over store.
func New(store Store, opts Options) (*Ledger, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	startMonth := opts.FiscalStartMonth
	if startMonth == 0 {
		startMonth = 4
	}
	calendar, err := periods.NewCalendar(startMonth)
	if err != nil {
		return nil, err
	}

	guard := concurrency.Options{Logger: logger}
	var (
		events   journals.EventRecorder
		recorder reports.Recorder
	)
	if opts.Metrics != nil {
		guard.OnFailure = opts.Metrics.GuardFailure
		events = opts.Metrics
		recorder = opts.Metrics
	}
	var invalidator shared.Invalidator
	if opts.Cache != nil {
		invalidator = opts.Cache
	}

	acct := accounts.NewService(store, logger.With(slog.String("component", "accounts")), guard)
	acct.WithCache(invalidator)
	bal := balances.NewService(store, acct, balances.Config{
		Logger:   logger.With(slog.String("component", "balances")),
		Cache:    invalidator,
		Guard:    guard,
		Calendar: calendar,
	})
	jrn := journals.NewService(store, acct, bal, journals.Config{
		Logger:        logger.With(slog.String("component", "journals")),
		Cache:         invalidator,
		Events:        events,
		Tx:            store,
		Guard:         guard,
		VoucherPrefix: opts.VoucherPrefix,
	})
	rep := reports.NewService(acct, bal, jrn, reports.Config{
		Logger:   logger.With(slog.String("component", "reports")),
		Cache:    opts.Cache,
		Recorder: recorder,
	})
	return &Ledger{
		Accounts: acct,
		Journals: jrn,
		Balances: bal,
		Reports:  rep,
		store:    store,
		calendar: calendar,
		logger:   logger,
	}, nil
}

// Calendar returns the fiscal calendar.
func (l *Ledger) Calendar() periods.Calendar {
	return l.calendar
}

// Ping checks the store.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// RebuildDaily replays posted journals over the daily balances between from and to.
func (l *Ledger) RebuildDaily(ctx context.Context, from, to time.Time) (int, error) {
	return l.Balances.RebuildDaily(ctx, l.Journals, from, to)
}

// AggregatePeriod recomputes the monthly rows of p from daily balances.
func (l *Ledger) AggregatePeriod(ctx context.Context, p periods.Period) (int, error) {
	return l.Balances.AggregatePeriod(ctx, p)
}

// CarryForward opens the month after p with p's closing balances. The last
// fiscal month carries into the next fiscal year with balance-sheet accounts only.
func (l *Ledger) CarryForward(ctx context.Context, p periods.Period) (int, error) {
	if p.Month == l.calendar.LastMonth() {
		return l.Balances.CarryForwardYearEnd(ctx, p.FiscalYear)
	}
	return l.Balances.CarryForward(ctx, p.FiscalYear, p.Month, l.calendar.Next(p).Month)
}

// CloseMonth aggregates p and carries its closing balances forward.
func (l *Ledger) CloseMonth(ctx context.Context, p periods.Period) (aggregated, carried int, err error) {
	aggregated, err = l.AggregatePeriod(ctx, p)
	if err != nil {
		return aggregated, 0, err
	}
	carried, err = l.CarryForward(ctx, p)
	return aggregated, carried, err
}
