package reports

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountSource exposes the chart of accounts.
type AccountSource interface {
	Get(ctx context.Context, code string) (accounts.Account, error)
	List(ctx context.Context) ([]accounts.Account, error)
	Structures(ctx context.Context) ([]accounts.Structure, error)
}

// BalanceSource exposes daily and monthly balances.
type BalanceSource interface {
	Calendar() periods.Calendar
	ListDaily(ctx context.Context, from, to time.Time) ([]balances.DailyAccountBalance, error)
	ListMonthly(ctx context.Context, fiscalYear, month int) ([]balances.MonthlyAccountBalance, error)
}

// LineSource lists the postings of one account.
type LineSource interface {
	AccountLines(ctx context.Context, accountCode string, from, to time.Time) ([]journals.AccountLine, error)
}

// Recorder observes reports that fail their balance check.
type Recorder interface {
	UnbalancedReport(kind string)
}

// Config wires optional collaborators.
type Config struct {
	Logger   *slog.Logger
	Cache    *Cache
	Recorder Recorder
}

// Service builds read-only reports from balances and journals.
type Service struct {
	accounts AccountSource
	balances BalanceSource
	lines    LineSource
	cache    *Cache
	logger   *slog.Logger
	recorder Recorder
	group    singleflight.Group
}

// NewService constructs the report builder.
func NewService(accts AccountSource, bals BalanceSource, lines LineSource, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts: accts,
		balances: bals,
		lines:    lines,
		cache:    cfg.Cache,
		logger:   logger,
		recorder: cfg.Recorder,
	}
}

// DailyReport summarises the daily balances posted on date per account.
func (s *Service) DailyReport(ctx context.Context, date time.Time) (DailyReport, error) {
	date = periods.Day(date)
	key, err := s.cache.BuildKey(ctx, "daily", date.Format(time.DateOnly))
	if err != nil {
		return DailyReport{}, shared.System("build cache key", err)
	}
	var report DailyReport
	err = s.fetch(ctx, key, &report, func(ctx context.Context) (any, error) {
		return s.buildDailyReport(ctx, date)
	})
	if err != nil {
		return DailyReport{}, err
	}
	if !report.IsBalanced() {
		s.unbalanced("daily", slog.String("date", date.Format(time.DateOnly)))
	}
	return report, nil
}

func (s *Service) buildDailyReport(ctx context.Context, date time.Time) (DailyReport, error) {
	rows, err := s.balances.ListDaily(ctx, date, date)
	if err != nil {
		return DailyReport{}, err
	}
	byCode := make(map[string]*DailyReportLine)
	var order []string
	for _, row := range rows {
		line, ok := byCode[row.AccountCode]
		if !ok {
			account, err := s.accounts.Get(ctx, row.AccountCode)
			if err != nil {
				return DailyReport{}, err
			}
			line = &DailyReportLine{
				AccountCode: account.Code,
				AccountName: account.Name,
				Side:        account.Nature,
				DebitTotal:  decimal.Zero,
				CreditTotal: decimal.Zero,
			}
			byCode[row.AccountCode] = line
			order = append(order, row.AccountCode)
		}
		line.DebitTotal = line.DebitTotal.Add(row.DebitAmount)
		line.CreditTotal = line.CreditTotal.Add(row.CreditAmount)
	}
	sort.Strings(order)
	lines := make([]DailyReportLine, 0, len(order))
	for _, code := range order {
		lines = append(lines, *byCode[code])
	}
	return BuildDailyReport(date, lines), nil
}

// TrialBalance reports opening, period and closing amounts for (fiscalYear,
// month). A non-empty filter restricts the report to BS or PL accounts.
func (s *Service) TrialBalance(ctx context.Context, fiscalYear, month int, filter accounts.BSPL) (TrialBalance, error) {
	if err := periods.ValidMonth(month); err != nil {
		return TrialBalance{}, err
	}
	scope := "ALL"
	if filter != "" {
		if filter != accounts.BalanceSheet && filter != accounts.ProfitLoss {
			return TrialBalance{}, shared.Invalid("bspl", "unknown value "+string(filter))
		}
		scope = string(filter)
	}
	key, err := s.cache.BuildKey(ctx, "tb", strconv.Itoa(fiscalYear), strconv.Itoa(month), scope)
	if err != nil {
		return TrialBalance{}, shared.System("build cache key", err)
	}
	var tb TrialBalance
	err = s.fetch(ctx, key, &tb, func(ctx context.Context) (any, error) {
		return s.buildTrialBalance(ctx, fiscalYear, month, filter)
	})
	if err != nil {
		return TrialBalance{}, err
	}
	if !tb.IsBalanced() {
		s.unbalanced("trial_balance", slog.Int("fiscal_year", fiscalYear), slog.Int("month", month))
	}
	return tb, nil
}

type amounts struct {
	opening, debit, credit, closing decimal.Decimal
}

func zeroAmounts() *amounts {
	return &amounts{opening: decimal.Zero, debit: decimal.Zero, credit: decimal.Zero, closing: decimal.Zero}
}

func (s *Service) buildTrialBalance(ctx context.Context, fiscalYear, month int, filter accounts.BSPL) (TrialBalance, error) {
	chart, err := s.loadChart(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	rows, err := s.balances.ListMonthly(ctx, fiscalYear, month)
	if err != nil {
		return TrialBalance{}, err
	}

	own := make(map[string]*amounts)
	for _, row := range rows {
		if _, ok := chart.accounts[row.AccountCode]; !ok {
			return TrialBalance{}, &shared.NotFoundError{Entity: "account", Key: row.AccountCode}
		}
		a, ok := own[row.AccountCode]
		if !ok {
			a = zeroAmounts()
			own[row.AccountCode] = a
		}
		a.opening = a.opening.Add(row.OpeningBalance)
		a.debit = a.debit.Add(row.DebitAmount)
		a.credit = a.credit.Add(row.CreditAmount)
		a.closing = a.closing.Add(row.ClosingBalance)
	}

	rollup := make(map[string]*amounts)
	for code, a := range own {
		account := chart.accounts[code]
		if filter != "" && account.BSPL != filter {
			continue
		}
		for _, ancestor := range chart.ancestors(code) {
			parent, ok := chart.accounts[ancestor]
			if !ok {
				continue
			}
			r, ok := rollup[ancestor]
			if !ok {
				r = zeroAmounts()
				rollup[ancestor] = r
			}
			opening, closing := a.opening, a.closing
			if parent.Nature != account.Nature {
				opening, closing = opening.Neg(), closing.Neg()
			}
			r.opening = r.opening.Add(opening)
			r.debit = r.debit.Add(a.debit)
			r.credit = r.credit.Add(a.credit)
			r.closing = r.closing.Add(closing)
		}
	}

	var lines []TrialBalanceLine
	for _, code := range chart.ordered() {
		account := chart.accounts[code]
		source, summary := own[code], false
		if !account.AcceptsPostings() {
			source, summary = rollup[code], true
		}
		if source == nil || (filter != "" && account.BSPL != filter && !summary) {
			continue
		}
		lines = append(lines, TrialBalanceLine{
			AccountCode: account.Code,
			AccountName: account.Name,
			Nature:      account.Nature,
			BSPL:        account.BSPL,
			Depth:       chart.depth(code),
			Summary:     summary,
			Opening:     valid(source.opening),
			Debit:       valid(source.debit),
			Credit:      valid(source.credit),
			Closing:     valid(source.closing),
		})
	}
	return BuildTrialBalance(fiscalYear, month, lines), nil
}

// GeneralLedger lists the postings to accountCode between from and to with a
// running balance, debit positive. The opening balance is the monthly opening
// of the period containing from plus daily movements before from.
func (s *Service) GeneralLedger(ctx context.Context, accountCode string, from, to time.Time) (GeneralLedger, error) {
	from, to = periods.Day(from), periods.Day(to)
	if to.Before(from) {
		return GeneralLedger{}, shared.Invalid("to", "must not be before from")
	}
	account, err := s.accounts.Get(ctx, accountCode)
	if err != nil {
		return GeneralLedger{}, err
	}
	key, err := s.cache.BuildKey(ctx, "gl", accountCode, from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return GeneralLedger{}, shared.System("build cache key", err)
	}
	var gl GeneralLedger
	err = s.fetch(ctx, key, &gl, func(ctx context.Context) (any, error) {
		return s.buildGeneralLedger(ctx, account, from, to)
	})
	return gl, err
}

func (s *Service) buildGeneralLedger(ctx context.Context, account accounts.Account, from, to time.Time) (GeneralLedger, error) {
	cal := s.balances.Calendar()
	period := cal.PeriodOf(from)
	monthStart, _ := cal.Range(period)

	var (
		monthly []balances.MonthlyAccountBalance
		daily   []balances.DailyAccountBalance
		lines   []journals.AccountLine
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.balances.ListMonthly(gctx, period.FiscalYear, period.Month)
		monthly = rows
		return err
	})
	if from.After(monthStart) {
		g.Go(func() error {
			rows, err := s.balances.ListDaily(gctx, monthStart, from.AddDate(0, 0, -1))
			daily = rows
			return err
		})
	}
	g.Go(func() error {
		rows, err := s.lines.AccountLines(gctx, account.Code, from, to)
		lines = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return GeneralLedger{}, err
	}

	opening := decimal.Zero
	for _, row := range monthly {
		if row.AccountCode == account.Code {
			opening = opening.Add(row.OpeningBalance)
		}
	}
	if account.Nature == shared.Credit {
		opening = opening.Neg()
	}
	for _, row := range daily {
		if row.AccountCode == account.Code {
			opening = opening.Add(row.Balance())
		}
	}

	entries := make([]GeneralLedgerEntry, 0, len(lines))
	for _, l := range lines {
		entry := GeneralLedgerEntry{
			PostingDate:   l.PostingDate,
			VoucherNumber: l.VoucherNumber,
			LineNumber:    l.LineNumber,
			Description:   l.Description,
			Debit:         decimal.Zero,
			Credit:        decimal.Zero,
		}
		if l.Side == shared.Credit {
			entry.Credit = l.Amount
		} else {
			entry.Debit = l.Amount
		}
		entries = append(entries, entry)
	}
	return BuildGeneralLedger(GeneralLedger{
		AccountCode:    account.Code,
		AccountName:    account.Name,
		From:           from,
		To:             to,
		OpeningBalance: opening,
	}, entries), nil
}

// BalanceSheet reports balance-sheet positions at the end of asOf.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	asOf = periods.Day(asOf)
	key, err := s.cache.BuildKey(ctx, "bs", asOf.Format(time.DateOnly))
	if err != nil {
		return BalanceSheet{}, shared.System("build cache key", err)
	}
	var bs BalanceSheet
	err = s.fetch(ctx, key, &bs, func(ctx context.Context) (any, error) {
		positions, err := s.positionsAt(ctx, asOf)
		if err != nil {
			return nil, err
		}
		return BuildBalanceSheet(asOf, positions), nil
	})
	if err != nil {
		return BalanceSheet{}, err
	}
	if !bs.IsBalanced() {
		s.unbalanced("balance_sheet", slog.String("as_of", asOf.Format(time.DateOnly)))
	}
	return bs, nil
}

// positionsAt signs each account's balance at the end of day by its nature:
// the monthly opening of the containing period plus daily movements up to day.
func (s *Service) positionsAt(ctx context.Context, day time.Time) ([]Position, error) {
	cal := s.balances.Calendar()
	period := cal.PeriodOf(day)
	monthStart, _ := cal.Range(period)

	var (
		chart   chart
		monthly []balances.MonthlyAccountBalance
		daily   []balances.DailyAccountBalance
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.loadChart(gctx)
		chart = c
		return err
	})
	g.Go(func() error {
		rows, err := s.balances.ListMonthly(gctx, period.FiscalYear, period.Month)
		monthly = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.balances.ListDaily(gctx, monthStart, day)
		daily = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal)
	for _, row := range monthly {
		totals[row.AccountCode] = totals[row.AccountCode].Add(row.OpeningBalance)
	}
	for _, row := range daily {
		account, ok := chart.accounts[row.AccountCode]
		if !ok {
			return nil, &shared.NotFoundError{Entity: "account", Key: row.AccountCode}
		}
		net := row.Balance()
		if account.Nature == shared.Credit {
			net = net.Neg()
		}
		totals[row.AccountCode] = totals[row.AccountCode].Add(net)
	}
	return chart.positions(totals)
}

// IncomeStatement reports revenue and expense movements of fiscalYear from
// fromMonth through toMonth in fiscal order.
func (s *Service) IncomeStatement(ctx context.Context, fiscalYear, fromMonth, toMonth int) (IncomeStatement, error) {
	months, err := s.balances.Calendar().Months(fiscalYear, fromMonth, toMonth)
	if err != nil {
		return IncomeStatement{}, err
	}
	key, err := s.cache.BuildKey(ctx, "pl", strconv.Itoa(fiscalYear), strconv.Itoa(fromMonth), strconv.Itoa(toMonth))
	if err != nil {
		return IncomeStatement{}, shared.System("build cache key", err)
	}
	var pl IncomeStatement
	err = s.fetch(ctx, key, &pl, func(ctx context.Context) (any, error) {
		positions, err := s.movements(ctx, months)
		if err != nil {
			return nil, err
		}
		return BuildIncomeStatement(fiscalYear, fromMonth, toMonth, positions), nil
	})
	return pl, err
}

func (s *Service) movements(ctx context.Context, months []periods.Period) ([]Position, error) {
	var chart chart
	perMonth := make([][]balances.MonthlyAccountBalance, len(months))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.loadChart(gctx)
		chart = c
		return err
	})
	for i, p := range months {
		g.Go(func() error {
			rows, err := s.balances.ListMonthly(gctx, p.FiscalYear, p.Month)
			perMonth[i] = rows
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	totals := make(map[string]decimal.Decimal)
	for _, rows := range perMonth {
		for _, row := range rows {
			totals[row.AccountCode] = totals[row.AccountCode].Add(row.NetChange())
		}
	}
	return chart.positions(totals)
}

// fetch collapses concurrent builds of the same key and serves them through
// the cache. Every caller decodes its own copy of the result. The shared build
// outlives the cancellation of whichever caller started it.
func (s *Service) fetch(ctx context.Context, key string, dest any, build func(context.Context) (any, error)) error {
	buildCtx := context.WithoutCancel(ctx)
	resultChan := s.group.DoChan(key, func() (any, error) {
		var raw json.RawMessage
		if err := s.cache.FetchJSON(buildCtx, key, &raw, build); err != nil {
			return nil, err
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return shared.System("build report "+key, res.Err)
		}
		return json.Unmarshal(res.Val.(json.RawMessage), dest)
	}
}

func (s *Service) unbalanced(kind string, attrs ...any) {
	s.logger.Warn("report out of balance", append([]any{slog.String("report", kind)}, attrs...)...)
	if s.recorder != nil {
		s.recorder.UnbalancedReport(kind)
	}
}

type chart struct {
	accounts map[string]accounts.Account
	paths    map[string]string
}

func (s *Service) loadChart(ctx context.Context) (chart, error) {
	var (
		list       []accounts.Account
		structures []accounts.Structure
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.accounts.List(gctx)
		list = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.accounts.Structures(gctx)
		structures = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return chart{}, err
	}
	c := chart{
		accounts: make(map[string]accounts.Account, len(list)),
		paths:    make(map[string]string, len(structures)),
	}
	for _, a := range list {
		c.accounts[a.Code] = a
	}
	for _, st := range structures {
		c.paths[st.AccountCode] = st.Path
	}
	return c, nil
}

func (c chart) path(code string) string {
	if p, ok := c.paths[code]; ok {
		return p
	}
	return accounts.BuildPath(code)
}

func (c chart) depth(code string) int {
	return accounts.Depth(c.path(code))
}

// ancestors lists the codes above code, nearest first.
func (c chart) ancestors(code string) []string {
	segments := accounts.Segments(c.path(code))
	out := make([]string, 0, len(segments))
	for i := len(segments) - 2; i >= 0; i-- {
		out = append(out, segments[i])
	}
	return out
}

// ordered lists account codes in hierarchy path order.
func (c chart) ordered() []string {
	codes := make([]string, 0, len(c.accounts))
	for code := range c.accounts {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return accounts.ComparePath(c.path(codes[i]), c.path(codes[j])) < 0 })
	return codes
}

func (c chart) positions(totals map[string]decimal.Decimal) ([]Position, error) {
	out := make([]Position, 0, len(totals))
	for code, amount := range totals {
		account, ok := c.accounts[code]
		if !ok {
			return nil, &shared.NotFoundError{Entity: "account", Key: code}
		}
		p := Position{
			AccountCode: code,
			AccountName: account.Name,
			Element:     account.Element,
			Path:        c.path(code),
			Amount:      amount,
		}
		if parent, ok := accounts.ParentCode(p.Path); ok {
			p.ParentCode = parent
			p.ParentName = c.accounts[parent].Name
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return accounts.ComparePath(out[i].Path, out[j].Path) < 0 })
	return out, nil
}
