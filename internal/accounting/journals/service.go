package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/concurrency"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountLookup resolves accounts that may receive postings.
type AccountLookup interface {
	PostingAccount(ctx context.Context, code string) (accounts.Account, error)
}

// BalancePoster receives the daily deltas of posted lines.
type BalancePoster interface {
	UpsertDaily(ctx context.Context, key balances.DailyKey, deltaDebit, deltaCredit decimal.Decimal) (balances.DailyAccountBalance, error)
}

// EventRecorder counts ledger operations by action and outcome.
type EventRecorder interface {
	JournalEvent(action, outcome string)
}

// Config wires optional collaborators.
type Config struct {
	Logger        *slog.Logger
	Cache         shared.Invalidator
	Events        EventRecorder
	Tx            shared.TxRunner
	Guard         concurrency.Options
	VoucherPrefix string
}

const maxVoucherAttempts = 1000

// Service posts, corrects, cancels and deletes journals.
type Service struct {
	repo     Repository
	accounts AccountLookup
	balances BalancePoster
	logger   *slog.Logger
	cache    shared.Invalidator
	events   EventRecorder
	tx       shared.TxRunner
	prefix   string
	headers  *concurrency.Guard[string, Journal]
	details  *concurrency.Guard[DetailKey, Detail]
	lines    *concurrency.Guard[LineKey, Line]
	now      func() time.Time
}

// NewService constructs the journal ledger.
func NewService(repo Repository, lookup AccountLookup, poster BalancePoster, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	guardOpts := cfg.Guard
	if guardOpts.Logger == nil {
		guardOpts.Logger = logger
	}
	prefix := cfg.VoucherPrefix
	if prefix == "" {
		prefix = "J"
	}
	return &Service{
		repo:     repo,
		accounts: lookup,
		balances: poster,
		logger:   logger,
		cache:    cfg.Cache,
		events:   cfg.Events,
		tx:       cfg.Tx,
		prefix:   prefix,
		headers:  concurrency.New[string, Journal]("journal", headerAdapter{repo}, func(v string) string { return v }, guardOpts),
		details:  concurrency.New[DetailKey, Detail]("journal detail", detailAdapter{repo}, DetailKey.String, guardOpts),
		lines:    concurrency.New[LineKey, Line]("journal line", lineAdapter{repo}, LineKey.String, guardOpts),
		now:      time.Now,
	}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get returns one journal.
func (s *Service) Get(ctx context.Context, voucherNumber string) (Journal, error) {
	return s.repo.Find(ctx, voucherNumber)
}

// List returns journals matching filter ordered by posting date and voucher number.
func (s *Service) List(ctx context.Context, filter Filter) ([]Journal, error) {
	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.System("list journals", err)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].PostingDate.Equal(list[j].PostingDate) {
			return list[i].PostingDate.Before(list[j].PostingDate)
		}
		return list[i].VoucherNumber < list[j].VoucherNumber
	})
	return list, nil
}

// Post validates journal, stores it at version 1 and applies one daily balance
// delta per line. A journal without a voucher number receives the next one.
func (s *Service) Post(ctx context.Context, journal Journal) (Journal, error) {
	journal = s.normalize(journal)
	if err := s.check(ctx, journal); err != nil {
		s.record("post", err)
		return Journal{}, err
	}
	var posted Journal
	err := shared.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		var err error
		posted, err = s.post(ctx, journal)
		return err
	})
	s.record("post", err)
	if err != nil {
		return Journal{}, err
	}
	s.logger.Info("journal posted",
		slog.String("voucher", posted.VoucherNumber),
		slog.String("posting_date", posted.PostingDate.Format(time.DateOnly)),
		slog.String("amount", posted.DebitTotal().String()),
	)
	s.invalidate(ctx)
	return posted, nil
}

func (s *Service) post(ctx context.Context, journal Journal) (Journal, error) {
	numbered := journal.VoucherNumber == ""
	for attempt := 0; ; attempt++ {
		if numbered {
			number, err := s.nextVoucherNumber(ctx)
			if err != nil {
				return Journal{}, err
			}
			journal.VoucherNumber = number
		}
		journal = journal.WithInitialVersions()
		err := s.repo.Insert(ctx, journal)
		var dup *shared.DuplicateError
		if numbered && errors.As(err, &dup) && attempt < maxVoucherAttempts {
			continue
		}
		if err != nil {
			return Journal{}, shared.System("insert journal", err)
		}
		break
	}
	for _, p := range PostingsOf(journal, false) {
		if _, err := s.balances.UpsertDaily(ctx, p.Key, p.Debit, p.Credit); err != nil {
			return Journal{}, err
		}
	}
	return journal, nil
}

// Cancel posts the red slip of voucherNumber and marks the original cancelled.
// It returns the red slip.
func (s *Service) Cancel(ctx context.Context, voucherNumber string) (Journal, error) {
	var red Journal
	err := shared.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		original, err := s.repo.Find(ctx, voucherNumber)
		if err != nil {
			return err
		}
		if original.RedSlipFlag {
			return &shared.AlreadyCancelledError{VoucherNumber: voucherNumber}
		}
		if err := s.headers.Check(ctx, original.VoucherNumber, original.Version); err != nil {
			return err
		}
		red, err = s.post(ctx, original.Reversed("", periods.Day(s.now())))
		if err != nil {
			return err
		}
		marked := original
		marked.RedSlipFlag = true
		marked.RedBlackVoucherNumber = red.VoucherNumber
		_, err = s.headers.ConditionalWrite(ctx, original.VoucherNumber, original.Version, marked)
		return err
	})
	s.record("cancel", err)
	if err != nil {
		return Journal{}, err
	}
	s.logger.Info("journal cancelled",
		slog.String("voucher", voucherNumber),
		slog.String("red_slip", red.VoucherNumber),
	)
	s.invalidate(ctx)
	return red, nil
}

// Update replaces a journal's header, details and lines. Every version supplied
// by the caller is checked before the first write, so stale input is rejected
// without side effects. Daily balances receive the difference between the old
// and new lines. The set of details and line sides must stay the same.
func (s *Service) Update(ctx context.Context, journal Journal) (Journal, error) {
	journal.PostingDate = periods.Day(journal.PostingDate)
	journal.EntryDate = periods.Day(journal.EntryDate)
	if journal.VoucherNumber == "" {
		return Journal{}, shared.Invalid("voucher_number", "required")
	}
	if err := s.check(ctx, journal); err != nil {
		s.record("update", err)
		return Journal{}, err
	}
	var updated Journal
	err := shared.RunInTx(ctx, s.tx, func(ctx context.Context) error {
		current, err := s.repo.Find(ctx, journal.VoucherNumber)
		if err != nil {
			return err
		}
		if current.RedSlipFlag {
			return &shared.AlreadyCancelledError{VoucherNumber: current.VoucherNumber}
		}
		if err := sameShape(current, journal); err != nil {
			return err
		}
		journal.RedSlipFlag = current.RedSlipFlag
		journal.RedBlackVoucherNumber = current.RedBlackVoucherNumber
		if err := s.checkVersions(ctx, journal); err != nil {
			return err
		}
		updated, err = s.write(ctx, journal)
		if err != nil {
			return err
		}
		for _, p := range netPostings(current, updated) {
			if _, err := s.balances.UpsertDaily(ctx, p.Key, p.Debit, p.Credit); err != nil {
				return err
			}
		}
		return nil
	})
	s.record("update", err)
	if err != nil {
		return Journal{}, err
	}
	s.logger.Info("journal updated", slog.String("voucher", updated.VoucherNumber), slog.Int64("version", updated.Version))
	s.invalidate(ctx)
	return updated, nil
}

// Delete removes a journal without touching balances.
func (s *Service) Delete(ctx context.Context, voucherNumber string) error {
	existed, err := s.repo.Delete(ctx, voucherNumber)
	if err == nil && !existed {
		err = &shared.NotFoundError{Entity: "journal", Key: voucherNumber}
	}
	err = shared.System("delete journal", err)
	s.record("delete", err)
	if err != nil {
		return err
	}
	s.logger.Info("journal deleted", slog.String("voucher", voucherNumber))
	s.invalidate(ctx)
	return nil
}

// Postings returns the daily deltas of every journal posted between from and to.
func (s *Service) Postings(ctx context.Context, from, to time.Time) ([]balances.Posting, error) {
	list, err := s.List(ctx, Filter{From: from, To: to})
	if err != nil {
		return nil, err
	}
	var out []balances.Posting
	for _, j := range list {
		out = append(out, PostingsOf(j, false)...)
	}
	return out, nil
}

// AccountLines returns every posting to accountCode between from and to in
// posting date, voucher and line order.
func (s *Service) AccountLines(ctx context.Context, accountCode string, from, to time.Time) ([]AccountLine, error) {
	list, err := s.List(ctx, Filter{From: periods.Day(from), To: periods.Day(to), AccountCode: accountCode})
	if err != nil {
		return nil, err
	}
	var out []AccountLine
	for _, j := range list {
		for _, d := range j.Details {
			for _, l := range d.Lines {
				if l.AccountCode != accountCode {
					continue
				}
				desc := d.Description
				if desc == "" {
					desc = j.Description
				}
				out = append(out, AccountLine{
					PostingDate:    j.PostingDate,
					VoucherNumber:  j.VoucherNumber,
					LineNumber:     d.LineNumber,
					Side:           l.Side,
					AccountCode:    l.AccountCode,
					SubAccountCode: l.SubAccountCode,
					DepartmentCode: l.DepartmentCode,
					ProjectCode:    l.ProjectCode,
					Amount:         l.Amount,
					Description:    desc,
					ClosingFlag:    j.ClosingFlag,
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.PostingDate.Equal(b.PostingDate) {
			return a.PostingDate.Before(b.PostingDate)
		}
		if a.VoucherNumber != b.VoucherNumber {
			return a.VoucherNumber < b.VoucherNumber
		}
		return a.LineNumber < b.LineNumber
	})
	return out, nil
}

// PostingsOf maps every line of j to its daily delta, negated when reverse is set.
func PostingsOf(j Journal, reverse bool) []balances.Posting {
	out := make([]balances.Posting, 0)
	for _, d := range j.Details {
		for _, l := range d.Lines {
			amount := l.Amount
			if reverse {
				amount = amount.Neg()
			}
			p := balances.Posting{
				Key: balances.DailyKey{
					PostingDate: periods.Day(j.PostingDate),
					Dimensions: balances.Dimensions{
						AccountCode:    l.AccountCode,
						SubAccountCode: l.SubAccountCode,
						DepartmentCode: l.DepartmentCode,
						ProjectCode:    l.ProjectCode,
						ClosingFlag:    j.ClosingFlag,
					},
				},
				Debit:  decimal.Zero,
				Credit: decimal.Zero,
			}
			if l.Side == shared.Debit {
				p.Debit = amount
			} else {
				p.Credit = amount
			}
			out = append(out, p)
		}
	}
	return out
}

func (s *Service) normalize(j Journal) Journal {
	j.PostingDate = periods.Day(j.PostingDate)
	if j.EntryDate.IsZero() {
		j.EntryDate = s.now()
	}
	j.EntryDate = periods.Day(j.EntryDate)
	if j.Kind == "" {
		j.Kind = VoucherNormal
	}
	if j.Kind == VoucherClosing {
		j.ClosingFlag = true
	}
	return j
}

func (s *Service) check(ctx context.Context, j Journal) error {
	if err := Validate(j); err != nil {
		return err
	}
	seen := make(map[string]struct{})
	for _, d := range j.Details {
		for _, l := range d.Lines {
			if _, ok := seen[l.AccountCode]; ok {
				continue
			}
			if _, err := s.accounts.PostingAccount(ctx, l.AccountCode); err != nil {
				return err
			}
			seen[l.AccountCode] = struct{}{}
		}
	}
	return nil
}

func (s *Service) checkVersions(ctx context.Context, j Journal) error {
	if err := s.headers.Check(ctx, j.VoucherNumber, j.Version); err != nil {
		return err
	}
	for _, d := range j.Details {
		if err := s.details.Check(ctx, DetailKey{VoucherNumber: j.VoucherNumber, LineNumber: d.LineNumber}, d.Version); err != nil {
			return err
		}
		for _, l := range d.Lines {
			key := LineKey{VoucherNumber: j.VoucherNumber, LineNumber: d.LineNumber, Side: l.Side}
			if err := s.lines.Check(ctx, key, l.Version); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) write(ctx context.Context, j Journal) (Journal, error) {
	out := j
	version, err := s.headers.ConditionalWrite(ctx, j.VoucherNumber, j.Version, j)
	if err != nil {
		return Journal{}, err
	}
	out.Version = version
	out.Details = make([]Detail, len(j.Details))
	for i, d := range j.Details {
		nd := d
		key := DetailKey{VoucherNumber: j.VoucherNumber, LineNumber: d.LineNumber}
		if nd.Version, err = s.details.ConditionalWrite(ctx, key, d.Version, d); err != nil {
			return Journal{}, err
		}
		nd.Lines = make([]Line, len(d.Lines))
		for k, l := range d.Lines {
			lineKey := LineKey{VoucherNumber: j.VoucherNumber, LineNumber: d.LineNumber, Side: l.Side}
			if l.Version, err = s.lines.ConditionalWrite(ctx, lineKey, l.Version, l); err != nil {
				return Journal{}, err
			}
			nd.Lines[k] = l
		}
		out.Details[i] = nd
	}
	return out, nil
}

// nextVoucherNumber skips numbers already taken by explicitly numbered journals.
func (s *Service) nextVoucherNumber(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxVoucherAttempts; attempt++ {
		seq, err := s.repo.NextVoucherSequence(ctx)
		if err != nil {
			return "", shared.System("next voucher sequence", err)
		}
		number := fmt.Sprintf("%s%05d", s.prefix, seq)
		_, taken, err := s.repo.HeaderVersion(ctx, number)
		if err != nil {
			return "", shared.System("check voucher number", err)
		}
		if !taken {
			return number, nil
		}
	}
	return "", shared.System("next voucher sequence", fmt.Errorf("no free voucher number after %d attempts", maxVoucherAttempts))
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump", slog.Any("error", err))
	}
}

func (s *Service) record(action string, err error) {
	if s.events == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = outcomeOf(err)
	}
	s.events.JournalEvent(action, outcome)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func sameShape(current, next Journal) error {
	if len(current.Details) != len(next.Details) {
		return shared.Invalid("details", "detail count differs from the persisted journal; cancel and repost instead")
	}
	want := make(map[LineKey]struct{})
	for _, d := range current.Details {
		for _, l := range d.Lines {
			want[LineKey{LineNumber: d.LineNumber, Side: l.Side}] = struct{}{}
		}
	}
	got := 0
	for _, d := range next.Details {
		for _, l := range d.Lines {
			if _, ok := want[LineKey{LineNumber: d.LineNumber, Side: l.Side}]; !ok {
				return shared.Invalid("details", fmt.Sprintf("line %d %s is not part of the persisted journal", d.LineNumber, l.Side.Label()))
			}
			got++
		}
	}
	if got != len(want) {
		return shared.Invalid("details", "line set differs from the persisted journal; cancel and repost instead")
	}
	return nil
}

// netPostings returns the per-key difference between the lines of before and after.
func netPostings(before, after Journal) []balances.Posting {
	type delta struct{ debit, credit decimal.Decimal }
	sums := make(map[balances.DailyKey]*delta)
	var order []balances.DailyKey
	add := func(ps []balances.Posting) {
		for _, p := range ps {
			d, ok := sums[p.Key]
			if !ok {
				d = &delta{debit: decimal.Zero, credit: decimal.Zero}
				sums[p.Key] = d
				order = append(order, p.Key)
			}
			d.debit = d.debit.Add(p.Debit)
			d.credit = d.credit.Add(p.Credit)
		}
	}
	add(PostingsOf(before, true))
	add(PostingsOf(after, false))

	out := make([]balances.Posting, 0, len(order))
	for _, key := range order {
		d := sums[key]
		if d.debit.IsZero() && d.credit.IsZero() {
			continue
		}
		out = append(out, balances.Posting{Key: key, Debit: d.debit, Credit: d.credit})
	}
	return out
}
