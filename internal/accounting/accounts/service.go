package accounts

import (
	"context"
	"log/slog"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/concurrency"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Service manages the chart of accounts.
type Service struct {
	repo       Repository
	logger     *slog.Logger
	cache      shared.Invalidator
	accounts   *concurrency.Guard[string, Account]
	structures *concurrency.Guard[string, Structure]
}

// NewService wires the repository with optimistic guards.
func NewService(repo Repository, logger *slog.Logger, guardOpts concurrency.Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if guardOpts.Logger == nil {
		guardOpts.Logger = logger
	}
	describe := func(code string) string { return code }
	return &Service{
		repo:       repo,
		logger:     logger,
		accounts:   concurrency.New[string, Account]("account", accountAdapter{repo}, describe, guardOpts),
		structures: concurrency.New[string, Structure]("account structure", structureAdapter{repo}, describe, guardOpts),
	}
}

// WithCache makes master and hierarchy writes drop cached reports.
func (s *Service) WithCache(cache shared.Invalidator) {
	s.cache = cache
}

// Create inserts account below parentCode, or as a root when parentCode is empty.
func (s *Service) Create(ctx context.Context, account Account, parentCode string) (Account, Structure, error) {
	if err := account.Validate(); err != nil {
		return Account{}, Structure{}, err
	}
	account.Version = 1
	structure := NewStructure(account.Code)
	if parentCode != "" {
		parent, err := s.repo.FindStructure(ctx, parentCode)
		if err != nil {
			return Account{}, Structure{}, err
		}
		structure = NewStructure(account.Code, Segments(parent.Path)...)
	}
	if err := s.repo.InsertAccount(ctx, account, structure); err != nil {
		return Account{}, Structure{}, err
	}
	s.logger.Info("account created", slog.String("code", account.Code), slog.String("path", structure.Path))
	s.invalidate(ctx)
	return account, structure, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, code string) (Account, error) {
	return s.repo.FindAccount(ctx, code)
}

// List returns every account ordered by code.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	list, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list, nil
}

// PostingAccount returns the account when it may receive journal lines.
func (s *Service) PostingAccount(ctx context.Context, code string) (Account, error) {
	account, err := s.repo.FindAccount(ctx, code)
	if err != nil {
		return Account{}, err
	}
	if !account.AcceptsPostings() {
		return Account{}, shared.Invalid("account_code", code+" is a "+account.Aggregation.Label()+" and does not accept postings")
	}
	return account, nil
}

// Update rewrites master fields under the account's version.
func (s *Service) Update(ctx context.Context, account Account) (Account, error) {
	if err := account.Validate(); err != nil {
		return Account{}, err
	}
	version, err := s.accounts.ConditionalWrite(ctx, account.Code, account.Version, account)
	if err != nil {
		return Account{}, err
	}
	account.Version = version
	s.invalidate(ctx)
	return account, nil
}

// Structure returns the hierarchy entry of code.
func (s *Service) Structure(ctx context.Context, code string) (Structure, error) {
	return s.repo.FindStructure(ctx, code)
}

// Structures returns every structure ordered by path.
func (s *Service) Structures(ctx context.Context) ([]Structure, error) {
	all, err := s.repo.ListStructures(ctx)
	if err != nil {
		return nil, err
	}
	sortStructures(all)
	return all, nil
}

// Children lists structures whose parent is code.
func (s *Service) Children(ctx context.Context, code string) ([]Structure, error) {
	all, err := s.repo.ListStructures(ctx)
	if err != nil {
		return nil, err
	}
	var out []Structure
	for _, st := range all {
		if parent, ok := st.ParentCode(); ok && parent == code {
			out = append(out, st)
		}
	}
	sortStructures(out)
	return out, nil
}

// Descendants lists every structure below code at any depth.
func (s *Service) Descendants(ctx context.Context, code string) ([]Structure, error) {
	root, err := s.repo.FindStructure(ctx, code)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.ListStructures(ctx)
	if err != nil {
		return nil, err
	}
	var out []Structure
	for _, st := range all {
		if IsDescendant(st.Path, root.Path) {
			out = append(out, st)
		}
	}
	sortStructures(out)
	return out, nil
}

// Reparent moves code below newParent (root when empty). The moved structure is
// written under expectedVersion; descendant paths are rewritten afterwards, each
// under its own current version.
func (s *Service) Reparent(ctx context.Context, code, newParent string, expectedVersion int64) (Structure, error) {
	current, err := s.repo.FindStructure(ctx, code)
	if err != nil {
		return Structure{}, err
	}
	next := NewStructure(code)
	if newParent != "" {
		parent, err := s.repo.FindStructure(ctx, newParent)
		if err != nil {
			return Structure{}, err
		}
		if parent.AccountCode == code || IsDescendant(parent.Path, current.Path) {
			return Structure{}, shared.Invalid("parent_code", newParent+" lies below "+code)
		}
		next = NewStructure(code, Segments(parent.Path)...)
	}
	descendants, err := s.Descendants(ctx, code)
	if err != nil {
		return Structure{}, err
	}

	version, err := s.structures.ConditionalWrite(ctx, code, expectedVersion, next)
	if err != nil {
		return Structure{}, err
	}
	next.Version = version

	for _, child := range descendants {
		moved := child
		moved.Path = next.Path + child.Path[len(current.Path):]
		if _, err := s.structures.ConditionalWrite(ctx, child.AccountCode, child.Version, moved); err != nil {
			return Structure{}, err
		}
	}
	s.logger.Info("account reparented",
		slog.String("code", code),
		slog.String("from", current.Path),
		slog.String("to", next.Path),
		slog.Int("descendants", len(descendants)),
	)
	s.invalidate(ctx)
	return next, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump", slog.Any("error", err))
	}
}

func sortStructures(list []Structure) {
	sort.Slice(list, func(i, j int) bool { return ComparePath(list[i].Path, list[j].Path) < 0 })
}
