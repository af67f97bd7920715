package accounts

import "context"

// Repository persists accounts and their structures.
type Repository interface {
	InsertAccount(ctx context.Context, account Account, structure Structure) error
	FindAccount(ctx context.Context, code string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	UpdateAccountIfVersion(ctx context.Context, code string, expected int64, account Account) (int64, error)
	AccountVersion(ctx context.Context, code string) (int64, bool, error)

	FindStructure(ctx context.Context, code string) (Structure, error)
	ListStructures(ctx context.Context) ([]Structure, error)
	UpdateStructureIfVersion(ctx context.Context, code string, expected int64, structure Structure) (int64, error)
	StructureVersion(ctx context.Context, code string) (int64, bool, error)
}

type accountAdapter struct{ repo Repository }

func (a accountAdapter) UpdateIfVersion(ctx context.Context, code string, expected int64, account Account) (int64, error) {
	return a.repo.UpdateAccountIfVersion(ctx, code, expected, account)
}

func (a accountAdapter) CurrentVersion(ctx context.Context, code string) (int64, bool, error) {
	return a.repo.AccountVersion(ctx, code)
}

type structureAdapter struct{ repo Repository }

func (a structureAdapter) UpdateIfVersion(ctx context.Context, code string, expected int64, structure Structure) (int64, error) {
	return a.repo.UpdateStructureIfVersion(ctx, code, expected, structure)
}

func (a structureAdapter) CurrentVersion(ctx context.Context, code string) (int64, bool, error) {
	return a.repo.StructureVersion(ctx, code)
}
