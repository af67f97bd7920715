package journals

import "context"

// Repository persists journals at header, detail and line granularity.
type Repository interface {
	// NextVoucherSequence returns a fresh, monotonically increasing number.
	NextVoucherSequence(ctx context.Context) (int64, error)
	// Insert stores header, details and lines. An existing voucher number
	// yields *shared.DuplicateError.
	Insert(ctx context.Context, journal Journal) error
	Find(ctx context.Context, voucherNumber string) (Journal, error)
	List(ctx context.Context, filter Filter) ([]Journal, error)
	// Delete removes the journal with its details and lines, reporting whether it existed.
	Delete(ctx context.Context, voucherNumber string) (bool, error)

	UpdateHeaderIfVersion(ctx context.Context, voucherNumber string, expected int64, journal Journal) (int64, error)
	HeaderVersion(ctx context.Context, voucherNumber string) (int64, bool, error)
	UpdateDetailIfVersion(ctx context.Context, key DetailKey, expected int64, detail Detail) (int64, error)
	DetailVersion(ctx context.Context, key DetailKey) (int64, bool, error)
	UpdateLineIfVersion(ctx context.Context, key LineKey, expected int64, line Line) (int64, error)
	LineVersion(ctx context.Context, key LineKey) (int64, bool, error)
}

type headerAdapter struct{ repo Repository }

func (a headerAdapter) UpdateIfVersion(ctx context.Context, voucher string, expected int64, j Journal) (int64, error) {
	return a.repo.UpdateHeaderIfVersion(ctx, voucher, expected, j)
}

func (a headerAdapter) CurrentVersion(ctx context.Context, voucher string) (int64, bool, error) {
	return a.repo.HeaderVersion(ctx, voucher)
}

type detailAdapter struct{ repo Repository }

func (a detailAdapter) UpdateIfVersion(ctx context.Context, key DetailKey, expected int64, d Detail) (int64, error) {
	return a.repo.UpdateDetailIfVersion(ctx, key, expected, d)
}

func (a detailAdapter) CurrentVersion(ctx context.Context, key DetailKey) (int64, bool, error) {
	return a.repo.DetailVersion(ctx, key)
}

type lineAdapter struct{ repo Repository }

func (a lineAdapter) UpdateIfVersion(ctx context.Context, key LineKey, expected int64, l Line) (int64, error) {
	return a.repo.UpdateLineIfVersion(ctx, key, expected, l)
}

func (a lineAdapter) CurrentVersion(ctx context.Context, key LineKey) (int64, bool, error) {
	return a.repo.LineVersion(ctx, key)
}
