package shared

import "context"

// TxRunner runs fn inside a storage transaction carried by ctx.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Invalidator drops cached projections after ledger writes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// RunInTx uses runner when present and calls fn directly otherwise.
func RunInTx(ctx context.Context, runner TxRunner, fn func(ctx context.Context) error) error {
	if runner == nil {
		return fn(ctx)
	}
	return runner.WithinTx(ctx, fn)
}
