// Package concurrency implements the optimistic version check shared by every
// mutable ledger aggregate.
//
// A write is a conditional update matched on key and expected version. When the
// update touches no row the guard always re-reads the current version before
// deciding between NotFound and Conflict. Nothing is retried.
package concurrency

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Adapter is the storage side of the protocol for one aggregate type.
type Adapter[K any, V any] interface {
	// UpdateIfVersion writes value when the stored version equals expected and
	// bumps the stored version by one. It returns the number of rows affected.
	UpdateIfVersion(ctx context.Context, key K, expected int64, value V) (int64, error)
	// CurrentVersion reads the stored version. found is false when no row exists.
	CurrentVersion(ctx context.Context, key K) (version int64, found bool, err error)
}

// Guard turns an Adapter into a compare-and-swap primitive.
type Guard[K any, V any] struct {
	entity   string
	adapter  Adapter[K, V]
	describe func(K) string
	logger   *slog.Logger
	onFail   func(entity, outcome string)
}

// Options carries the optional collaborators of a Guard.
type Options struct {
	Logger *slog.Logger
	// OnFailure observes every rejected write with outcome "not_found" or "conflict".
	OnFailure func(entity, outcome string)
}

// New builds a guard for the named entity. describe renders a key for errors.
func New[K any, V any](entity string, adapter Adapter[K, V], describe func(K) string, opts Options) *Guard[K, V] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard[K, V]{entity: entity, adapter: adapter, describe: describe, logger: logger, onFail: opts.OnFailure}
}

// ConditionalWrite stores value when the persisted version equals expected and
// returns the new version. A missing row yields *shared.NotFoundError, a version
// mismatch yields *shared.VersionConflictError carrying the actual version.
func (g *Guard[K, V]) ConditionalWrite(ctx context.Context, key K, expected int64, value V) (int64, error) {
	affected, err := g.adapter.UpdateIfVersion(ctx, key, expected, value)
	if err != nil {
		return 0, shared.System("conditional write "+g.entity, err)
	}
	if affected > 0 {
		return expected + 1, nil
	}
	return 0, g.disambiguate(ctx, key, expected)
}

// Check verifies that key is persisted at expected without writing.
func (g *Guard[K, V]) Check(ctx context.Context, key K, expected int64) error {
	actual, found, err := g.adapter.CurrentVersion(ctx, key)
	if err != nil {
		return shared.System("read version "+g.entity, err)
	}
	if !found {
		return g.notFound(key)
	}
	if actual != expected {
		return g.conflict(key, expected, actual)
	}
	return nil
}

func (g *Guard[K, V]) disambiguate(ctx context.Context, key K, expected int64) error {
	actual, found, err := g.adapter.CurrentVersion(ctx, key)
	if err != nil {
		return shared.System("read version "+g.entity, err)
	}
	if !found {
		return g.notFound(key)
	}
	return g.conflict(key, expected, actual)
}

func (g *Guard[K, V]) notFound(key K) error {
	desc := g.key(key)
	g.logger.Warn("optimistic write target missing", slog.String("entity", g.entity), slog.String("key", desc))
	g.report("not_found")
	return &shared.NotFoundError{Entity: g.entity, Key: desc}
}

func (g *Guard[K, V]) conflict(key K, expected, actual int64) error {
	desc := g.key(key)
	g.logger.Warn("optimistic write conflict",
		slog.String("entity", g.entity),
		slog.String("key", desc),
		slog.Int64("expected", expected),
		slog.Int64("actual", actual),
	)
	g.report("conflict")
	return &shared.VersionConflictError{Entity: g.entity, Key: desc, Expected: expected, Actual: actual}
}

func (g *Guard[K, V]) key(key K) string {
	if g.describe == nil {
		return ""
	}
	return g.describe(key)
}

func (g *Guard[K, V]) report(outcome string) {
	if g.onFail != nil {
		g.onFail(g.entity, outcome)
	}
}
