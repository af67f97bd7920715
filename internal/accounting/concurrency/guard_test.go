package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func newTestGuard(table *MemoryTable[string, int]) *Guard[string, int] {
	return New[string, int]("row", table, func(k string) string { return k }, Options{})
}

func TestConditionalWriteAdvancesVersion(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable[string, int]()
	table.Insert("a", 1)
	table.Upsert("a", func(v int, _ bool) int { return v })
	table.Upsert("a", func(v int, _ bool) int { return v })
	guard := newTestGuard(table)

	version, err := guard.ConditionalWrite(ctx, "a", 3, 42)
	require.NoError(t, err)
	require.Equal(t, int64(4), version)

	row, ok := table.Get("a")
	require.True(t, ok)
	require.Equal(t, int64(4), row.Version)
	require.Equal(t, 42, row.Value)
}

func TestConditionalWriteConflictCarriesActual(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable[string, int]()
	table.Insert("a", 1)
	table.Upsert("a", func(v int, _ bool) int { return v })
	table.Upsert("a", func(v int, _ bool) int { return v })
	guard := newTestGuard(table)

	_, err := guard.ConditionalWrite(ctx, "a", 2, 42)
	require.ErrorIs(t, err, shared.ErrConflict)
	var conflict *shared.VersionConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, int64(2), conflict.Expected)
	require.Equal(t, int64(3), conflict.Actual)

	row, _ := table.Get("a")
	require.Equal(t, 1, row.Value)
}

func TestConditionalWriteDeletedKeyIsNotFound(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable[string, int]()
	table.Insert("a", 1)
	table.Delete("a")
	guard := newTestGuard(table)

	_, err := guard.ConditionalWrite(ctx, "a", 1, 2)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.NotErrorIs(t, err, shared.ErrConflict)
}

type countingAdapter struct {
	*MemoryTable[string, int]
	reads int
}

func (c *countingAdapter) CurrentVersion(ctx context.Context, key string) (int64, bool, error) {
	c.reads++
	return c.MemoryTable.CurrentVersion(ctx, key)
}

func TestFollowUpReadOnlyOnZeroRows(t *testing.T) {
	ctx := context.Background()
	adapter := &countingAdapter{MemoryTable: NewMemoryTable[string, int]()}
	adapter.Insert("a", 1)
	guard := New[string, int]("row", adapter, nil, Options{})

	_, err := guard.ConditionalWrite(ctx, "a", 1, 5)
	require.NoError(t, err)
	require.Zero(t, adapter.reads)

	_, err = guard.ConditionalWrite(ctx, "a", 1, 6)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 1, adapter.reads)
}

type failingAdapter struct{}

func (failingAdapter) UpdateIfVersion(context.Context, string, int64, int) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingAdapter) CurrentVersion(context.Context, string) (int64, bool, error) {
	return 0, false, nil
}

func TestAdapterFailureIsSystemError(t *testing.T) {
	guard := New[string, int]("row", failingAdapter{}, nil, Options{})
	_, err := guard.ConditionalWrite(context.Background(), "a", 1, 1)
	require.ErrorIs(t, err, shared.ErrSystem)
	require.ErrorContains(t, err, "connection refused")
}

func TestCheckDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable[string, int]()
	table.Insert("a", 7)
	guard := newTestGuard(table)

	require.NoError(t, guard.Check(ctx, "a", 1))
	require.ErrorIs(t, guard.Check(ctx, "a", 2), shared.ErrConflict)
	require.ErrorIs(t, guard.Check(ctx, "b", 1), shared.ErrNotFound)

	row, _ := table.Get("a")
	require.Equal(t, int64(1), row.Version)
}

func TestOnFailureHookSeesOutcome(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable[string, int]()
	table.Insert("a", 1)
	var outcomes []string
	guard := New[string, int]("row", table, nil, Options{OnFailure: func(entity, outcome string) {
		outcomes = append(outcomes, entity+":"+outcome)
	}})

	_, _ = guard.ConditionalWrite(ctx, "a", 9, 1)
	_, _ = guard.ConditionalWrite(ctx, "missing", 1, 1)
	require.Equal(t, []string{"row:conflict", "row:not_found"}, outcomes)
}

func TestConcurrentWritersExactlyOneWins(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	table := NewMemoryTable[string, int]()
	table.Insert("a", 0)
	guard := newTestGuard(table)

	const writers = 16
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			_, err := guard.ConditionalWrite(ctx, "a", 1, v)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, shared.ErrConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(writers-1), conflicts.Load())
	row, _ := table.Get("a")
	require.Equal(t, int64(2), row.Version)
}
