package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/concurrency"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func seeded(t *testing.T) *accounts.Service {
	t.Helper()
	svc := accounts.NewService(memstore.New(), nil, concurrency.Options{})
	ctx := context.Background()
	for _, c := range []struct {
		code, parent string
		aggregation  accounts.AggregationKind
	}{
		{"1", "", accounts.AggregationHeading},
		{"11", "1", accounts.AggregationSummary},
		{"111", "11", accounts.AggregationPosting},
		{"112", "11", accounts.AggregationPosting},
		{"12", "1", accounts.AggregationPosting},
		{"2", "", accounts.AggregationHeading},
	} {
		_, _, err := svc.Create(ctx, accounts.NewAccount(c.code, "account "+c.code, accounts.ElementAsset, c.aggregation), c.parent)
		require.NoError(t, err)
	}
	return svc
}

func paths(list []accounts.Structure) []string {
	out := make([]string, 0, len(list))
	for _, st := range list {
		out = append(out, st.Path)
	}
	return out
}

func TestCreateBuildsPathFromParent(t *testing.T) {
	svc := seeded(t)
	st, err := svc.Structure(context.Background(), "111")
	require.NoError(t, err)
	require.Equal(t, "1~11~111", st.Path)
	require.Equal(t, 3, st.Depth())
	require.Equal(t, int64(1), st.Version)

	account, err := svc.Get(context.Background(), "111")
	require.NoError(t, err)
	require.Equal(t, shared.Debit, account.Nature)
	require.Equal(t, accounts.BalanceSheet, account.BSPL)

	_, _, err = svc.Create(context.Background(), accounts.NewAccount("113", "orphan", accounts.ElementAsset, accounts.AggregationPosting), "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestChildrenAndDescendants(t *testing.T) {
	svc := seeded(t)
	ctx := context.Background()

	children, err := svc.Children(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, []string{"1~11", "1~12"}, paths(children))

	descendants, err := svc.Descendants(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, []string{"1~11", "1~11~111", "1~11~112", "1~12"}, paths(descendants))
}

func TestPostingAccountRejectsSummaries(t *testing.T) {
	svc := seeded(t)
	_, err := svc.PostingAccount(context.Background(), "11")
	require.ErrorIs(t, err, shared.ErrValidation)

	account, err := svc.PostingAccount(context.Background(), "111")
	require.NoError(t, err)
	require.True(t, account.AcceptsPostings())
}

func TestUpdateUsesVersion(t *testing.T) {
	svc := seeded(t)
	ctx := context.Background()
	account, err := svc.Get(ctx, "12")
	require.NoError(t, err)

	account.Name = "renamed"
	updated, err := svc.Update(ctx, account)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Version)

	_, err = svc.Update(ctx, account)
	var conflict *shared.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, int64(2), conflict.Actual)
}

func TestReparentRewritesDescendants(t *testing.T) {
	svc := seeded(t)
	ctx := context.Background()

	moved, err := svc.Reparent(ctx, "11", "2", 1)
	require.NoError(t, err)
	require.Equal(t, "2~11", moved.Path)
	require.Equal(t, int64(2), moved.Version)

	leaf, err := svc.Structure(ctx, "112")
	require.NoError(t, err)
	require.Equal(t, "2~11~112", leaf.Path)
	require.Equal(t, int64(2), leaf.Version)

	_, err = svc.Reparent(ctx, "2", "111", 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Reparent(ctx, "11", "", 1)
	require.ErrorIs(t, err, shared.ErrConflict)
}
