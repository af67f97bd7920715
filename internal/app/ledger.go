package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/memstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/pgstore"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Runtime is a ledger opened from configuration with the resources behind it.
type Runtime struct {
	Ledger *accounting.Ledger
	Redis  *redis.Client
	Checks []ReadinessCheck

	closers []func()
}

// OpenLedger connects the configured store and the optional Redis report
// cache, then wires the ledger. An unreachable Redis disables caching.
func OpenLedger(ctx context.Context, cfg *Config, logger *slog.Logger, metrics *observability.LedgerMetrics) (*Runtime, error) {
	rt := &Runtime{}
	var store accounting.Store
	switch cfg.LedgerStore {
	case StoreMemory:
		store = memstore.New()
	default:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		pg := pgstore.New(pool)
		if err := pg.Migrate(ctx); err != nil {
			rt.Close()
			return nil, err
		}
		store = pg
	}
	rt.Checks = append(rt.Checks, ReadinessCheck{Name: cfg.LedgerStore, Ping: store.Ping})

	opts := accounting.Options{
		Logger:           logger,
		FiscalStartMonth: cfg.LedgerFiscalStartMonth,
		VoucherPrefix:    cfg.LedgerVoucherPrefix,
	}
	if metrics != nil {
		opts.Metrics = metrics
	}

	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("report cache disabled", slog.Any("error", err))
	}
	if client != nil {
		rt.Redis = client
		rt.closers = append(rt.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		})
		rt.Checks = append(rt.Checks, ReadinessCheck{Name: "redis", Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
		opts.Cache = reports.NewCache(client, cfg.LedgerReportCacheTTL).WithNamespace(cfg.LedgerReportCacheNamespace)
	}

	ledger, err := accounting.New(store, opts)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	rt.Ledger = ledger
	return rt, nil
}

// Close releases the store and Redis connections in reverse order.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}
