package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-ledger/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	env := cli.Env{
		OpenLedger: func(ctx context.Context) (*accounting.Ledger, func(), error) {
			rt, err := app.OpenLedger(ctx, cfg, logger, nil)
			if err != nil {
				return nil, nil, err
			}
			return rt.Ledger, rt.Close, nil
		},
		OpenJobs: func() (*cli.JobsCLI, error) {
			return cli.NewJobsCLI(cfg.RedisAddr)
		},
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	if err := cli.NewRootCommand(env).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
