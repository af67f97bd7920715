// Package cli implements the ledgerctl commands.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

// Env supplies the resources commands open lazily.
type Env struct {
	// OpenLedger returns the ledger and a release function.
	OpenLedger func(ctx context.Context) (*accounting.Ledger, func(), error)
	// OpenJobs returns the queue helpers; the caller closes them.
	OpenJobs func() (*JobsCLI, error)
	Stdout   io.Writer
	Stderr   io.Writer
}

func (e Env) stdout() io.Writer {
	if e.Stdout == nil {
		return os.Stdout
	}
	return e.Stdout
}

// NewRootCommand assembles ledgerctl.
func NewRootCommand(env Env) *cobra.Command {
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the general ledger",
		Long: `Operate the general ledger from the command line.

Period commands run against the configured store directly, or enqueue the
matching background job with --enqueue.`,
		SilenceUsage: true,
	}
	root.SetOut(env.stdout())
	if env.Stderr != nil {
		root.SetErr(env.Stderr)
	}
	root.AddCommand(
		newAggregateCommand(env),
		newCarryForwardCommand(env),
		newIntegrityCommand(env),
		newTrialBalanceCommand(env),
		newJobsCommand(env),
	)
	return root
}
