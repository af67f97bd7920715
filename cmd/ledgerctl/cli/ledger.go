package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
)

type periodFlags struct {
	fiscalYear int
	month      int
	enqueue    bool
}

func (f *periodFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.fiscalYear, "fy", 0, "fiscal year")
	cmd.Flags().IntVar(&f.month, "month", 0, "calendar month of the fiscal period (1-12)")
	cmd.Flags().BoolVar(&f.enqueue, "enqueue", false, "enqueue the background job instead of running here")
	_ = cmd.MarkFlagRequired("fy")
	_ = cmd.MarkFlagRequired("month")
}

func (f *periodFlags) period() (periods.Period, error) {
	if err := periods.ValidMonth(f.month); err != nil {
		return periods.Period{}, err
	}
	return periods.Period{FiscalYear: f.fiscalYear, Month: f.month}, nil
}

func newAggregateCommand(env Env) *cobra.Command {
	var flags periodFlags
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Recompute a month's balances from daily balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := flags.period()
			if err != nil {
				return err
			}
			if flags.enqueue {
				return enqueue(cmd, env, func(ctx context.Context, c *JobsCLI) (string, error) {
					return c.EnqueueAggregate(ctx, p)
				})
			}
			return withLedger(cmd, env, func(ctx context.Context, ledger *accounting.Ledger) error {
				rows, err := ledger.AggregatePeriod(ctx, p)
				if err != nil {
					return err
				}
				cmd.Printf("aggregated %s: %d monthly rows\n", p, rows)
				return nil
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newCarryForwardCommand(env Env) *cobra.Command {
	var flags periodFlags
	cmd := &cobra.Command{
		Use:   "carry-forward",
		Short: "Open the following month with a month's closing balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := flags.period()
			if err != nil {
				return err
			}
			if flags.enqueue {
				return enqueue(cmd, env, func(ctx context.Context, c *JobsCLI) (string, error) {
					return c.EnqueueCarryForward(ctx, p)
				})
			}
			return withLedger(cmd, env, func(ctx context.Context, ledger *accounting.Ledger) error {
				rows, err := ledger.CarryForward(ctx, p)
				if err != nil {
					return err
				}
				cmd.Printf("carried %s forward: %d monthly rows\n", p, rows)
				return nil
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newIntegrityCommand(env Env) *cobra.Command {
	var (
		from, to string
		repair   bool
		enqueued bool
	)
	cmd := &cobra.Command{
		Use:   "integrity",
		Short: "Compare daily balances with posted journals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fromDate, err := time.Parse(time.DateOnly, from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			toDate, err := time.Parse(time.DateOnly, to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			if enqueued {
				return enqueue(cmd, env, func(ctx context.Context, c *JobsCLI) (string, error) {
					return c.EnqueueIntegrity(ctx, fromDate, toDate, repair)
				})
			}
			return withLedger(cmd, env, func(ctx context.Context, ledger *accounting.Ledger) error {
				report, err := ledger.CheckIntegrity(ctx, fromDate, toDate)
				if err != nil {
					return err
				}
				cmd.Printf("checked %d daily keys, %d drifted\n", report.Checked, len(report.Drifts))
				for _, d := range report.Drifts {
					cmd.Printf("  %s stored %s/%s expected %s/%s\n", d.Key,
						d.StoredDebit, d.StoredCredit, d.ExpectedDebit, d.ExpectedCredit)
				}
				if report.Clean() || !repair {
					return nil
				}
				replayed, err := ledger.RebuildDaily(ctx, fromDate, toDate)
				if err != nil {
					return err
				}
				cmd.Printf("rebuilt daily balances from %d postings\n", replayed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first posting date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last posting date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&repair, "repair", false, "rebuild daily balances when drift is found")
	cmd.Flags().BoolVar(&enqueued, "enqueue", false, "enqueue the background job instead of running here")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newTrialBalanceCommand(env Env) *cobra.Command {
	var (
		fiscalYear, month int
		bspl              string
		asJSON            bool
	)
	cmd := &cobra.Command{
		Use:   "trial-balance",
		Short: "Print the trial balance of a fiscal month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cmd, env, func(ctx context.Context, ledger *accounting.Ledger) error {
				tb, err := ledger.Reports.TrialBalance(ctx, fiscalYear, month, accounts.BSPL(strings.ToUpper(bspl)))
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(tb)
				}
				renderTrialBalance(cmd.OutOrStdout(), tb)
				if !tb.IsBalanced() {
					return errors.New("trial balance does not balance")
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&fiscalYear, "fy", 0, "fiscal year")
	cmd.Flags().IntVar(&month, "month", 0, "calendar month of the fiscal period (1-12)")
	cmd.Flags().StringVar(&bspl, "bspl", "", "restrict to BS or PL accounts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("fy")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func renderTrialBalance(w io.Writer, tb reports.TrialBalance) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintf(tw, "FY%d-%02d\t\t\t\t\t\t\n", tb.FiscalYear, tb.Month)
	_, _ = fmt.Fprintln(tw, "code\tname\topening\tdebit\tcredit\tclosing\t")
	for _, l := range tb.Lines {
		code := strings.Repeat("  ", max(l.Depth-1, 0)) + l.AccountCode
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n", code, l.AccountName,
			amount(l.Opening), amount(l.Debit), amount(l.Credit), amount(l.Closing))
	}
	_, _ = fmt.Fprintf(tw, "debit\t\t%s\t%s\t\t%s\t\n", tb.TotalOpeningDebit, tb.TotalDebit, tb.TotalClosingDebit)
	_, _ = fmt.Fprintf(tw, "credit\t\t%s\t\t%s\t%s\t\n", tb.TotalOpeningCredit, tb.TotalCredit, tb.TotalClosingCredit)
	_ = tw.Flush()
}

func amount(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}

func withLedger(cmd *cobra.Command, env Env, fn func(context.Context, *accounting.Ledger) error) error {
	if env.OpenLedger == nil {
		return errors.New("ledger not configured")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ledger, release, err := env.OpenLedger(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, ledger)
}

func enqueue(cmd *cobra.Command, env Env, fn func(context.Context, *JobsCLI) (string, error)) error {
	return withJobs(cmd, env, func(ctx context.Context, c *JobsCLI) error {
		id, err := fn(ctx, c)
		if err != nil {
			return err
		}
		cmd.Printf("enqueued %s\n", id)
		return nil
	})
}
