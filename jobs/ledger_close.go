package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// PeriodCloser is the ledger surface used by the period close jobs.
type PeriodCloser interface {
	Calendar() periods.Calendar
	AggregatePeriod(ctx context.Context, p periods.Period) (int, error)
	CarryForward(ctx context.Context, p periods.Period) (int, error)
}

// CloseJob runs monthly aggregation and carry-forward.
type CloseJob struct {
	Ledger  PeriodCloser
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewCloseJob constructs the job handlers.
func NewCloseJob(ledger PeriodCloser, logger *slog.Logger, metrics *jobmetrics.Metrics) *CloseJob {
	return &CloseJob{
		Ledger:  ledger,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleAggregate executes TaskAggregateMonthly.
func (j *CloseJob) HandleAggregate(ctx context.Context, task *asynq.Task) error {
	return j.run(ctx, task, TaskAggregateMonthly, func(ctx context.Context, p periods.Period) (int, error) {
		return j.Ledger.AggregatePeriod(ctx, p)
	})
}

// HandleCarryForward executes TaskCarryForward.
func (j *CloseJob) HandleCarryForward(ctx context.Context, task *asynq.Task) error {
	return j.run(ctx, task, TaskCarryForward, func(ctx context.Context, p periods.Period) (int, error) {
		return j.Ledger.CarryForward(ctx, p)
	})
}

func (j *CloseJob) run(ctx context.Context, task *asynq.Task, job string, fn func(context.Context, periods.Period) (int, error)) (resultErr error) {
	if j == nil || j.Ledger == nil {
		return errors.New("close job: ledger not configured")
	}
	var payload PeriodPayload
	if err := decodePayload(task, &payload); err != nil {
		return err
	}

	tracker := j.metrics().Track(job)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	period := j.resolvePeriod(payload)
	logger := j.log(job).With(slog.String("period", period.String()))
	start := j.now()
	rows, err := fn(ctx, period)
	if err != nil {
		logger.Error("period job failed", slog.Any("error", err))
		return retryable(err)
	}
	j.metrics().AddRows(job, rows)
	logger.Info("period job finished", slog.Int("rows", rows), slog.Duration("duration", time.Since(start)))
	return nil
}

// resolvePeriod defaults to the month before the one containing the run date.
func (j *CloseJob) resolvePeriod(payload PeriodPayload) periods.Period {
	if payload.FiscalYear != 0 {
		return periods.Period{FiscalYear: payload.FiscalYear, Month: payload.Month}
	}
	calendar := j.Ledger.Calendar()
	return calendar.Previous(calendar.PeriodOf(j.now()))
}

func (j *CloseJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CloseJob) log(job string) *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func (j *CloseJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *CloseJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

// retryable marks ledger validation and not-found failures as final; conflicts
// and system failures stay retryable.
func retryable(err error) error {
	if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
