package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// DefaultIntegrityWindow is the number of days checked when the payload has no dates.
const DefaultIntegrityWindow = 31

// IntegrityChecker is the ledger surface used by the integrity job.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context, from, to time.Time) (accounting.IntegrityReport, error)
	RebuildDaily(ctx context.Context, from, to time.Time) (int, error)
}

// IntegrityJob compares daily balances with journals and optionally rebuilds them.
type IntegrityJob struct {
	Ledger  IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewIntegrityJob constructs the job handler.
func NewIntegrityJob(ledger IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{
		Ledger:  ledger,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes TaskGLIntegrity.
func (j *IntegrityJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Ledger == nil {
		return errors.New("gl integrity: ledger not configured")
	}
	var payload IntegrityPayload
	if err := decodePayload(task, &payload); err != nil {
		return err
	}
	today := periods.Day(j.now())
	to, err := parseDate(payload.To, today)
	if err != nil {
		return err
	}
	from, err := parseDate(payload.From, to.AddDate(0, 0, -(DefaultIntegrityWindow-1)))
	if err != nil {
		return err
	}

	tracker := j.metrics().Track(TaskGLIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.log().With(slog.String("from", from.Format(dateLayout)), slog.String("to", to.Format(dateLayout)))
	report, err := j.Ledger.CheckIntegrity(ctx, from, to)
	if err != nil {
		logger.Error("check integrity", slog.Any("error", err))
		return retryable(err)
	}
	j.metrics().AddDrifts(len(report.Drifts))
	if report.Clean() {
		logger.Info("daily balances match journals", slog.Int("checked", report.Checked))
		return nil
	}
	if !payload.Repair {
		logger.Warn("daily balance drift left in place", slog.Int("drifts", len(report.Drifts)))
		return nil
	}
	replayed, err := j.Ledger.RebuildDaily(ctx, from, to)
	if err != nil {
		logger.Error("rebuild daily balances", slog.Any("error", err))
		return retryable(err)
	}
	j.metrics().AddRows(TaskGLIntegrity, replayed)
	logger.Info("daily balances rebuilt", slog.Int("drifts", len(report.Drifts)), slog.Int("replayed", replayed))
	return nil
}

func (j *IntegrityJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *IntegrityJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}

func (j *IntegrityJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *IntegrityJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
