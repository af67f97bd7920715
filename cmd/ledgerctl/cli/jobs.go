package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	if redisAddr == "" {
		return nil, errors.New("jobs cli: REDIS_ADDR is empty")
	}
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// EnqueueAggregate enqueues monthly aggregation of p and returns the task id.
func (c *JobsCLI) EnqueueAggregate(ctx context.Context, p periods.Period) (string, error) {
	return taskID(c.client.EnqueueAggregate(ctx, p))
}

// EnqueueCarryForward enqueues the carry-forward of p and returns the task id.
func (c *JobsCLI) EnqueueCarryForward(ctx context.Context, p periods.Period) (string, error) {
	return taskID(c.client.EnqueueCarryForward(ctx, p))
}

// EnqueueIntegrity enqueues an integrity check and returns the task id.
func (c *JobsCLI) EnqueueIntegrity(ctx context.Context, from, to time.Time, repair bool) (string, error) {
	return taskID(c.client.EnqueueIntegrity(ctx, from, to, repair))
}

// Trigger enqueues a supported job by name with its scheduled default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("jobs cli: client not configured")
	}
	var zero periods.Period
	switch name {
	case jobs.TaskAggregateMonthly:
		return c.EnqueueAggregate(ctx, zero)
	case jobs.TaskCarryForward:
		return c.EnqueueCarryForward(ctx, zero)
	case jobs.TaskGLIntegrity:
		return c.EnqueueIntegrity(ctx, time.Time{}, time.Time{}, false)
	default:
		return "", fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the queue metrics for the ledger queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	stats := QueueStats{Queue: jobs.QueueLedger}
	info, err := c.inspector.GetQueueInfo(jobs.QueueLedger)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return stats, nil
	}
	if err != nil {
		return QueueStats{}, err
	}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueLedger, asynq.PageSize(size), asynq.Page(1))
}

func taskID(info *asynq.TaskInfo, err error) (string, error) {
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return "", fmt.Errorf("job already queued: %w", err)
	}
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func newJobsCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:       "trigger <job>",
			Short:     "Enqueue a job with its scheduled default payload",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{jobs.TaskAggregateMonthly, jobs.TaskCarryForward, jobs.TaskGLIntegrity},
			RunE: func(cmd *cobra.Command, args []string) error {
				return enqueue(cmd, env, func(ctx context.Context, c *JobsCLI) (string, error) {
					return c.Trigger(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show ledger queue counters",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withJobs(cmd, env, func(ctx context.Context, c *JobsCLI) error {
					stats, err := c.InspectQueue(ctx)
					if err != nil {
						return err
					}
					cmd.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
						stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "scheduled",
			Short: "List the next scheduled ledger tasks",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withJobs(cmd, env, func(ctx context.Context, c *JobsCLI) error {
					tasks, err := c.ListScheduled(ctx, 20)
					if err != nil {
						return err
					}
					for _, t := range tasks {
						cmd.Printf("%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func withJobs(cmd *cobra.Command, env Env, fn func(context.Context, *JobsCLI) error) error {
	if env.OpenJobs == nil {
		return errors.New("job queue not configured")
	}
	client, err := env.OpenJobs()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, client)
}
