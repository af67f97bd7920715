package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueLedger:  3,
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// LedgerHandlers maps the ledger task types to their handlers.
func LedgerHandlers(closer *CloseJob, integrity *IntegrityJob) []TaskHandler {
	return []TaskHandler{
		{Type: TaskAggregateMonthly, Handler: closer.HandleAggregate},
		{Type: TaskCarryForward, Handler: closer.HandleCarryForward},
		{Type: TaskGLIntegrity, Handler: integrity.Handle},
	}
}

// LedgerCron schedules month-end aggregation followed by carry-forward on
// aggregateSpec, and a non-repairing integrity check on integritySpec. Empty
// specs are skipped.
func LedgerCron(aggregateSpec, integritySpec string) ([]CronRegistration, error) {
	var entries []CronRegistration
	if aggregateSpec != "" {
		aggregate, err := NewAggregateMonthlyTask(PeriodPayload{})
		if err != nil {
			return nil, err
		}
		carry, err := NewCarryForwardTask(PeriodPayload{})
		if err != nil {
			return nil, err
		}
		entries = append(entries,
			CronRegistration{Spec: aggregateSpec, Task: aggregate},
			CronRegistration{Spec: aggregateSpec, Task: carry, Options: []asynq.Option{asynq.ProcessIn(15 * time.Minute)}},
		)
	}
	if integritySpec != "" {
		integrity, err := NewGLIntegrityTask(IntegrityPayload{})
		if err != nil {
			return nil, err
		}
		entries = append(entries, CronRegistration{Spec: integritySpec, Task: integrity})
	}
	return entries, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueAggregate enqueues monthly aggregation of p.
func (c *Client) EnqueueAggregate(ctx context.Context, p periods.Period) (*asynq.TaskInfo, error) {
	task, err := NewAggregateMonthlyTask(PeriodPayload{FiscalYear: p.FiscalYear, Month: p.Month})
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// EnqueueCarryForward enqueues the carry-forward of p.
func (c *Client) EnqueueCarryForward(ctx context.Context, p periods.Period) (*asynq.TaskInfo, error) {
	task, err := NewCarryForwardTask(PeriodPayload{FiscalYear: p.FiscalYear, Month: p.Month})
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// EnqueueIntegrity enqueues an integrity check of the daily balances between from and to.
func (c *Client) EnqueueIntegrity(ctx context.Context, from, to time.Time, repair bool) (*asynq.TaskInfo, error) {
	payload := IntegrityPayload{Repair: repair}
	if !from.IsZero() {
		payload.From = from.Format(dateLayout)
	}
	if !to.IsZero() {
		payload.To = to.Format(dateLayout)
	}
	task, err := NewGLIntegrityTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// QueueInspector reports queue state. *asynq.Inspector implements it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// QueueHealth is the JSON body of the jobs health endpoint.
type QueueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, []QueueHealth{{Queue: QueueLedger}})
		return
	}
	out := make([]QueueHealth, 0, 2)
	for _, queue := range []string{QueueLedger, QueueDefault} {
		info, err := h.inspector.GetQueueInfo(queue)
		if errors.Is(err, asynq.ErrQueueNotFound) {
			out = append(out, QueueHealth{Queue: queue})
			continue
		}
		if err != nil {
			h.logger.Warn("jobs health", slog.String("queue", queue), slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", queue)
			return
		}
		health := QueueHealth{Queue: queue}
		if info != nil {
			health.Pending = info.Pending
			health.Active = info.Active
			health.Scheduled = info.Scheduled
			health.Retry = info.Retry
			health.Archived = info.Archived
		}
		out = append(out, health)
	}
	httpx.JSON(w, http.StatusOK, out)
}
