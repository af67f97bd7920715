package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueLedger carries period close and integrity work.
	QueueLedger = "ledger"

	// TaskAggregateMonthly recomputes one month of monthly balances from daily rows.
	TaskAggregateMonthly = "ledger:aggregate_monthly"
	// TaskCarryForward opens the following month with a month's closing balances.
	TaskCarryForward = "ledger:carry_forward"
	// TaskGLIntegrity compares daily balances with the journals behind them.
	TaskGLIntegrity = "ledger:gl_integrity"
)

const dateLayout = "2006-01-02"

var (
	defaultJobMetrics = jobmetrics.NewMetrics(nil)
	payloadValidator  = validator.New()
	taskNamespace     = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:odyssey-ledger:jobs"))
)

// PeriodPayload addresses a fiscal month. A zero payload means the month
// before the one containing the run date; otherwise both fields are required.
type PeriodPayload struct {
	FiscalYear int `json:"fiscal_year,omitempty" validate:"omitempty,gte=1900,lte=9999"`
	Month      int `json:"month,omitempty" validate:"omitempty,gte=1,lte=12"`
}

// IntegrityPayload bounds the integrity check. Empty dates default to the
// trailing window ending on the run date.
type IntegrityPayload struct {
	From   string `json:"from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	To     string `json:"to,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Repair bool   `json:"repair,omitempty"`
}

// NewAggregateMonthlyTask builds a TaskAggregateMonthly task.
func NewAggregateMonthlyTask(payload PeriodPayload) (*asynq.Task, error) {
	return newPeriodTask(TaskAggregateMonthly, payload)
}

// NewCarryForwardTask builds a TaskCarryForward task.
func NewCarryForwardTask(payload PeriodPayload) (*asynq.Task, error) {
	return newPeriodTask(TaskCarryForward, payload)
}

// NewGLIntegrityTask builds a TaskGLIntegrity task.
func NewGLIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueLedger), asynq.MaxRetry(3)}
	if payload.From != "" && payload.To != "" {
		opts = append(opts, asynq.TaskID(TaskID(TaskGLIntegrity, fmt.Sprintf("%s..%s/%t", payload.From, payload.To, payload.Repair))))
	}
	return asynq.NewTask(TaskGLIntegrity, body, opts...), nil
}

func newPeriodTask(taskType string, payload PeriodPayload) (*asynq.Task, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueLedger), asynq.MaxRetry(3)}
	if payload.FiscalYear != 0 {
		opts = append(opts, asynq.TaskID(TaskID(taskType, fmt.Sprintf("%d-%02d", payload.FiscalYear, payload.Month))))
	}
	return asynq.NewTask(taskType, body, opts...), nil
}

func (p PeriodPayload) validate() error {
	if err := payloadValidator.Struct(p); err != nil {
		return err
	}
	if (p.FiscalYear == 0) != (p.Month == 0) {
		return errors.New("fiscal_year and month must be given together")
	}
	return nil
}

// TaskID derives a stable task id so that enqueueing the same explicit work
// twice is rejected by the queue.
func TaskID(taskType, key string) string {
	return uuid.NewSHA1(taskNamespace, []byte(taskType+"/"+key)).String()
}

func decodePayload(task *asynq.Task, dest interface{ validate() error }) error {
	if err := json.Unmarshal(task.Payload(), dest); err != nil {
		return fmt.Errorf("%s: decode payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	if err := dest.validate(); err != nil {
		return fmt.Errorf("%s: invalid payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return nil
}

func (p IntegrityPayload) validate() error {
	return payloadValidator.Struct(p)
}

func parseDate(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, errors.Join(err, asynq.SkipRetry)
	}
	return t, nil
}
