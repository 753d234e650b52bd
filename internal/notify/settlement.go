package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/desawali/storefront-api/internal/obs"
	"github.com/desawali/storefront-api/internal/order"
)

// TaskPaymentSettled is the asynq task type for orders that reached Paid or Cancelled.
const TaskPaymentSettled = "payment:settled"

// Settlement describes a final payment outcome for an order.
type Settlement struct {
	OrderID          string       `json:"order_id"`
	TransactionID    string       `json:"transaction_id"`
	PaymentReference string       `json:"payment_reference,omitempty"`
	Status           order.Status `json:"status"`
	PaymentStatus    string       `json:"payment_status"`
}

// NewSettledTask builds the task for s. The task id dedups repeated webhook deliveries.
func NewSettledTask(s Settlement, opts ...asynq.Option) (*asynq.Task, error) {
	if strings.TrimSpace(s.OrderID) == "" || strings.TrimSpace(s.TransactionID) == "" {
		return nil, errors.New("notify: settlement requires order and transaction ids")
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("notify: encode settlement: %w", err)
	}
	opts = append([]asynq.Option{asynq.TaskID(s.TransactionID + ":" + string(s.Status))}, opts...)
	return asynq.NewTask(TaskPaymentSettled, payload, opts...), nil
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer publishes settlement tasks to the worker queue.
type Enqueuer struct {
	Client    taskEnqueuer
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

// NotifySettled enqueues s; a task already queued for the same transaction and status counts as success.
func (e Enqueuer) NotifySettled(ctx context.Context, s Settlement) error {
	if e.Client == nil {
		return nil
	}
	var opts []asynq.Option
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	if e.Retention > 0 {
		opts = append(opts, asynq.Retention(e.Retention))
	}
	task, err := NewSettledTask(s, opts...)
	if err != nil {
		obs.Count(obs.NotificationsTotal, "enqueue", "invalid")
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			obs.Count(obs.NotificationsTotal, "enqueue", "duplicate")
			return nil
		}
		obs.Count(obs.NotificationsTotal, "enqueue", "error")
		return fmt.Errorf("notify: enqueue settlement for %s: %w", s.OrderID, err)
	}
	obs.Count(obs.NotificationsTotal, "enqueue", "queued")
	return nil
}
