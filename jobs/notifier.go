package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stitchline/stitchline/internal/orders"
)

// Enqueuer is the part of asynq.Client the notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// OrderNotifier queues customer notifications once an order transaction has committed.
type OrderNotifier struct {
	queue Enqueuer
	now   func() time.Time
}

// NewOrderNotifier constructs OrderNotifier.
func NewOrderNotifier(queue Enqueuer) *OrderNotifier {
	return &OrderNotifier{queue: queue, now: func() time.Time { return time.Now().UTC() }}
}

// OrderCreated queues the booking confirmation.
func (n *OrderNotifier) OrderCreated(ctx context.Context, order orders.Order) error {
	return n.enqueue(ctx, TaskOrderConfirmation, order)
}

// OrderReady queues the pick-up notice.
func (n *OrderNotifier) OrderReady(ctx context.Context, order orders.Order) error {
	return n.enqueue(ctx, TaskOrderReady, order)
}

func (n *OrderNotifier) enqueue(ctx context.Context, taskType string, order orders.Order) error {
	if n == nil || n.queue == nil {
		return errors.New("jobs: notifier not configured")
	}
	task, err := NewOrderNotificationTask(taskType, order, n.now())
	if err != nil {
		return err
	}
	_, err = n.queue.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

var _ orders.Notifier = (*OrderNotifier)(nil)
