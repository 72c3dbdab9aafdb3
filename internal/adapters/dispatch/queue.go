package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"live-friends/internal/domain"
)

// QueueDispatcher передаёт пейджи в очередь доставки. Успешная постановка
// в очередь и есть подтверждённая передача транспорту.
type QueueDispatcher struct {
	queue domain.PageQueue
	clock domain.Clock
}

// NewQueueDispatcher создаёт диспетчер поверх очереди.
func NewQueueDispatcher(queue domain.PageQueue, clock domain.Clock) *QueueDispatcher {
	return &QueueDispatcher{queue: queue, clock: clock}
}

// Dispatch ставит задачу доставки в очередь.
func (d *QueueDispatcher) Dispatch(ctx context.Context, job domain.PageJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = d.clock.Now()
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("постановка пейджа в очередь: %w", err)
	}
	return nil
}

var _ domain.PageDispatcher = (*QueueDispatcher)(nil)
