package notifications

import (
	"context"

	"github.com/good-deed-map/backend/internal/moderation"
	"github.com/good-deed-map/backend/pkg/queue"
)

// QueueDispatcher pushes moderation events onto the Redis job queue. The
// worker binary consumes them and records the resulting notifications.
type QueueDispatcher struct {
	queue *queue.Queue
}

// NewQueueDispatcher creates a queue-backed dispatcher.
func NewQueueDispatcher(q *queue.Queue) *QueueDispatcher {
	return &QueueDispatcher{queue: q}
}

// Dispatch enqueues the event. The caller treats a failure as
// log-and-continue; the decision that produced the event has already
// committed.
func (d *QueueDispatcher) Dispatch(ctx context.Context, ev moderation.Event) error {
	return d.queue.EnqueueNotification(ctx, ev)
}
