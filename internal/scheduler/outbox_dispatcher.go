package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"hireline_backend/internal/notification/outbox"
	"hireline_backend/platform/logger"
)

const (
	outboxDispatchInterval = 2 * time.Second
	outboxClaimBatch       = 50
)

// DispatchStore is the slice of the outbox repository the dispatcher uses.
type DispatchStore interface {
	ClaimDue(ctx context.Context, limit int) ([]outbox.Record, error)
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
}

// Enqueuer hands claimed outbox rows to the task queue. Satisfied by *Client.
type Enqueuer interface {
	EnqueueOutboxDelivery(ctx context.Context, outboxID uuid.UUID, runAt time.Time) error
}

// OutboxDispatcher periodically claims due outbox rows and enqueues their
// delivery. It is the safety net behind the per-event nudge: anything the
// nudge missed, because a process crashed or the queue was down, gets picked
// up here.
type OutboxDispatcher struct {
	queue Enqueuer
	store DispatchStore
	log   *logger.Logger
}

func NewOutboxDispatcher(queue Enqueuer, store DispatchStore, log *logger.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{queue: queue, store: store, log: log}
}

// Run claims and enqueues on a short tick until the context ends.
func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(outboxDispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d.DispatchOnce(ctx)
	}
}

// DispatchOnce claims one batch of due rows and enqueues each. A row whose
// enqueue failed is put back to pending so a later tick retries it.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) {
	records, err := d.store.ClaimDue(ctx, outboxClaimBatch)
	if err != nil {
		d.log.Warn("outbox claim failed", "error", err)
		return
	}

	for _, rec := range records {
		if err := d.queue.EnqueueOutboxDelivery(ctx, rec.ID, rec.RunAt); err != nil {
			msg := err.Error()
			if markErr := d.store.MarkPending(ctx, rec.ID, &msg); markErr != nil {
				d.log.Error("failed to unclaim outbox row", "outboxId", rec.ID, "error", markErr)
			}
		}
	}
}

// Compile-time check.
var _ DispatchStore = (*outbox.Repository)(nil)
