package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	appevents "hireline_backend/internal/events"
	"hireline_backend/internal/notification/outbox"
	"hireline_backend/platform/events"
	"hireline_backend/platform/logger"
)

// TaskQueue is the slice of the queue client the bridge uses.
type TaskQueue interface {
	Enabled() bool
	EnqueueOutboxDelivery(ctx context.Context, outboxID uuid.UUID, runAt time.Time) error
	EnqueueCallArchive(ctx context.Context, callID string) error
}

// ClaimStore claims individual outbox rows for the nudge path.
type ClaimStore interface {
	ClaimByID(ctx context.Context, id uuid.UUID) (bool, error)
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
}

// EventBridge forwards in-process events into the task queue, so the worker
// picks work up without waiting for a dispatcher tick. With no queue
// configured the bridge leaves rows alone; the dispatcher side then owns
// them entirely.
type EventBridge struct {
	queue          TaskQueue
	outbox         ClaimStore
	archiveEnabled bool
	log            *logger.Logger
}

func NewEventBridge(queue TaskQueue, outbox ClaimStore, archiveEnabled bool, log *logger.Logger) *EventBridge {
	return &EventBridge{queue: queue, outbox: outbox, archiveEnabled: archiveEnabled, log: log}
}

// RegisterHandlers subscribes the bridge to the events it forwards.
func (b *EventBridge) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(appevents.NotificationOutboxDue{}.EventName(), b)
	bus.Subscribe(appevents.CallResultCompleted{}.EventName(), b)
}

// Handle implements events.Handler.
func (b *EventBridge) Handle(ctx context.Context, event events.Event) error {
	if !b.queue.Enabled() {
		return nil
	}

	switch e := event.(type) {
	case appevents.NotificationOutboxDue:
		return b.forwardOutboxRow(ctx, e.OutboxID)
	case appevents.CallResultCompleted:
		if !b.archiveEnabled || !e.HasTranscript {
			return nil
		}
		return b.queue.EnqueueCallArchive(ctx, e.CallID)
	}
	return nil
}

// forwardOutboxRow claims the row before enqueueing, so the dispatcher tick
// cannot enqueue the same row a second time. A failed enqueue unclaims it.
func (b *EventBridge) forwardOutboxRow(ctx context.Context, outboxID uuid.UUID) error {
	claimed, err := b.outbox.ClaimByID(ctx, outboxID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	if err := b.queue.EnqueueOutboxDelivery(ctx, outboxID, time.Time{}); err != nil {
		msg := err.Error()
		if markErr := b.outbox.MarkPending(ctx, outboxID, &msg); markErr != nil {
			b.log.Error("failed to unclaim outbox row", "outboxId", outboxID, "error", markErr)
		}
		return err
	}
	return nil
}

// Compile-time checks.
var (
	_ events.Handler = (*EventBridge)(nil)
	_ TaskQueue      = (*Client)(nil)
	_ ClaimStore     = (*outbox.Repository)(nil)
)
