package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"hireline_backend/platform/logger"
)

// InMemoryBus is an in-process implementation of Bus. Handlers registered for
// an event name run in registration order. Publish runs the handler chain on
// a detached goroutine so publishers never block on subscribers; PublishSync
// runs it inline and reports handler errors.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for the given event name.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish delivers the event to all subscribed handlers asynchronously.
// The handler chain runs detached from the publisher's context cancellation
// so in-flight deliveries survive the originating request.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	handlers := b.handlersFor(event.EventName())
	if len(handlers) == 0 {
		return
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		for _, handler := range handlers {
			if err := b.dispatch(detached, handler, event); err != nil {
				b.log.Error("event handler failed",
					"event", event.EventName(),
					"error", err.Error(),
				)
			}
		}
	}()
}

// PublishSync delivers the event inline and returns the combined handler errors.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	handlers := b.handlersFor(event.EventName())

	var errs []error
	for _, handler := range handlers {
		if err := b.dispatch(ctx, handler, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dispatch invokes one handler, converting a panic into an error so a single
// misbehaving subscriber cannot take down the delivery goroutine.
func (b *InMemoryBus) dispatch(ctx context.Context, handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}

func (b *InMemoryBus) handlersFor(eventName string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[eventName]))
	copy(handlers, b.handlers[eventName])
	return handlers
}
