package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hireline_backend/platform/logger"
)

type testEvent struct {
	BaseEvent
	name string
}

func (e testEvent) EventName() string { return e.name }

func newTestBus() *InMemoryBus {
	return NewInMemoryBus(logger.New("development"))
}

func TestPublishSyncRunsHandlersInOrder(t *testing.T) {
	bus := newTestBus()

	var got []string
	bus.Subscribe("orders.created", HandlerFunc(func(ctx context.Context, e Event) error {
		got = append(got, "first")
		return nil
	}))
	bus.Subscribe("orders.created", HandlerFunc(func(ctx context.Context, e Event) error {
		got = append(got, "second")
		return nil
	}))

	if err := bus.PublishSync(context.Background(), testEvent{NewBaseEvent(), "orders.created"}); err != nil {
		t.Fatalf("PublishSync returned error: %v", err)
	}
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("handlers ran out of order: %v", got)
	}
}

func TestPublishSyncCollectsErrors(t *testing.T) {
	bus := newTestBus()
	wantErr := errors.New("handler failed")

	bus.Subscribe("x", HandlerFunc(func(ctx context.Context, e Event) error {
		return wantErr
	}))
	bus.Subscribe("x", HandlerFunc(func(ctx context.Context, e Event) error {
		return nil
	}))

	err := bus.PublishSync(context.Background(), testEvent{NewBaseEvent(), "x"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped handler error, got %v", err)
	}
}

func TestPublishSyncRecoversHandlerPanic(t *testing.T) {
	bus := newTestBus()

	bus.Subscribe("x", HandlerFunc(func(ctx context.Context, e Event) error {
		panic("boom")
	}))

	err := bus.PublishSync(context.Background(), testEvent{NewBaseEvent(), "x"})
	if err == nil {
		t.Fatal("expected error from panicking handler, got nil")
	}
}

func TestPublishDeliversAsynchronously(t *testing.T) {
	bus := newTestBus()

	var mu sync.Mutex
	delivered := make(chan struct{})
	bus.Subscribe("x", HandlerFunc(func(ctx context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		close(delivered)
		return nil
	}))

	bus.Publish(context.Background(), testEvent{NewBaseEvent(), "x"})

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked within timeout")
	}
}

func TestPublishSurvivesCanceledPublisherContext(t *testing.T) {
	bus := newTestBus()

	ctxSeen := make(chan error, 1)
	bus.Subscribe("x", HandlerFunc(func(ctx context.Context, e Event) error {
		ctxSeen <- ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, testEvent{NewBaseEvent(), "x"})

	select {
	case err := <-ctxSeen:
		if err != nil {
			t.Fatalf("handler context should survive publisher cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked within timeout")
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := newTestBus()
	bus.Publish(context.Background(), testEvent{NewBaseEvent(), "nobody.listens"})
	if err := bus.PublishSync(context.Background(), testEvent{NewBaseEvent(), "nobody.listens"}); err != nil {
		t.Fatalf("PublishSync with no subscribers returned error: %v", err)
	}
}
