package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"hireline_backend/internal/notification/outbox"
	"hireline_backend/platform/logger"
)

type fakeDispatchStore struct {
	due       []outbox.Record
	claimErr  error
	unclaimed []uuid.UUID
}

func (s *fakeDispatchStore) ClaimDue(_ context.Context, _ int) ([]outbox.Record, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	return s.due, nil
}

func (s *fakeDispatchStore) MarkPending(_ context.Context, id uuid.UUID, _ *string) error {
	s.unclaimed = append(s.unclaimed, id)
	return nil
}

type fakeEnqueuer struct {
	enqueued []uuid.UUID
	errFor   map[uuid.UUID]error
}

func (e *fakeEnqueuer) EnqueueOutboxDelivery(_ context.Context, outboxID uuid.UUID, _ time.Time) error {
	if err := e.errFor[outboxID]; err != nil {
		return err
	}
	e.enqueued = append(e.enqueued, outboxID)
	return nil
}

func dueRecord() outbox.Record {
	return outbox.Record{
		ID:       uuid.New(),
		Kind:     "email",
		Template: "recommendations_ready",
		RunAt:    time.Now().Add(-time.Second),
		Status:   outbox.StatusEnqueued,
	}
}

func TestDispatchOnceEnqueuesClaimedRows(t *testing.T) {
	first, second := dueRecord(), dueRecord()
	store := &fakeDispatchStore{due: []outbox.Record{first, second}}
	queue := &fakeEnqueuer{}

	d := NewOutboxDispatcher(queue, store, logger.New("development"))
	d.DispatchOnce(context.Background())

	if len(queue.enqueued) != 2 {
		t.Fatalf("enqueued = %d, want 2", len(queue.enqueued))
	}
	if queue.enqueued[0] != first.ID || queue.enqueued[1] != second.ID {
		t.Errorf("enqueued = %v, want [%s %s]", queue.enqueued, first.ID, second.ID)
	}
	if len(store.unclaimed) != 0 {
		t.Errorf("unclaimed = %v, want none", store.unclaimed)
	}
}

func TestDispatchOnceUnclaimsFailedEnqueues(t *testing.T) {
	broken, fine := dueRecord(), dueRecord()
	store := &fakeDispatchStore{due: []outbox.Record{broken, fine}}
	queue := &fakeEnqueuer{errFor: map[uuid.UUID]error{broken.ID: errors.New("queue full")}}

	d := NewOutboxDispatcher(queue, store, logger.New("development"))
	d.DispatchOnce(context.Background())

	if len(store.unclaimed) != 1 || store.unclaimed[0] != broken.ID {
		t.Errorf("unclaimed = %v, want [%s]", store.unclaimed, broken.ID)
	}
	if len(queue.enqueued) != 1 || queue.enqueued[0] != fine.ID {
		t.Errorf("enqueued = %v, want [%s]", queue.enqueued, fine.ID)
	}
}

func TestDispatchOnceSurvivesClaimFailure(t *testing.T) {
	store := &fakeDispatchStore{claimErr: errors.New("connection refused")}
	queue := &fakeEnqueuer{}

	d := NewOutboxDispatcher(queue, store, logger.New("development"))
	d.DispatchOnce(context.Background())

	if len(queue.enqueued) != 0 {
		t.Errorf("enqueued = %v, want none", queue.enqueued)
	}
}
