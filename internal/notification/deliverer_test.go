package notification

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"hireline_backend/internal/notification/email"
	"hireline_backend/internal/notification/outbox"
	"hireline_backend/platform/logger"
)

type fakeDeliveryStore struct {
	records    map[uuid.UUID]outbox.Record
	processing []uuid.UUID
	pending    []uuid.UUID
	succeeded  []uuid.UUID
	failed     []uuid.UUID
	lastError  string
}

func newFakeDeliveryStore() *fakeDeliveryStore {
	return &fakeDeliveryStore{records: make(map[uuid.UUID]outbox.Record)}
}

func (f *fakeDeliveryStore) seed(template string, payload EmailPayload, attempts int) uuid.UUID {
	id := uuid.New()
	raw, _ := json.Marshal(payload)
	f.records[id] = outbox.Record{
		ID:       id,
		Kind:     KindEmail,
		Template: template,
		Payload:  raw,
		Status:   outbox.StatusEnqueued,
		Attempts: attempts,
	}
	return id
}

func (f *fakeDeliveryStore) GetByID(ctx context.Context, id uuid.UUID) (outbox.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return outbox.Record{}, errors.New("no rows in result set")
	}
	return rec, nil
}

func (f *fakeDeliveryStore) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	f.processing = append(f.processing, id)
	rec := f.records[id]
	rec.Status = outbox.StatusProcessing
	rec.Attempts++
	f.records[id] = rec
	return nil
}

func (f *fakeDeliveryStore) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	f.pending = append(f.pending, id)
	if lastError != nil {
		f.lastError = *lastError
	}
	rec := f.records[id]
	rec.Status = outbox.StatusPending
	f.records[id] = rec
	return nil
}

func (f *fakeDeliveryStore) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	f.succeeded = append(f.succeeded, id)
	rec := f.records[id]
	rec.Status = outbox.StatusSucceeded
	f.records[id] = rec
	return nil
}

func (f *fakeDeliveryStore) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	f.failed = append(f.failed, id)
	f.lastError = lastError
	rec := f.records[id]
	rec.Status = outbox.StatusFailed
	f.records[id] = rec
	return nil
}

type sentEmail struct {
	template    string
	to          string
	statusURL   string
	attachments int
}

type fakeSender struct {
	sent []sentEmail
	err  error
}

func (f *fakeSender) SendRecommendationsEmail(ctx context.Context, toEmail, serviceType, statusURL string, providerCount int, attachments ...email.Attachment) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{TemplateRecommendationsReady, toEmail, statusURL, len(attachments)})
	return nil
}

func (f *fakeSender) SendBookingConfirmedEmail(ctx context.Context, toEmail, providerName, appointmentDay, appointmentTime, statusURL string, attachments ...email.Attachment) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{TemplateBookingConfirmed, toEmail, statusURL, len(attachments)})
	return nil
}

func (f *fakeSender) SendRequestFailedEmail(ctx context.Context, toEmail, serviceType, outcome, statusURL string, attachments ...email.Attachment) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{TemplateRequestFailed, toEmail, statusURL, len(attachments)})
	return nil
}

type notificationConfig struct{}

func (notificationConfig) GetAppBaseURL() string { return "https://app.example.com/" }

func newDeliverer(store *fakeDeliveryStore, sender *fakeSender) *Deliverer {
	return NewDeliverer(store, sender, notificationConfig{}, logger.New("development"))
}

func TestDeliverSendsEmailWithStatusQR(t *testing.T) {
	store := newFakeDeliveryStore()
	sender := &fakeSender{}
	requestID := uuid.New()
	id := store.seed(TemplateRecommendationsReady, EmailPayload{
		To:            "user@example.com",
		RequestID:     requestID.String(),
		ServiceType:   "plumber",
		ProviderCount: 2,
	}, 0)

	if err := newDeliverer(store, sender).Deliver(context.Background(), id); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}
	got := sender.sent[0]
	if got.to != "user@example.com" {
		t.Fatalf("to = %q", got.to)
	}
	wantURL := "https://app.example.com/requests/" + requestID.String()
	if got.statusURL != wantURL {
		t.Fatalf("status url = %q, want %q", got.statusURL, wantURL)
	}
	if got.attachments != 1 {
		t.Fatalf("attachments = %d, want the QR code", got.attachments)
	}
	if len(store.processing) != 1 || len(store.succeeded) != 1 {
		t.Fatalf("marks = processing %d, succeeded %d", len(store.processing), len(store.succeeded))
	}
}

func TestDeliverSkipsDeliveredRow(t *testing.T) {
	store := newFakeDeliveryStore()
	sender := &fakeSender{}
	id := store.seed(TemplateBookingConfirmed, EmailPayload{To: "user@example.com"}, 1)
	rec := store.records[id]
	rec.Status = outbox.StatusSucceeded
	store.records[id] = rec

	if err := newDeliverer(store, sender).Deliver(context.Background(), id); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("delivered row must not be sent again")
	}
}

func TestDeliverReschedulesTransientFailure(t *testing.T) {
	store := newFakeDeliveryStore()
	sender := &fakeSender{err: errors.New("smtp send: connection refused")}
	id := store.seed(TemplateRequestFailed, EmailPayload{To: "user@example.com", RequestID: uuid.New().String()}, 0)

	err := newDeliverer(store, sender).Deliver(context.Background(), id)
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(store.pending) != 1 {
		t.Fatalf("pending marks = %d, want 1", len(store.pending))
	}
	if len(store.failed) != 0 {
		t.Fatal("first failure must not park the row")
	}
	if !strings.Contains(store.lastError, "connection refused") {
		t.Fatalf("last error = %q", store.lastError)
	}
}

func TestDeliverParksAfterMaxAttempts(t *testing.T) {
	store := newFakeDeliveryStore()
	sender := &fakeSender{err: errors.New("smtp send: connection refused")}
	id := store.seed(TemplateRequestFailed, EmailPayload{To: "user@example.com", RequestID: uuid.New().String()}, maxDeliveryAttempts-1)

	if err := newDeliverer(store, sender).Deliver(context.Background(), id); err == nil {
		t.Fatal("expected an error")
	}
	if len(store.failed) != 1 {
		t.Fatalf("failed marks = %d, want the row parked", len(store.failed))
	}
	if len(store.pending) != 0 {
		t.Fatal("exhausted row must not go back to pending")
	}
}

func TestDeliverParksPoisonPayload(t *testing.T) {
	store := newFakeDeliveryStore()
	id := uuid.New()
	store.records[id] = outbox.Record{
		ID:       id,
		Kind:     KindEmail,
		Template: TemplateRequestFailed,
		Payload:  json.RawMessage(`{"to":`),
		Status:   outbox.StatusEnqueued,
	}
	sender := &fakeSender{}

	if err := newDeliverer(store, sender).Deliver(context.Background(), id); err == nil {
		t.Fatal("expected an error")
	}
	if len(store.failed) != 1 {
		t.Fatal("poison payload must park the row")
	}
	if len(sender.sent) != 0 {
		t.Fatal("poison payload must not be sent")
	}
}

func TestDeliverParksUnknownTemplate(t *testing.T) {
	store := newFakeDeliveryStore()
	id := store.seed("password_reset", EmailPayload{To: "user@example.com"}, 0)
	sender := &fakeSender{}

	if err := newDeliverer(store, sender).Deliver(context.Background(), id); err == nil {
		t.Fatal("expected an error")
	}
	if len(store.failed) != 1 {
		t.Fatal("unknown template must park the row")
	}
}
