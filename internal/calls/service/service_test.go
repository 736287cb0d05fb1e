package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"hireline_backend/internal/calls/cache"
	"hireline_backend/internal/calls/domain"
	"hireline_backend/internal/calls/repository"
	"hireline_backend/internal/calls/transport"
	appevents "hireline_backend/internal/events"
	"hireline_backend/platform/apperr"
	"hireline_backend/platform/events"
	"hireline_backend/platform/logger"
)

type memRepo struct {
	mu   sync.Mutex
	rows map[string]domain.CallResult
}

var _ repository.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]domain.CallResult)}
}

func (m *memRepo) UpsertResult(_ context.Context, res domain.CallResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[res.CallID] = res
	return nil
}

func (m *memRepo) GetResult(_ context.Context, callID string) (domain.CallResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.rows[callID]
	if !ok {
		return domain.CallResult{}, apperr.NotFound("call record not found")
	}
	return res, nil
}

func (m *memRepo) ListByRequest(_ context.Context, requestID uuid.UUID) ([]domain.CallResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CallResult
	for _, res := range m.rows {
		if res.RequestID != nil && *res.RequestID == requestID {
			out = append(out, res)
		}
	}
	return out, nil
}

func (m *memRepo) ListUnarchived(_ context.Context, _ int) ([]domain.CallResult, error) {
	return nil, nil
}

func (m *memRepo) SetArchiveKey(_ context.Context, _ string, _ string) error {
	return nil
}

func (m *memRepo) stored(callID string) (domain.CallResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.rows[callID]
	return res, ok
}

type fakeReconciler struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeReconciler) Reconcile(_ context.Context, callID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, callID)
	return true
}

func (f *fakeReconciler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type receivedCollector struct {
	mu     sync.Mutex
	events []appevents.CallResultReceived
}

func (c *receivedCollector) subscribe(bus events.Bus) {
	bus.Subscribe(appevents.CallResultReceived{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		evt, ok := e.(appevents.CallResultReceived)
		if !ok {
			return nil
		}
		c.mu.Lock()
		c.events = append(c.events, evt)
		c.mu.Unlock()
		return nil
	}))
}

func (c *receivedCollector) waitFor(t *testing.T, n int) []appevents.CallResultReceived {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		count := len(c.events)
		c.mu.Unlock()
		if count >= n {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]appevents.CallResultReceived, len(c.events))
	copy(out, c.events)
	return out
}

func newTestService(t *testing.T) (*Service, *memRepo, *fakeReconciler, *cache.Cache, *receivedCollector) {
	t.Helper()
	log := logger.New("development")
	resultCache := cache.New(30 * time.Minute)
	repo := newMemRepo()
	fetcher := &fakeReconciler{}
	bus := events.NewInMemoryBus(log)
	collector := &receivedCollector{}
	collector.subscribe(bus)
	return New(resultCache, repo, fetcher, bus, log), repo, fetcher, resultCache, collector
}

func TestIngestTerminalResult(t *testing.T) {
	svc, repo, fetcher, resultCache, collector := newTestService(t)

	res := svc.Ingest(context.Background(), domain.CallResult{
		CallID:     "call-1",
		Status:     domain.CallStatusCompleted,
		Transcript: "AI: Hello.\nProvider: We can come tomorrow.",
	})

	if res.Status != domain.CallStatusCompleted {
		t.Fatalf("status = %q, want completed", res.Status)
	}
	if res.ReceivedAt.IsZero() {
		t.Fatal("ReceivedAt not stamped")
	}
	if _, ok := resultCache.Get("call-1"); !ok {
		t.Fatal("result not cached")
	}
	if _, ok := repo.stored("call-1"); !ok {
		t.Fatal("terminal result not persisted")
	}
	if fetcher.count() != 1 {
		t.Fatalf("reconcile triggered %d times, want 1", fetcher.count())
	}
	evts := collector.waitFor(t, 1)
	if len(evts) != 1 || evts[0].CallID != "call-1" {
		t.Fatalf("expected one received event for call-1, got %+v", evts)
	}
}

func TestIngestProgressUpdate(t *testing.T) {
	svc, repo, fetcher, resultCache, _ := newTestService(t)

	svc.Ingest(context.Background(), domain.CallResult{CallID: "call-1", Status: domain.CallStatusRinging})

	if _, ok := resultCache.Get("call-1"); !ok {
		t.Fatal("progress update not cached")
	}
	if _, ok := repo.stored("call-1"); ok {
		t.Fatal("non-terminal result must not be persisted")
	}
	if fetcher.count() != 0 {
		t.Fatal("non-terminal result must not trigger enrichment")
	}
}

func TestIngestWithoutCallID(t *testing.T) {
	svc, repo, fetcher, resultCache, _ := newTestService(t)

	svc.Ingest(context.Background(), domain.CallResult{Status: domain.CallStatusCompleted})

	if stats := resultCache.Stats(); stats.Entries != 0 {
		t.Fatalf("cache entries = %d, want 0", stats.Entries)
	}
	if len(repo.rows) != 0 || fetcher.count() != 0 {
		t.Fatal("result without call id must be dropped")
	}
}

func TestIngestMergesDuplicateNotifications(t *testing.T) {
	svc, _, _, resultCache, _ := newTestService(t)

	svc.Ingest(context.Background(), domain.CallResult{
		CallID:     "call-1",
		Status:     domain.CallStatusCompleted,
		Transcript: "AI: Hello.\nProvider: Tomorrow at nine works.",
		Cost:       0.2,
	})
	svc.Ingest(context.Background(), domain.CallResult{
		CallID: "call-1",
		Status: domain.CallStatusCompleted,
	})

	got, _ := resultCache.Get("call-1")
	if got.Transcript == "" {
		t.Fatal("second notification wiped the transcript")
	}
	if got.Cost != 0.2 {
		t.Fatalf("cost = %v, want 0.2", got.Cost)
	}
}

func TestIngestNormalizesBackendStatus(t *testing.T) {
	svc, _, _, resultCache, _ := newTestService(t)

	svc.Ingest(context.Background(), domain.CallResult{CallID: "call-1", Status: "ended"})

	got, _ := resultCache.Get("call-1")
	if got.Status != domain.CallStatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
}

func TestHandleWebhook(t *testing.T) {
	svc, _, _, resultCache, _ := newTestService(t)

	processed := svc.HandleWebhook(context.Background(), transport.WebhookMessage{
		Type:       "end-of-call-report",
		Call:       transport.WebhookCall{ID: "call-1"},
		Status:     "ended",
		Transcript: "AI: Hello.\nProvider: Yes.",
		Analysis:   &transport.WebhookAnalysis{Summary: "Provider available."},
	})
	if !processed {
		t.Fatal("end-of-call-report should be processed")
	}
	got, ok := resultCache.Get("call-1")
	if !ok {
		t.Fatal("webhook result not cached")
	}
	if got.Analysis == nil || got.Analysis.Summary != "Provider available." {
		t.Fatalf("analysis not carried over: %+v", got.Analysis)
	}
}

func TestHandleWebhookIgnoresOtherMessageTypes(t *testing.T) {
	svc, _, _, resultCache, _ := newTestService(t)

	if processed := svc.HandleWebhook(context.Background(), transport.WebhookMessage{
		Type: "status-update",
		Call: transport.WebhookCall{ID: "call-1"},
	}); processed {
		t.Fatal("status-update must be acknowledged without processing")
	}
	if processed := svc.HandleWebhook(context.Background(), transport.WebhookMessage{
		Type: "end-of-call-report",
	}); processed {
		t.Fatal("message without call id must be dropped")
	}
	if stats := resultCache.Stats(); stats.Entries != 0 {
		t.Fatalf("cache entries = %d, want 0", stats.Entries)
	}
}

func TestLookupFallsBackToRepository(t *testing.T) {
	svc, repo, _, _, _ := newTestService(t)

	_ = repo.UpsertResult(context.Background(), domain.CallResult{
		CallID: "archived-call",
		Status: domain.CallStatusCompleted,
	})

	got, err := svc.Lookup(context.Background(), "archived-call")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got.CallID != "archived-call" {
		t.Fatalf("CallID = %q", got.CallID)
	}

	_, err = svc.Lookup(context.Background(), "unknown")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResultsForRequestPrefersCachedData(t *testing.T) {
	svc, repo, _, resultCache, _ := newTestService(t)
	requestID := uuid.New()

	_ = repo.UpsertResult(context.Background(), domain.CallResult{
		CallID:       "call-1",
		RequestID:    &requestID,
		Status:       domain.CallStatusCompleted,
		Completeness: domain.CompletenessPartial,
	})
	resultCache.Upsert("call-1", func(r *domain.CallResult) {
		r.Status = domain.CallStatusCompleted
		r.Transcript = "full transcript fetched later"
		r.Completeness = domain.CompletenessComplete
	})

	rows, err := svc.ResultsForRequest(context.Background(), requestID)
	if err != nil {
		t.Fatalf("ResultsForRequest() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Transcript != "full transcript fetched later" {
		t.Fatalf("transcript = %q, cached data not folded in", rows[0].Transcript)
	}
	if rows[0].Completeness != domain.CompletenessComplete {
		t.Fatalf("completeness = %q, want complete", rows[0].Completeness)
	}
}

func TestDeleteCacheEntry(t *testing.T) {
	svc, _, _, resultCache, _ := newTestService(t)

	resultCache.Upsert("call-1", func(r *domain.CallResult) { r.Status = domain.CallStatusCompleted })

	if !svc.DeleteCacheEntry("call-1") {
		t.Fatal("expected eviction of an existing entry")
	}
	if svc.DeleteCacheEntry("call-1") {
		t.Fatal("second eviction must report a miss")
	}
}
