package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	calldomain "hireline_backend/internal/calls/domain"
	"hireline_backend/internal/calls/dispatch"
	"hireline_backend/internal/requests/domain"
	"hireline_backend/internal/voice"
	"hireline_backend/platform/logger"
	"hireline_backend/platform/tasks"
)

type dispatchConfig struct{}

func (dispatchConfig) GetMaxConcurrency() int        { return 5 }
func (dispatchConfig) IsEnginePreferred() bool       { return false }
func (dispatchConfig) IsEngineRequired() bool        { return false }
func (dispatchConfig) GetTestCallNumbers() []string  { return nil }
func (dispatchConfig) IsProduction() bool            { return true }
func (dispatchConfig) GetPhoneDefaultRegion() string { return "US" }

type placerConfig struct{}

func (placerConfig) GetCallPollInterval() time.Duration    { return time.Millisecond }
func (placerConfig) GetCallPollAttempts() int              { return 10 }
func (placerConfig) GetBookingPollInterval() time.Duration { return time.Millisecond }
func (placerConfig) GetBookingPollAttempts() int           { return 10 }
func (placerConfig) GetStaleRequestAfter() time.Duration   { return time.Hour }

// scriptedCaller returns a fixed result for every call.
type scriptedCaller struct {
	result calldomain.CallResult
}

func (c *scriptedCaller) Method() calldomain.ExecutionMethod { return calldomain.ExecutionDirect }

func (c *scriptedCaller) Call(_ context.Context, req calldomain.CallRequest) (calldomain.CallResult, error) {
	res := c.result
	res.ProviderName = req.ProviderName
	res.Phone = req.Phone
	return res, nil
}

func simulatedPlacer(t *testing.T, store *fakeProviderStore, results *fakeResults) (*ProviderCallPlacer, *tasks.Supervisor) {
	t.Helper()
	log := logger.New("development")
	sup := tasks.NewSupervisor(log)
	marker := NewCallProgressMarker(store, log)
	dispatcher := dispatch.New(dispatchConfig{}, nil, voice.NewSimulator(log), nil, marker, sup, log)
	return NewProviderCallPlacer(dispatcher, results, placerConfig{}, log), sup
}

func sampleRequest() domain.ServiceRequest {
	return domain.ServiceRequest{
		ID:          uuid.New(),
		ServiceType: "plumber",
		Description: "leaking sink",
		Urgency:     "high",
		Location:    "Austin",
		Status:      domain.StateSearching,
	}
}

func TestPlaceCallsMarksProvidersQueued(t *testing.T) {
	store := newFakeProviderStore()
	placer, sup := simulatedPlacer(t, store, &fakeResults{})
	req := sampleRequest()

	providers := []domain.Provider{
		{ID: uuid.New(), RequestID: req.ID, Name: "Alpha", Phone: "+15125550100"},
		{ID: uuid.New(), RequestID: req.ID, Name: "Beta", Phone: "+15125550101"},
	}
	if err := placer.PlaceCalls(context.Background(), req, providers); err != nil {
		t.Fatalf("PlaceCalls: %v", err)
	}

	// Queued marking happens before PlaceCalls returns.
	if len(store.queued) != 2 {
		t.Fatalf("marked %d providers queued, want 2", len(store.queued))
	}
	for i, q := range store.queued {
		if q.requestID != req.ID || q.providerID != providers[i].ID {
			t.Fatalf("wrong queued marking at %d: %+v", i, q)
		}
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Wait(waitCtx); err != nil {
		t.Fatalf("background dispatch did not finish: %v", err)
	}
}

func TestPlaceCallsRejectsAllInvalid(t *testing.T) {
	store := newFakeProviderStore()
	placer, _ := simulatedPlacer(t, store, &fakeResults{})
	req := sampleRequest()

	err := placer.PlaceCalls(context.Background(), req, []domain.Provider{
		{ID: uuid.New(), RequestID: req.ID, Name: "Broken", Phone: "not-a-number"},
	})
	if err == nil {
		t.Fatal("an entirely invalid batch must surface as an error")
	}
	if len(store.queued) != 0 {
		t.Fatal("rejected items must not be marked queued")
	}
}

func TestPlaceBookingCallConfirmed(t *testing.T) {
	placer, _ := simulatedPlacer(t, newFakeProviderStore(), &fakeResults{})
	req := sampleRequest()
	req.Status = domain.StateBooking

	// Simulator numbers not ending in 7/8/9 agree and confirm a slot.
	provider := domain.Provider{ID: uuid.New(), RequestID: req.ID, Name: "Alpha", Phone: "+15125550100"}
	outcome, err := placer.PlaceBookingCall(context.Background(), req, provider)
	if err != nil {
		t.Fatalf("PlaceBookingCall: %v", err)
	}

	if outcome.Status != "completed" {
		t.Fatalf("status = %q, want completed", outcome.Status)
	}
	if !outcome.Confirmed {
		t.Error("structured booking flag should be set")
	}
	if outcome.ProposedDay != "tomorrow" || outcome.ProposedTime != "9:00" {
		t.Errorf("proposed slot = (%q, %q)", outcome.ProposedDay, outcome.ProposedTime)
	}
	if outcome.Transcript == "" || outcome.Summary == "" {
		t.Error("transcript and summary should be carried over")
	}
}

func TestPlaceBookingCallDeclined(t *testing.T) {
	placer, _ := simulatedPlacer(t, newFakeProviderStore(), &fakeResults{})
	req := sampleRequest()
	req.Status = domain.StateBooking

	// Numbers ending in 9 decline the job.
	provider := domain.Provider{ID: uuid.New(), RequestID: req.ID, Name: "Alpha", Phone: "+15125550109"}
	outcome, err := placer.PlaceBookingCall(context.Background(), req, provider)
	if err != nil {
		t.Fatalf("PlaceBookingCall: %v", err)
	}
	if outcome.Status != "completed" {
		t.Fatalf("status = %q, want completed", outcome.Status)
	}
	if outcome.Confirmed {
		t.Error("a declined call must not carry the booking flag")
	}
}

func TestPlaceBookingCallNoAnswer(t *testing.T) {
	placer, _ := simulatedPlacer(t, newFakeProviderStore(), &fakeResults{})
	req := sampleRequest()
	req.Status = domain.StateBooking

	// Numbers ending in 7 are never answered.
	provider := domain.Provider{ID: uuid.New(), RequestID: req.ID, Name: "Alpha", Phone: "+15125550107"}
	outcome, err := placer.PlaceBookingCall(context.Background(), req, provider)
	if err != nil {
		t.Fatalf("PlaceBookingCall: %v", err)
	}
	if outcome.Status != "no_answer" {
		t.Fatalf("status = %q, want no_answer", outcome.Status)
	}
	if outcome.Transcript != "" {
		t.Error("an unanswered call has no transcript")
	}
}

func TestPlaceBookingCallWaitsForTranscript(t *testing.T) {
	log := logger.New("development")
	sup := tasks.NewSupervisor(log)
	results := &fakeResults{}

	// The backend reports completion immediately but without a transcript;
	// enrichment fills the record a moment later.
	caller := &scriptedCaller{result: calldomain.CallResult{
		CallID: "call_slow",
		Status: calldomain.CallStatusCompleted,
	}}
	results.set(calldomain.CallResult{
		CallID:     "call_slow",
		Status:     calldomain.CallStatusCompleted,
		Transcript: "Provider: Tomorrow at 9 works. AI: Confirmed.",
		Analysis: &calldomain.Analysis{
			Summary:        "Confirmed for tomorrow 9 AM.",
			StructuredData: map[string]any{"booking_confirmed": true},
		},
	})

	dispatcher := dispatch.New(dispatchConfig{}, nil, caller, nil, nil, sup, log)
	placer := NewProviderCallPlacer(dispatcher, results, placerConfig{}, log)

	req := sampleRequest()
	provider := domain.Provider{ID: uuid.New(), RequestID: req.ID, Name: "Alpha", Phone: "+15125550100"}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	outcome, err := placer.PlaceBookingCall(ctx, req, provider)
	if err != nil {
		t.Fatalf("PlaceBookingCall: %v", err)
	}

	if results.lookups == 0 {
		t.Fatal("the placer should have polled for the enriched record")
	}
	if !outcome.Confirmed {
		t.Error("the enriched record carries the booking flag")
	}
	if outcome.Transcript == "" {
		t.Error("the enriched transcript should be returned")
	}
}
