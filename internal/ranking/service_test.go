package ranking

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	calldomain "hireline_backend/internal/calls/domain"
	"hireline_backend/internal/ranking/agent"
	"hireline_backend/internal/requests/domain"
	"hireline_backend/internal/workflow"
	"hireline_backend/platform/logger"
)

type fakeEngine struct {
	healthy bool
	ranked  []workflow.RankedProvider
	err     error
	calls   int
}

func (f *fakeEngine) Healthy(ctx context.Context) bool { return f.healthy }

func (f *fakeEngine) RankProviders(ctx context.Context, serviceType, description, urgency, location string, results []calldomain.CallResult) ([]workflow.RankedProvider, error) {
	f.calls++
	return f.ranked, f.err
}

type fakeReasoner struct {
	candidates []agent.RankedCandidate
	err        error
	calls      int
	lastInput  agent.RankInput
}

func (f *fakeReasoner) Rank(ctx context.Context, input agent.RankInput) ([]agent.RankedCandidate, error) {
	f.calls++
	f.lastInput = input
	return f.candidates, f.err
}

type fakeResultSource struct {
	results []calldomain.CallResult
	err     error
}

func (f *fakeResultSource) ResultsForRequest(ctx context.Context, requestID uuid.UUID) ([]calldomain.CallResult, error) {
	return f.results, f.err
}

func newRequest() domain.ServiceRequest {
	return domain.ServiceRequest{
		ID:          uuid.New(),
		ServiceType: "plumber",
		Description: "leaking kitchen pipe",
		Urgency:     "normal",
		Location:    "Austin",
	}
}

func newProviders(names ...string) []domain.Provider {
	providers := make([]domain.Provider, 0, len(names))
	for i, name := range names {
		providers = append(providers, domain.Provider{
			ID:        uuid.New(),
			RequestID: uuid.New(),
			Name:      name,
			CallID:    "call-" + string(rune('a'+i)),
		})
	}
	return providers
}

func completedResult(callID, providerName string) calldomain.CallResult {
	return calldomain.CallResult{
		CallID:       callID,
		ProviderName: providerName,
		Status:       calldomain.CallStatusCompleted,
		Transcript:   "We can come by tomorrow morning.",
		Analysis: &calldomain.Analysis{
			Summary: providerName + " is available.",
			StructuredData: map[string]any{
				"available":        true,
				"price_indication": "150 euros",
				"proposed_day":     "tomorrow",
				"proposed_time":    "9:00",
			},
		},
	}
}

func TestRankPrefersEngineTier(t *testing.T) {
	providers := newProviders("Alpha Plumbing", "Beta Pipes")
	engine := &fakeEngine{
		healthy: true,
		ranked: []workflow.RankedProvider{
			{ProviderName: "Beta Pipes", CallID: "call-b", Rank: 1, Score: 0.9, Reason: "cheapest"},
			{ProviderName: "Alpha Plumbing", CallID: "call-a", Rank: 2, Score: 0.7, Reason: "later slot"},
		},
	}
	reasoner := &fakeReasoner{}
	source := &fakeResultSource{results: []calldomain.CallResult{
		completedResult("call-a", "Alpha Plumbing"),
		completedResult("call-b", "Beta Pipes"),
	}}
	svc := New(engine, reasoner, source, logger.New("development"))

	recs, err := svc.Rank(context.Background(), newRequest(), providers)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if reasoner.calls != 0 {
		t.Fatal("reasoning agent should not run when the engine answers")
	}
	if len(recs) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(recs))
	}
	if recs[0].ProviderName != "Beta Pipes" || recs[0].Rank != 1 {
		t.Fatalf("best recommendation wrong: %+v", recs[0])
	}
	if recs[0].ProviderID == nil || *recs[0].ProviderID != providers[1].ID {
		t.Fatal("recommendation not bound to the provider row")
	}
}

func TestRankFallsBackWhenEngineUnhealthy(t *testing.T) {
	providers := newProviders("Alpha Plumbing")
	engine := &fakeEngine{healthy: false}
	reasoner := &fakeReasoner{candidates: []agent.RankedCandidate{
		{ProviderName: "Alpha Plumbing", CallID: "call-a", Rank: 1, Score: 0.8, Reason: "available tomorrow"},
	}}
	source := &fakeResultSource{results: []calldomain.CallResult{completedResult("call-a", "Alpha Plumbing")}}
	svc := New(engine, reasoner, source, logger.New("development"))

	recs, err := svc.Rank(context.Background(), newRequest(), providers)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if engine.calls != 0 {
		t.Fatal("unhealthy engine should not be asked to rank")
	}
	if reasoner.calls != 1 {
		t.Fatalf("reasoner calls = %d, want 1", reasoner.calls)
	}
	if len(recs) != 1 || recs[0].ProviderName != "Alpha Plumbing" {
		t.Fatalf("unexpected recommendations: %+v", recs)
	}
}

func TestRankFallsBackWhenEngineErrs(t *testing.T) {
	providers := newProviders("Alpha Plumbing")
	engine := &fakeEngine{healthy: true, err: errors.New("flow exploded")}
	reasoner := &fakeReasoner{candidates: []agent.RankedCandidate{
		{ProviderName: "Alpha Plumbing", Rank: 1, Score: 0.8},
	}}
	source := &fakeResultSource{results: []calldomain.CallResult{completedResult("call-a", "Alpha Plumbing")}}
	svc := New(engine, reasoner, source, logger.New("development"))

	recs, err := svc.Rank(context.Background(), newRequest(), providers)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if engine.calls != 1 || reasoner.calls != 1 {
		t.Fatalf("engine calls = %d, reasoner calls = %d; want 1 and 1", engine.calls, reasoner.calls)
	}
	// The entry carried no call ID, so binding fell back to the name and
	// picked up the provider's own call ID.
	if recs[0].CallID != "call-a" {
		t.Fatalf("recommendation call ID = %q, want call-a", recs[0].CallID)
	}
}

func TestRankBuildsReasonerInputFromResults(t *testing.T) {
	providers := newProviders("Alpha Plumbing")
	reasoner := &fakeReasoner{candidates: []agent.RankedCandidate{
		{ProviderName: "Alpha Plumbing", Rank: 1},
	}}
	source := &fakeResultSource{results: []calldomain.CallResult{
		completedResult("call-a", "Alpha Plumbing"),
		{CallID: "call-x", ProviderName: "Gamma", Status: calldomain.CallStatusNoAnswer},
	}}
	svc := New(nil, reasoner, source, logger.New("development"))

	if _, err := svc.Rank(context.Background(), newRequest(), providers); err != nil {
		t.Fatalf("Rank: %v", err)
	}
	input := reasoner.lastInput
	if len(input.Results) != 1 {
		t.Fatalf("reasoner saw %d results, want only the completed one", len(input.Results))
	}
	got := input.Results[0]
	if got.PriceIndication != "150 euros" {
		t.Fatalf("price indication = %q", got.PriceIndication)
	}
	if got.Availability != "tomorrow at 9:00" {
		t.Fatalf("availability = %q", got.Availability)
	}
}

func TestRankDropsUnmatchedEntries(t *testing.T) {
	providers := newProviders("Alpha Plumbing", "Beta Pipes")
	engine := &fakeEngine{
		healthy: true,
		ranked: []workflow.RankedProvider{
			{ProviderName: "Ghost Co", CallID: "call-zzz", Rank: 1, Score: 0.99},
			{ProviderName: "beta pipes", Rank: 2, Score: 0.5},
		},
	}
	source := &fakeResultSource{results: []calldomain.CallResult{completedResult("call-b", "Beta Pipes")}}
	svc := New(engine, &fakeReasoner{err: errors.New("unused")}, source, logger.New("development"))

	recs, err := svc.Rank(context.Background(), newRequest(), providers)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1 after dropping the unmatched entry", len(recs))
	}
	if recs[0].ProviderName != "Beta Pipes" {
		t.Fatalf("survivor = %q, want the name-matched provider", recs[0].ProviderName)
	}
	if recs[0].Rank != 1 {
		t.Fatalf("rank = %d, want the list re-ranked densely", recs[0].Rank)
	}
}

func TestRankErrsWhenBothTiersFail(t *testing.T) {
	providers := newProviders("Alpha Plumbing")
	engine := &fakeEngine{healthy: true, err: errors.New("down")}
	reasoner := &fakeReasoner{err: errors.New("no verdict")}
	source := &fakeResultSource{results: []calldomain.CallResult{completedResult("call-a", "Alpha Plumbing")}}
	svc := New(engine, reasoner, source, logger.New("development"))

	if _, err := svc.Rank(context.Background(), newRequest(), providers); err == nil {
		t.Fatal("expected an error when both tiers fail")
	}
}

func TestRankErrsWithoutCompletedCalls(t *testing.T) {
	providers := newProviders("Alpha Plumbing")
	source := &fakeResultSource{results: []calldomain.CallResult{
		{CallID: "call-a", Status: calldomain.CallStatusNoAnswer},
		{CallID: "call-b", Status: calldomain.CallStatusBusy},
	}}
	svc := New(&fakeEngine{healthy: true}, &fakeReasoner{}, source, logger.New("development"))

	if _, err := svc.Rank(context.Background(), newRequest(), providers); err == nil {
		t.Fatal("expected an error with no completed calls")
	}
}

func TestRankErrsWithoutAnyTier(t *testing.T) {
	providers := newProviders("Alpha Plumbing")
	source := &fakeResultSource{results: []calldomain.CallResult{completedResult("call-a", "Alpha Plumbing")}}
	svc := New(nil, nil, source, logger.New("development"))

	if _, err := svc.Rank(context.Background(), newRequest(), providers); err == nil {
		t.Fatal("expected an error when no ranking tier is configured")
	}
}
