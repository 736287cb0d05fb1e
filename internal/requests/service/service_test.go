package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"hireline_backend/internal/requests/domain"
	"hireline_backend/internal/requests/repository"
	"hireline_backend/platform/apperr"
	"hireline_backend/platform/events"
	"hireline_backend/platform/logger"
	"hireline_backend/platform/tasks"
)

// fakeRepo implements just enough of the requests repository for the service
// surface: intake, reads and provider lookup.
type fakeRepo struct {
	mu        sync.Mutex
	requests  map[uuid.UUID]domain.ServiceRequest
	providers map[uuid.UUID][]domain.Provider
	created   []repository.CreateRequestParams
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		requests:  make(map[uuid.UUID]domain.ServiceRequest),
		providers: make(map[uuid.UUID][]domain.Provider),
	}
}

func (f *fakeRepo) seed(req domain.ServiceRequest) domain.ServiceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	f.requests[req.ID] = req
	return req
}

func (f *fakeRepo) seedProvider(requestID uuid.UUID, name string) domain.Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := domain.Provider{ID: uuid.New(), RequestID: requestID, Name: name, CallStatus: "completed"}
	f.providers[requestID] = append(f.providers[requestID], p)
	return p
}

func (f *fakeRepo) Create(_ context.Context, params repository.CreateRequestParams) (domain.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, params)
	req := domain.ServiceRequest{
		ID:          uuid.New(),
		ServiceType: params.ServiceType,
		Urgency:     params.Urgency,
		Location:    params.Location,
		NotifyEmail: params.NotifyEmail,
		Status:      domain.StatePending,
	}
	f.requests[req.ID] = req
	return req, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (domain.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return domain.ServiceRequest{}, apperr.NotFound("service request not found")
	}
	return req, nil
}

func (f *fakeRepo) ListStale(context.Context, time.Time, int) ([]domain.ServiceRequest, error) {
	return nil, nil
}

func (f *fakeRepo) Transition(_ context.Context, id uuid.UUID, _, to domain.State, _ repository.TransitionParams) (domain.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := f.requests[id]
	req.Status = to
	f.requests[id] = req
	return req, nil
}

func (f *fakeRepo) SaveRecommendations(context.Context, uuid.UUID, []domain.Recommendation) error {
	return nil
}

func (f *fakeRepo) InsertProviders(context.Context, uuid.UUID, []repository.CreateProviderParams) ([]domain.Provider, error) {
	return nil, nil
}

func (f *fakeRepo) ListProviders(_ context.Context, requestID uuid.UUID) ([]domain.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providers[requestID], nil
}

func (f *fakeRepo) GetProvider(_ context.Context, requestID, providerID uuid.UUID) (domain.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.providers[requestID] {
		if p.ID == providerID {
			return p, nil
		}
	}
	return domain.Provider{}, apperr.NotFound("provider not found")
}

func (f *fakeRepo) MarkProviderQueued(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (f *fakeRepo) BindProviderCall(context.Context, uuid.UUID, uuid.UUID, string, string) error {
	return nil
}

func (f *fakeRepo) UpdateCallStatusByCallID(context.Context, string, string) (int, error) {
	return 0, nil
}

func (f *fakeRepo) SetProviderRanks(context.Context, uuid.UUID, map[uuid.UUID]int) error { return nil }

func (f *fakeRepo) AppendLog(context.Context, repository.AppendLogParams) error { return nil }

func (f *fakeRepo) ListLog(context.Context, uuid.UUID) ([]domain.InteractionLogEntry, error) {
	return nil, nil
}

var _ repository.RequestsRepository = (*fakeRepo)(nil)

// fakeRunner records lifecycle triggers and flips the request to booking the
// way the orchestrator would.
type fakeRunner struct {
	repo *fakeRepo

	searchReq        *domain.ServiceRequest
	searchCandidates []repository.CreateProviderParams
	bookingProvider  *domain.Provider
	bookingErr       error
}

func (r *fakeRunner) StartSearch(_ context.Context, req domain.ServiceRequest, candidates []repository.CreateProviderParams) (*tasks.Task, bool) {
	r.searchReq = &req
	r.searchCandidates = candidates
	return nil, true
}

func (r *fakeRunner) StartBooking(_ context.Context, req domain.ServiceRequest, provider domain.Provider) (*tasks.Task, error) {
	if r.bookingErr != nil {
		return nil, r.bookingErr
	}
	r.bookingProvider = &provider
	if r.repo != nil {
		_, _ = r.repo.Transition(context.Background(), req.ID, req.Status, domain.StateBooking, repository.TransitionParams{})
	}
	return nil, nil
}

type nopBus struct{}

func (nopBus) Publish(context.Context, events.Event) {}

func (nopBus) PublishSync(context.Context, events.Event) error { return nil }

func (nopBus) Subscribe(string, events.Handler) {}

type phoneConfig struct{}

func (phoneConfig) GetPhoneDefaultRegion() string { return "US" }

func newService() (*Service, *fakeRepo, *fakeRunner) {
	repo := newFakeRepo()
	runner := &fakeRunner{repo: repo}
	svc := New(repo, runner, phoneConfig{}, nopBus{}, logger.New("development"))
	return svc, repo, runner
}

func recommendedRequest(repo *fakeRepo, providers ...domain.Provider) domain.ServiceRequest {
	req := repo.seed(domain.ServiceRequest{Status: domain.StateRecommended})
	recs := make([]domain.Recommendation, 0, len(providers))
	for i := range providers {
		providers[i].RequestID = req.ID
		repo.mu.Lock()
		repo.providers[req.ID] = append(repo.providers[req.ID], providers[i])
		repo.mu.Unlock()
		id := providers[i].ID
		recs = append(recs, domain.Recommendation{
			Rank:         i + 1,
			ProviderID:   &id,
			ProviderName: providers[i].Name,
		})
	}
	req.Recommendations = recs
	return repo.seed(req)
}

func TestCreateStartsLifecycle(t *testing.T) {
	svc, repo, runner := newService()

	req, err := svc.Create(context.Background(), CreateParams{
		ServiceType: "  plumber ",
		Urgency:     "",
		Location:    "Austin",
		Candidates: []CandidateParams{
			{Name: " Alpha Plumbing ", Phone: "(512) 555-0100"},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if len(repo.created) != 1 {
		t.Fatalf("persisted %d requests, want 1", len(repo.created))
	}
	if repo.created[0].ServiceType != "plumber" {
		t.Errorf("service type = %q, want trimmed %q", repo.created[0].ServiceType, "plumber")
	}
	if repo.created[0].Urgency != "normal" {
		t.Errorf("urgency = %q, want defaulted %q", repo.created[0].Urgency, "normal")
	}

	if runner.searchReq == nil || runner.searchReq.ID != req.ID {
		t.Fatal("lifecycle run was not started for the created request")
	}
	if len(runner.searchCandidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(runner.searchCandidates))
	}
	if runner.searchCandidates[0].Phone != "+15125550100" {
		t.Errorf("candidate phone = %q, want E.164 %q", runner.searchCandidates[0].Phone, "+15125550100")
	}
	if runner.searchCandidates[0].Name != "Alpha Plumbing" {
		t.Errorf("candidate name = %q, want trimmed", runner.searchCandidates[0].Name)
	}
}

func TestCreateRejectsInvalidCandidatePhone(t *testing.T) {
	svc, repo, runner := newService()

	_, err := svc.Create(context.Background(), CreateParams{
		ServiceType: "plumber",
		Candidates:  []CandidateParams{{Name: "Alpha", Phone: "not a number"}},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(repo.created) != 0 {
		t.Error("nothing should be persisted when a candidate is invalid")
	}
	if runner.searchReq != nil {
		t.Error("lifecycle must not start for a rejected request")
	}
}

func TestSelectByOption(t *testing.T) {
	svc, repo, runner := newService()
	first := domain.Provider{ID: uuid.New(), Name: "Alpha"}
	second := domain.Provider{ID: uuid.New(), Name: "Beta"}
	req := recommendedRequest(repo, first, second)

	updated, err := svc.Select(context.Background(), req.ID, SelectionParams{Option: 2})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if runner.bookingProvider == nil || runner.bookingProvider.ID != second.ID {
		t.Fatal("booking should target the option-2 provider")
	}
	if updated.Status != domain.StateBooking {
		t.Errorf("status = %s, want booking", updated.Status)
	}
}

func TestSelectByProviderIDWinsOverOption(t *testing.T) {
	svc, repo, runner := newService()
	first := domain.Provider{ID: uuid.New(), Name: "Alpha"}
	second := domain.Provider{ID: uuid.New(), Name: "Beta"}
	req := recommendedRequest(repo, first, second)

	firstID := first.ID
	if _, err := svc.Select(context.Background(), req.ID, SelectionParams{ProviderID: &firstID, Option: 2}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if runner.bookingProvider == nil || runner.bookingProvider.ID != first.ID {
		t.Fatal("explicit provider id should win over the option number")
	}
}

func TestSelectRequiresRecommendedState(t *testing.T) {
	svc, repo, _ := newService()
	req := repo.seed(domain.ServiceRequest{Status: domain.StateCalling})

	_, err := svc.Select(context.Background(), req.ID, SelectionParams{Option: 1})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestSelectValidation(t *testing.T) {
	svc, repo, _ := newService()
	provider := domain.Provider{ID: uuid.New(), Name: "Alpha"}
	req := recommendedRequest(repo, provider)

	cases := []struct {
		name string
		sel  SelectionParams
	}{
		{"no choice at all", SelectionParams{}},
		{"unknown option", SelectionParams{Option: 9}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Select(context.Background(), req.ID, tc.sel)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestSelectUnknownProvider(t *testing.T) {
	svc, repo, _ := newService()
	provider := domain.Provider{ID: uuid.New(), Name: "Alpha"}
	req := recommendedRequest(repo, provider)

	strayID := uuid.New()
	_, err := svc.Select(context.Background(), req.ID, SelectionParams{ProviderID: &strayID})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}
