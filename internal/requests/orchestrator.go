// Package requests drives the service request lifecycle: discover candidate
// providers, call them all, rank the outcomes, and book the provider the
// user picks.
package requests

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hireline_backend/internal/booking"
	appevents "hireline_backend/internal/events"
	"hireline_backend/internal/requests/domain"
	"hireline_backend/internal/requests/repository"
	"hireline_backend/platform/apperr"
	"hireline_backend/platform/config"
	"hireline_backend/platform/events"
	"hireline_backend/platform/logger"
	"hireline_backend/platform/tasks"
)

// ProviderFinder discovers candidate providers for a request. The finder is
// nil when discovery is not configured; requests must then carry explicit
// candidates.
type ProviderFinder interface {
	Search(ctx context.Context, serviceType, location string) ([]repository.CreateProviderParams, error)
}

// CallPlacer bridges the lifecycle to the call dispatcher.
type CallPlacer interface {
	// PlaceCalls starts one call per provider without blocking on outcomes.
	// Accepted items are marked queued in storage before it returns; a
	// returned error means the whole batch was rejected.
	PlaceCalls(ctx context.Context, req domain.ServiceRequest, providers []domain.Provider) error
	// PlaceBookingCall calls one provider to settle the appointment and
	// blocks until the outcome, including its transcript when one can still
	// be fetched, is in.
	PlaceBookingCall(ctx context.Context, req domain.ServiceRequest, provider domain.Provider) (BookingOutcome, error)
}

// BookingOutcome is the booking call reduced to what the lifecycle needs.
type BookingOutcome struct {
	CallID       string
	Status       string // terminal call status reported by the backend
	Confirmed    bool   // structured booking_confirmed flag, when present
	Transcript   string
	Summary      string
	ProposedDay  string
	ProposedTime string
}

// Ranker orders the providers that produced usable call outcomes, best
// first. An error or an empty list means ranking produced nothing to
// recommend.
type Ranker interface {
	Rank(ctx context.Context, req domain.ServiceRequest, providers []domain.Provider) ([]domain.Recommendation, error)
}

// Orchestrator runs request lifecycles as supervised background tasks. At
// most one task advances a given request at a time: duplicate triggers are
// rejected, and every state change goes through the repository's guarded
// transition so a stale run cannot double-apply.
type Orchestrator struct {
	cfg    config.LifecycleConfig
	repo   repository.RequestsRepository
	finder ProviderFinder
	placer CallPlacer
	ranker Ranker
	bus    events.Bus
	sup    *tasks.Supervisor
	log    *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates the lifecycle orchestrator.
func NewOrchestrator(cfg config.LifecycleConfig, repo repository.RequestsRepository, finder ProviderFinder, placer CallPlacer, ranker Ranker, bus events.Bus, sup *tasks.Supervisor, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		repo:   repo,
		finder: finder,
		placer: placer,
		ranker: ranker,
		bus:    bus,
		sup:    sup,
		log:    log,
		sleep:  sleepContext,
	}
}

// StartSearch launches the lifecycle run for a freshly created request on a
// detached supervised task. A run already in flight for the request makes
// this a no-op.
func (o *Orchestrator) StartSearch(ctx context.Context, req domain.ServiceRequest, candidates []repository.CreateProviderParams) (*tasks.Task, bool) {
	task, started := o.sup.TryGo(ctx, "lifecycle:"+req.ID.String(), func(taskCtx context.Context) error {
		o.runLifecycle(taskCtx, req, candidates)
		return nil
	})
	if !started {
		o.log.Warn("lifecycle already running", "requestId", req.ID)
	}
	return task, started
}

// StartBooking moves the request into BOOKING for the chosen provider and
// runs the booking call in the background. The guarded transition makes
// concurrent selections race-safe: the loser gets a conflict.
func (o *Orchestrator) StartBooking(ctx context.Context, req domain.ServiceRequest, provider domain.Provider) (*tasks.Task, error) {
	providerID := provider.ID
	updated, err := o.transition(ctx, req, domain.StateBooking, repository.TransitionParams{
		SelectedProviderID: &providerID,
	}, fmt.Sprintf("Booking call to %s", provider.Name))
	if err != nil {
		return nil, err
	}

	task, started := o.sup.TryGo(ctx, "booking:"+req.ID.String(), func(taskCtx context.Context) error {
		o.runBooking(taskCtx, updated, provider)
		return nil
	})
	if !started {
		// The state guard should have caught this already; a lingering run
		// for the same request is a conflict all the same.
		return nil, apperr.Conflict("booking already in progress for this request")
	}
	return task, nil
}

// runLifecycle advances a request from PENDING to RECOMMENDED (or FAILED).
// Each stage re-reads as little as possible and fails the request with a
// human-readable outcome when it cannot continue.
func (o *Orchestrator) runLifecycle(ctx context.Context, req domain.ServiceRequest, candidates []repository.CreateProviderParams) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("lifecycle run panicked", "requestId", req.ID, "panic", fmt.Sprintf("%v", r))
			if current, err := o.repo.GetByID(ctx, req.ID); err == nil && !domain.IsTerminal(current.Status) {
				o.fail(ctx, current, fmt.Sprintf("internal error: %v", r))
			}
		}
	}()

	req, err := o.transition(ctx, req, domain.StateSearching, repository.TransitionParams{}, "Searching for providers")
	if err != nil {
		o.log.Error("failed to enter searching", "requestId", req.ID, "error", err)
		return
	}

	providers, ok := o.findProviders(ctx, req, candidates)
	if !ok {
		return
	}

	// Dispatch before the transition so the first gate poll already sees
	// every accepted item queued.
	if err := o.placer.PlaceCalls(ctx, req, providers); err != nil {
		o.fail(ctx, req, fmt.Sprintf("call dispatch failed: %v", err))
		return
	}

	req, err = o.transition(ctx, req, domain.StateCalling, repository.TransitionParams{},
		fmt.Sprintf("Calling %d providers", len(providers)))
	if err != nil {
		o.log.Error("failed to enter calling", "requestId", req.ID, "error", err)
		return
	}

	decision, settled, err := o.awaitCalls(ctx, req.ID)
	if err != nil {
		o.fail(ctx, req, "storage error while polling call progress")
		return
	}
	switch decision {
	case domain.GateAllFailed:
		o.fail(ctx, req, allFailedOutcome(settled))
		return
	case domain.GateWait:
		o.fail(ctx, req, "timed out waiting for call results")
		return
	}

	req, err = o.transition(ctx, req, domain.StateAnalyzing, repository.TransitionParams{}, "Analyzing call outcomes")
	if err != nil {
		o.log.Error("failed to enter analyzing", "requestId", req.ID, "error", err)
		return
	}

	recommendations, err := o.ranker.Rank(ctx, req, settled)
	if err != nil || len(recommendations) == 0 {
		if err != nil {
			o.log.Error("ranking failed", "requestId", req.ID, "error", err)
		}
		o.fail(ctx, req, "no recommendations available")
		return
	}

	if err := o.repo.SaveRecommendations(ctx, req.ID, recommendations); err != nil {
		o.fail(ctx, req, "storage error while saving recommendations")
		return
	}
	if err := o.repo.SetProviderRanks(ctx, req.ID, rankIndex(recommendations)); err != nil {
		o.log.Error("failed to persist provider ranks", "requestId", req.ID, "error", err)
	}

	req, err = o.transition(ctx, req, domain.StateRecommended, repository.TransitionParams{},
		fmt.Sprintf("%d providers recommended", len(recommendations)))
	if err != nil {
		o.log.Error("failed to enter recommended", "requestId", req.ID, "error", err)
		return
	}

	o.bus.Publish(ctx, appevents.RecommendationsReady{
		BaseEvent:     events.NewBaseEvent(),
		RequestID:     req.ID,
		ServiceType:   req.ServiceType,
		ProviderCount: len(recommendations),
		NotifyEmail:   req.NotifyEmail,
	})
}

// findProviders resolves the candidate set: explicit candidates win,
// discovery fills the gap. Returns false when the run was failed.
func (o *Orchestrator) findProviders(ctx context.Context, req domain.ServiceRequest, candidates []repository.CreateProviderParams) ([]domain.Provider, bool) {
	if len(candidates) == 0 {
		if o.finder == nil {
			o.fail(ctx, req, "no providers found")
			return nil, false
		}
		found, err := o.finder.Search(ctx, req.ServiceType, req.Location)
		if err != nil {
			o.log.Error("provider discovery failed", "requestId", req.ID, "error", err)
			o.fail(ctx, req, "provider search failed")
			return nil, false
		}
		candidates = found
	}
	if len(candidates) == 0 {
		o.fail(ctx, req, "no providers found")
		return nil, false
	}

	providers, err := o.repo.InsertProviders(ctx, req.ID, candidates)
	if err != nil {
		o.fail(ctx, req, "storage error while saving providers")
		return nil, false
	}
	o.appendLog(ctx, req.ID, "search", fmt.Sprintf("Found %d candidate providers", len(providers)), domain.LogSuccess, "", "")
	return providers, true
}

// awaitCalls polls provider call progress until the gate settles or the poll
// window closes. A GateWait return means the window was exhausted. The
// provider snapshot from the last poll is returned for outcome reporting and
// ranking.
func (o *Orchestrator) awaitCalls(ctx context.Context, requestID uuid.UUID) (domain.GateDecision, []domain.Provider, error) {
	interval := o.cfg.GetCallPollInterval()
	attempts := o.cfg.GetCallPollAttempts()

	var providers []domain.Provider
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := o.sleep(ctx, interval); err != nil {
			return domain.GateWait, providers, err
		}

		var err error
		providers, err = o.repo.ListProviders(ctx, requestID)
		if err != nil {
			return domain.GateWait, nil, err
		}

		decision := domain.EvaluateCallGate(providers)
		if decision != domain.GateWait {
			return decision, providers, nil
		}

		summary := domain.SummarizeProviders(providers)
		o.log.Debug("calls still in progress",
			"requestId", requestID,
			"attempt", attempt,
			"queued", summary.Queued,
			"inProgress", summary.InProgress,
			"completed", summary.Completed,
		)
	}
	return domain.GateWait, providers, nil
}

// runBooking places the booking call and settles the request: confirmed
// appointments complete it, anything else reverts it to RECOMMENDED so the
// user can pick again.
func (o *Orchestrator) runBooking(ctx context.Context, req domain.ServiceRequest, provider domain.Provider) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("booking run panicked", "requestId", req.ID, "panic", fmt.Sprintf("%v", r))
			o.revertBooking(ctx, req, fmt.Sprintf("internal error: %v", r))
		}
	}()

	// Bound the whole booking wait: the call itself plus fetching its
	// transcript.
	window := time.Duration(o.cfg.GetBookingPollAttempts()) * o.cfg.GetBookingPollInterval()
	callCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	outcome, err := o.placer.PlaceBookingCall(callCtx, req, provider)
	if err != nil {
		if callCtx.Err() != nil {
			o.revertBooking(ctx, req, "booking call timed out")
			return
		}
		o.revertBooking(ctx, req, fmt.Sprintf("booking call failed: %v", err))
		return
	}

	o.appendLog(ctx, req.ID, "booking_call",
		fmt.Sprintf("Booking call to %s ended: %s", provider.Name, outcome.Status),
		domain.LogInfo, outcome.CallID, outcome.Transcript)

	if outcome.Status != "completed" {
		o.revertBooking(ctx, req, fmt.Sprintf("booking call did not connect (%s)", outcome.Status))
		return
	}

	inference := booking.InferConfirmation(outcome.Confirmed, outcome.Transcript)
	if !inference.Confirmed {
		o.revertBooking(ctx, req, "provider did not confirm the appointment")
		return
	}

	day := outcome.ProposedDay
	if day == "" {
		day = inference.Day
	}
	slot := outcome.ProposedTime
	if slot == "" {
		slot = inference.Time
	}

	outcomeText := fmt.Sprintf("appointment confirmed with %s", provider.Name)
	updated, err := o.transition(ctx, req, domain.StateCompleted, repository.TransitionParams{
		Outcome:         &outcomeText,
		AppointmentDay:  &day,
		AppointmentTime: &slot,
	}, outcomeText)
	if err != nil {
		o.log.Error("failed to complete request", "requestId", req.ID, "error", err)
		return
	}

	o.bus.Publish(ctx, appevents.BookingConfirmed{
		BaseEvent:       events.NewBaseEvent(),
		RequestID:       updated.ID,
		ProviderID:      provider.ID,
		ProviderName:    provider.Name,
		AppointmentDay:  day,
		AppointmentTime: slot,
		NotifyEmail:     updated.NotifyEmail,
	})
}

// revertBooking returns a request to RECOMMENDED after an unconfirmed or
// failed booking call.
func (o *Orchestrator) revertBooking(ctx context.Context, req domain.ServiceRequest, reason string) {
	if _, err := o.transition(ctx, req, domain.StateRecommended, repository.TransitionParams{
		Outcome: &reason,
	}, reason); err != nil {
		o.log.Error("failed to revert booking", "requestId", req.ID, "error", err)
	}
}

// fail moves the request to FAILED with a human-readable outcome. When the
// failure path itself fails it is logged and dropped; the reaper eventually
// collects requests stuck this way.
func (o *Orchestrator) fail(ctx context.Context, req domain.ServiceRequest, outcome string) {
	updated, err := o.transition(ctx, req, domain.StateFailed, repository.TransitionParams{
		Outcome: &outcome,
	}, outcome)
	if err != nil {
		o.log.Error("failed to fail request", "requestId", req.ID, "outcome", outcome, "error", err)
		return
	}

	o.bus.Publish(ctx, appevents.RequestFailed{
		BaseEvent:   events.NewBaseEvent(),
		RequestID:   updated.ID,
		ServiceType: updated.ServiceType,
		Outcome:     outcome,
		NotifyEmail: updated.NotifyEmail,
	})
}

// transition applies one guarded state change, records it in the interaction
// log and announces it on the bus.
func (o *Orchestrator) transition(ctx context.Context, req domain.ServiceRequest, to domain.State, params repository.TransitionParams, detail string) (domain.ServiceRequest, error) {
	from := req.Status
	if !domain.CanTransition(from, to) {
		return domain.ServiceRequest{}, apperr.Conflict(fmt.Sprintf("cannot move request from %s to %s", from, to))
	}

	updated, err := o.repo.Transition(ctx, req.ID, from, to, params)
	if err != nil {
		return domain.ServiceRequest{}, err
	}

	o.log.StateTransition(req.ID.String(), string(from), string(to), detail)
	logStatus := domain.LogInfo
	if to == domain.StateFailed {
		logStatus = domain.LogError
	}
	o.appendLog(ctx, req.ID, "state:"+string(to), detail, logStatus, "", "")

	o.bus.Publish(ctx, appevents.RequestStateChanged{
		BaseEvent: events.NewBaseEvent(),
		RequestID: req.ID,
		FromState: string(from),
		ToState:   string(to),
		Detail:    detail,
	})
	return updated, nil
}

// appendLog writes one audit line, best-effort.
func (o *Orchestrator) appendLog(ctx context.Context, requestID uuid.UUID, step, detail, status, callID, transcript string) {
	err := o.repo.AppendLog(ctx, repository.AppendLogParams{
		RequestID:  requestID,
		Step:       step,
		Detail:     detail,
		Status:     status,
		CallID:     callID,
		Transcript: transcript,
	})
	if err != nil {
		o.log.Error("failed to append interaction log", "requestId", requestID, "step", step, "error", err)
	}
}

// allFailedOutcome names the first concrete failure so the outcome explains
// itself.
func allFailedOutcome(providers []domain.Provider) string {
	for _, p := range providers {
		if domain.IsFailedCallStatus(p.CallStatus) {
			return fmt.Sprintf("all provider calls failed: first failure was %s (%s)", p.Name, p.CallStatus)
		}
	}
	return "all provider calls failed"
}

// rankIndex extracts the provider id to rank mapping from a recommendation
// list. Recommendations without a provider reference are skipped.
func rankIndex(recs []domain.Recommendation) map[uuid.UUID]int {
	ranks := make(map[uuid.UUID]int, len(recs))
	for _, rec := range recs {
		if rec.ProviderID != nil {
			ranks[*rec.ProviderID] = rec.Rank
		}
	}
	return ranks
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
