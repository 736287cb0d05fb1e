package adapters

import (
	"context"
	"fmt"
	"time"

	calldomain "hireline_backend/internal/calls/domain"
	"hireline_backend/internal/calls/dispatch"
	"hireline_backend/internal/requests"
	"hireline_backend/internal/requests/domain"
	"hireline_backend/platform/config"
	"hireline_backend/platform/logger"
)

// CallResultLookup reads reconciled call results. Implemented by the calls
// service.
type CallResultLookup interface {
	Lookup(ctx context.Context, callID string) (calldomain.CallResult, error)
}

// ProviderCallPlacer adapts the call dispatcher as the lifecycle's call
// placer: discovery calls fan out asynchronously, the booking call runs
// inline and waits for its transcript.
type ProviderCallPlacer struct {
	dispatcher *dispatch.Dispatcher
	results    CallResultLookup
	cfg        config.LifecycleConfig
	log        *logger.Logger
}

// NewProviderCallPlacer creates a new provider call placer adapter.
func NewProviderCallPlacer(dispatcher *dispatch.Dispatcher, results CallResultLookup, cfg config.LifecycleConfig, log *logger.Logger) *ProviderCallPlacer {
	return &ProviderCallPlacer{dispatcher: dispatcher, results: results, cfg: cfg, log: log}
}

// PlaceCalls hands one call per provider to the async dispatcher. Accepted
// items are marked queued before this returns; outcomes flow back through the
// result sink and the provider rows.
func (a *ProviderCallPlacer) PlaceCalls(ctx context.Context, req domain.ServiceRequest, providers []domain.Provider) error {
	items := make([]calldomain.CallRequest, 0, len(providers))
	for _, p := range providers {
		providerID := p.ID
		requestID := p.RequestID
		items = append(items, calldomain.CallRequest{
			ProviderName: p.Name,
			Phone:        p.Phone,
			ProviderID:   &providerID,
			RequestID:    &requestID,
			ServiceType:  req.ServiceType,
			Description:  req.Description,
			Urgency:      calldomain.Urgency(req.Urgency),
			Location:     req.Location,
		})
	}

	executionID, err := a.dispatcher.DispatchBatchAsync(ctx, items, dispatch.Options{
		Urgency: calldomain.NormalizeUrgency(req.Urgency),
	})
	if err != nil {
		return err
	}

	a.log.WithServiceRequest(req.ID.String()).Info("provider calls dispatched",
		"executionId", executionID,
		"calls", len(items),
	)
	return nil
}

// PlaceBookingCall runs the booking call synchronously and then waits for the
// transcript to arrive, polling the result cache inside the caller's
// deadline. A terminal call without a transcript is still returned: the
// lifecycle decides what an unconfirmed booking means.
func (a *ProviderCallPlacer) PlaceBookingCall(ctx context.Context, req domain.ServiceRequest, provider domain.Provider) (requests.BookingOutcome, error) {
	providerID := provider.ID
	requestID := provider.RequestID
	res, err := a.dispatcher.DispatchOne(ctx, calldomain.CallRequest{
		ProviderName:   provider.Name,
		Phone:          provider.Phone,
		ProviderID:     &providerID,
		RequestID:      &requestID,
		ServiceType:    req.ServiceType,
		Description:    req.Description,
		Urgency:        calldomain.Urgency(req.Urgency),
		Location:       req.Location,
		PromptOverride: bookingPrompt(req, provider),
	})
	if err != nil {
		return requests.BookingOutcome{}, err
	}

	if res.Status == calldomain.CallStatusCompleted && !res.IsComplete() {
		res = a.awaitTranscript(ctx, res)
	}

	outcome := requests.BookingOutcome{
		CallID:       res.CallID,
		Status:       string(res.Status),
		Confirmed:    res.BookingConfirmedFlag(),
		Transcript:   res.Transcript,
		ProposedDay:  res.StructuredString("proposed_day"),
		ProposedTime: res.StructuredString("proposed_time"),
	}
	if res.Analysis != nil {
		outcome.Summary = res.Analysis.Summary
	}
	return outcome, nil
}

// awaitTranscript polls the result cache until enrichment completes the
// record or the caller's deadline ends. The latest snapshot wins either way.
func (a *ProviderCallPlacer) awaitTranscript(ctx context.Context, res calldomain.CallResult) calldomain.CallResult {
	interval := a.cfg.GetBookingPollInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return res
		case <-timer.C:
		}

		latest, err := a.results.Lookup(ctx, res.CallID)
		if err == nil {
			res = latest
			if res.IsComplete() || res.Completeness == calldomain.CompletenessFetchFailed {
				return res
			}
		}
		timer.Reset(interval)
	}
}

// bookingPrompt frames the booking call: the agent is no longer surveying
// availability, it is closing one specific appointment.
func bookingPrompt(req domain.ServiceRequest, provider domain.Provider) string {
	return fmt.Sprintf(
		"You are calling %s to finalize a booking for a customer who needs %s%s. "+
			"The provider already indicated availability in an earlier call. "+
			"Agree on a concrete day and time, confirm the appointment explicitly, "+
			"and close the call politely. Details: %s",
		provider.Name, req.ServiceType, locationSuffix(req.Location), req.Description)
}

func locationSuffix(location string) string {
	if location == "" {
		return ""
	}
	return " in " + location
}

// Compile-time check.
var _ requests.CallPlacer = (*ProviderCallPlacer)(nil)
