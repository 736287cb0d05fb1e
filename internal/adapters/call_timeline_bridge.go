package adapters

import (
	"context"
	"fmt"

	appevents "hireline_backend/internal/events"
	"hireline_backend/internal/requests/domain"
	requestsrepo "hireline_backend/internal/requests/repository"
	"hireline_backend/platform/events"
	"hireline_backend/platform/logger"
)

// CallTimelineBridge projects call events onto the owning service request:
// provider rows mirror call status, and completed calls land in the
// interaction log with their transcript.
type CallTimelineBridge struct {
	providers requestsrepo.ProviderStore
	timeline  requestsrepo.InteractionLogStore
	results   CallResultLookup
	bus       events.Bus
	log       *logger.Logger
}

// NewCallTimelineBridge creates a new call timeline bridge.
func NewCallTimelineBridge(providers requestsrepo.ProviderStore, timeline requestsrepo.InteractionLogStore, results CallResultLookup, bus events.Bus, log *logger.Logger) *CallTimelineBridge {
	return &CallTimelineBridge{providers: providers, timeline: timeline, results: results, bus: bus, log: log}
}

// Register subscribes the bridge to the call events it projects.
func (b *CallTimelineBridge) Register(bus events.Bus) {
	bus.Subscribe(appevents.CallResultReceived{}.EventName(), b)
	bus.Subscribe(appevents.CallResultCompleted{}.EventName(), b)
}

// Handle routes events to the appropriate projection.
func (b *CallTimelineBridge) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case appevents.CallResultReceived:
		return b.onResultReceived(ctx, e)
	case appevents.CallResultCompleted:
		return b.onResultCompleted(ctx, e)
	default:
		return nil
	}
}

// onResultReceived mirrors the call status onto the provider row. Results
// that carry their provider reference bind directly; webhook results that
// only know the call id update by call id instead.
func (b *CallTimelineBridge) onResultReceived(ctx context.Context, e appevents.CallResultReceived) error {
	if e.RequestID != nil && e.ProviderID != nil {
		if err := b.providers.BindProviderCall(ctx, *e.RequestID, *e.ProviderID, e.CallID, e.Status); err != nil {
			return fmt.Errorf("bind provider call %s: %w", e.CallID, err)
		}
		b.bus.Publish(ctx, appevents.ProviderCallUpdated{
			BaseEvent:    events.NewBaseEvent(),
			RequestID:    *e.RequestID,
			ProviderID:   *e.ProviderID,
			ProviderName: e.ProviderName,
			CallID:       e.CallID,
			Status:       e.Status,
		})
		return nil
	}

	updated, err := b.providers.UpdateCallStatusByCallID(ctx, e.CallID, e.Status)
	if err != nil {
		return fmt.Errorf("update call status %s: %w", e.CallID, err)
	}
	if updated > 0 {
		b.log.Debug("provider call status updated by call id", "callId", e.CallID, "status", e.Status)
	}
	return nil
}

// onResultCompleted writes the finished call, transcript included, into the
// request's interaction log.
func (b *CallTimelineBridge) onResultCompleted(ctx context.Context, e appevents.CallResultCompleted) error {
	if e.RequestID == nil {
		return nil
	}

	res, err := b.results.Lookup(ctx, e.CallID)
	if err != nil {
		return fmt.Errorf("lookup completed call %s: %w", e.CallID, err)
	}

	detail := fmt.Sprintf("Call to %s ended: %s", res.ProviderName, res.Status)
	if res.Analysis != nil && res.Analysis.Summary != "" {
		detail = res.Analysis.Summary
	}

	status := domain.LogSuccess
	if domain.IsFailedCallStatus(e.Status) {
		status = domain.LogError
	}

	return b.timeline.AppendLog(ctx, requestsrepo.AppendLogParams{
		RequestID:  *e.RequestID,
		Step:       "call",
		Detail:     detail,
		Status:     status,
		CallID:     e.CallID,
		Transcript: res.Transcript,
	})
}

// Compile-time check.
var _ events.Handler = (*CallTimelineBridge)(nil)
