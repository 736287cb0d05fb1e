// Package notification turns lifecycle events into user-facing signals:
// durable outbox rows that the worker delivers as email, and live SSE
// streams for clients watching a request. Everything here is best-effort;
// notification failures never touch the lifecycle itself.
package notification

import (
	"context"

	"github.com/google/uuid"

	appevents "hireline_backend/internal/events"
	apphttp "hireline_backend/internal/http"
	"hireline_backend/internal/notification/outbox"
	"hireline_backend/internal/notification/sse"
	"hireline_backend/platform/events"
	"hireline_backend/platform/logger"
)

// Outbox kinds and templates. Kind names the channel, template the message.
const (
	KindEmail = "email"

	TemplateRecommendationsReady = "recommendations_ready"
	TemplateBookingConfirmed     = "booking_confirmed"
	TemplateRequestFailed        = "request_failed"
)

// EmailPayload is the outbox payload for every email template. Fields not
// used by a template stay empty.
type EmailPayload struct {
	To              string `json:"to"`
	RequestID       string `json:"requestId"`
	ServiceType     string `json:"serviceType,omitempty"`
	ProviderCount   int    `json:"providerCount,omitempty"`
	ProviderName    string `json:"providerName,omitempty"`
	AppointmentDay  string `json:"appointmentDay,omitempty"`
	AppointmentTime string `json:"appointmentTime,omitempty"`
	Outcome         string `json:"outcome,omitempty"`
}

// OutboxStore is the slice of the outbox repository the module writes to.
type OutboxStore interface {
	Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
}

// Module is the notification bounded context module implementing
// http.Module: it writes outbox rows and feeds the SSE stream from the
// request lifecycle events.
type Module struct {
	outbox OutboxStore
	stream *sse.Service
	bus    events.Bus
	log    *logger.Logger
}

// NewModule wires the notification module. The outbox store is passed in
// because the composition root shares the repository with the worker-side
// dispatcher.
func NewModule(ob OutboxStore, bus events.Bus, log *logger.Logger) *Module {
	return &Module{
		outbox: ob,
		stream: sse.New(log),
		bus:    bus,
		log:    log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// Stream returns the SSE service so the composition root can close it on
// shutdown.
func (m *Module) Stream() *sse.Service {
	return m.stream
}

// RegisterRoutes mounts the live status stream.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/requests/:requestId/events", m.stream.Handler())
}

// RegisterHandlers subscribes the module to the lifecycle events it turns
// into notifications.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(appevents.RequestStateChanged{}.EventName(), m)
	bus.Subscribe(appevents.ProviderCallUpdated{}.EventName(), m)
	bus.Subscribe(appevents.RecommendationsReady{}.EventName(), m)
	bus.Subscribe(appevents.BookingConfirmed{}.EventName(), m)
	bus.Subscribe(appevents.RequestFailed{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case appevents.RequestStateChanged:
		m.stream.Publish(e.RequestID, sse.Event{
			Type:      sse.EventStateChanged,
			RequestID: e.RequestID,
			Message:   e.Detail,
			Data:      map[string]string{"from": e.FromState, "to": e.ToState},
		})
		return nil
	case appevents.ProviderCallUpdated:
		m.stream.Publish(e.RequestID, sse.Event{
			Type:      sse.EventProviderCallUpdated,
			RequestID: e.RequestID,
			Data: map[string]string{
				"providerId":   e.ProviderID.String(),
				"providerName": e.ProviderName,
				"callId":       e.CallID,
				"status":       e.Status,
			},
		})
		return nil
	case appevents.RecommendationsReady:
		return m.handleRecommendationsReady(ctx, e)
	case appevents.BookingConfirmed:
		return m.handleBookingConfirmed(ctx, e)
	case appevents.RequestFailed:
		return m.handleRequestFailed(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleRecommendationsReady(ctx context.Context, e appevents.RecommendationsReady) error {
	m.stream.Publish(e.RequestID, sse.Event{
		Type:      sse.EventRecommendationsReady,
		RequestID: e.RequestID,
		Data:      map[string]int{"providerCount": e.ProviderCount},
	})

	if e.NotifyEmail == "" {
		return nil
	}
	return m.enqueueEmail(ctx, TemplateRecommendationsReady, EmailPayload{
		To:            e.NotifyEmail,
		RequestID:     e.RequestID.String(),
		ServiceType:   e.ServiceType,
		ProviderCount: e.ProviderCount,
	})
}

func (m *Module) handleBookingConfirmed(ctx context.Context, e appevents.BookingConfirmed) error {
	m.stream.Publish(e.RequestID, sse.Event{
		Type:      sse.EventBookingConfirmed,
		RequestID: e.RequestID,
		Data: map[string]string{
			"providerName":    e.ProviderName,
			"appointmentDay":  e.AppointmentDay,
			"appointmentTime": e.AppointmentTime,
		},
	})

	if e.NotifyEmail == "" {
		return nil
	}
	return m.enqueueEmail(ctx, TemplateBookingConfirmed, EmailPayload{
		To:              e.NotifyEmail,
		RequestID:       e.RequestID.String(),
		ProviderName:    e.ProviderName,
		AppointmentDay:  e.AppointmentDay,
		AppointmentTime: e.AppointmentTime,
	})
}

func (m *Module) handleRequestFailed(ctx context.Context, e appevents.RequestFailed) error {
	m.stream.Publish(e.RequestID, sse.Event{
		Type:      sse.EventRequestFailed,
		RequestID: e.RequestID,
		Message:   e.Outcome,
	})

	if e.NotifyEmail == "" {
		return nil
	}
	return m.enqueueEmail(ctx, TemplateRequestFailed, EmailPayload{
		To:          e.NotifyEmail,
		RequestID:   e.RequestID.String(),
		ServiceType: e.ServiceType,
		Outcome:     e.Outcome,
	})
}

// enqueueEmail inserts the outbox row and nudges the in-process dispatcher.
// The row is the durable artifact; the nudge only shortens the path to
// delivery when a dispatcher runs in this process.
func (m *Module) enqueueEmail(ctx context.Context, template string, payload EmailPayload) error {
	id, err := m.outbox.Insert(ctx, outbox.InsertParams{
		Kind:     KindEmail,
		Template: template,
		Payload:  payload,
	})
	if err != nil {
		m.log.Error("failed to enqueue notification", "template", template, "error", err)
		return err
	}

	m.log.Info("notification enqueued", "template", template, "outboxId", id)
	m.bus.Publish(ctx, appevents.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  id,
	})
	return nil
}

// Compile-time checks.
var (
	_ apphttp.Module = (*Module)(nil)
	_ events.Handler = (*Module)(nil)
	_ OutboxStore    = (*outbox.Repository)(nil)
)
