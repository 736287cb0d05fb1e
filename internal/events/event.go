// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"hireline_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Service Request Domain Events
// =============================================================================

// RequestCreated is published when a new service request enters the pipeline.
type RequestCreated struct {
	BaseEvent
	RequestID   uuid.UUID `json:"requestId"`
	ServiceType string    `json:"serviceType"`
	Location    string    `json:"location,omitempty"`
	Urgency     string    `json:"urgency"`
	NotifyEmail string    `json:"notifyEmail,omitempty"`
}

func (e RequestCreated) EventName() string { return "requests.created" }

// RequestStateChanged is published on every lifecycle transition of a
// service request. FromState is empty for the initial transition.
type RequestStateChanged struct {
	BaseEvent
	RequestID uuid.UUID `json:"requestId"`
	FromState string    `json:"fromState,omitempty"`
	ToState   string    `json:"toState"`
	Detail    string    `json:"detail,omitempty"`
}

func (e RequestStateChanged) EventName() string { return "requests.state_changed" }

// ProviderCallUpdated is published when a provider call attached to a
// request changes status (queued, completed, failed, ...).
type ProviderCallUpdated struct {
	BaseEvent
	RequestID    uuid.UUID `json:"requestId"`
	ProviderID   uuid.UUID `json:"providerId"`
	ProviderName string    `json:"providerName"`
	CallID       string    `json:"callId"`
	Status       string    `json:"status"`
}

func (e ProviderCallUpdated) EventName() string { return "requests.provider.call_updated" }

// RecommendationsReady is published when ranking has produced an ordered
// provider list for a request and the request awaits user selection.
type RecommendationsReady struct {
	BaseEvent
	RequestID     uuid.UUID `json:"requestId"`
	ServiceType   string    `json:"serviceType"`
	ProviderCount int       `json:"providerCount"`
	NotifyEmail   string    `json:"notifyEmail,omitempty"`
}

func (e RecommendationsReady) EventName() string { return "requests.recommendations.ready" }

// BookingConfirmed is published when a booking call with the selected
// provider is judged successful.
type BookingConfirmed struct {
	BaseEvent
	RequestID       uuid.UUID `json:"requestId"`
	ProviderID      uuid.UUID `json:"providerId"`
	ProviderName    string    `json:"providerName"`
	AppointmentDay  string    `json:"appointmentDay,omitempty"`
	AppointmentTime string    `json:"appointmentTime,omitempty"`
	NotifyEmail     string    `json:"notifyEmail,omitempty"`
}

func (e BookingConfirmed) EventName() string { return "requests.booking.confirmed" }

// RequestFailed is published when a request reaches the FAILED terminal
// state. Outcome carries the human-readable failure reason.
type RequestFailed struct {
	BaseEvent
	RequestID   uuid.UUID `json:"requestId"`
	ServiceType string    `json:"serviceType"`
	Outcome     string    `json:"outcome"`
	NotifyEmail string    `json:"notifyEmail,omitempty"`
}

func (e RequestFailed) EventName() string { return "requests.failed" }

// =============================================================================
// Call Domain Events
// =============================================================================

// CallResultReceived is published whenever a call result arrives, from a
// webhook or from the dispatcher's own backend, before enrichment has a
// chance to run. Request and provider IDs are set when the call was placed
// on behalf of a service request.
type CallResultReceived struct {
	BaseEvent
	CallID       string     `json:"callId"`
	RequestID    *uuid.UUID `json:"requestId,omitempty"`
	ProviderID   *uuid.UUID `json:"providerId,omitempty"`
	ProviderName string     `json:"providerName,omitempty"`
	Status       string     `json:"status"`
	Completeness string     `json:"completeness"`
}

func (e CallResultReceived) EventName() string { return "calls.result.received" }

// CallResultCompleted is published when a cached call result reaches its
// final completeness state (complete or fetch_failed) after enrichment.
type CallResultCompleted struct {
	BaseEvent
	CallID        string     `json:"callId"`
	RequestID     *uuid.UUID `json:"requestId,omitempty"`
	Status        string     `json:"status"`
	Completeness  string     `json:"completeness"`
	EndedAt       time.Time  `json:"endedAt,omitempty"`
	HasTranscript bool       `json:"hasTranscript"`
}

func (e CallResultCompleted) EventName() string { return "calls.result.completed" }

// CallDispatched is published when a batch item has been handed to an
// execution backend (or definitively failed to dispatch).
type CallDispatched struct {
	BaseEvent
	CallID          string `json:"callId,omitempty"`
	Phone           string `json:"phone"`
	ExecutionMethod string `json:"executionMethod"`
	Success         bool   `json:"success"`
	Reason          string `json:"reason,omitempty"`
}

func (e CallDispatched) EventName() string { return "calls.dispatched" }

// =============================================================================
// Notification Domain Events
// =============================================================================

// NotificationOutboxDue is published by the scheduler when a notification
// outbox record should be processed.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
