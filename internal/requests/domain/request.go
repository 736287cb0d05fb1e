package domain

import (
	"time"

	"github.com/google/uuid"
)

// ServiceRequest is one user request for a service, driving a full lifecycle
// run: find providers, call them, rank the outcomes, book the chosen one.
type ServiceRequest struct {
	ID                 uuid.UUID        `json:"id"`
	ServiceType        string           `json:"serviceType"`
	Description        string           `json:"description,omitempty"`
	Urgency            string           `json:"urgency"`
	Location           string           `json:"location,omitempty"`
	Status             State            `json:"status"`
	SelectedProviderID *uuid.UUID       `json:"selectedProviderId,omitempty"`
	Recommendations    []Recommendation `json:"recommendations,omitempty"`
	Outcome            string           `json:"outcome,omitempty"`
	AppointmentDay     string           `json:"appointmentDay,omitempty"`
	AppointmentTime    string           `json:"appointmentTime,omitempty"`
	NotifyEmail        string           `json:"notifyEmail,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// Recommendation is one ranked provider, persisted as part of the request
// once ranking succeeds.
type Recommendation struct {
	Rank            int        `json:"rank"`
	ProviderID      *uuid.UUID `json:"providerId,omitempty"`
	ProviderName    string     `json:"providerName"`
	CallID          string     `json:"callId,omitempty"`
	Score           float64    `json:"score"`
	Reason          string     `json:"reason,omitempty"`
	PriceIndication string     `json:"priceIndication,omitempty"`
	Availability    string     `json:"availability,omitempty"`
}

// Provider is one candidate attached to a request, tracking the progress of
// the call placed to it. CallStatus starts at pending (found, not dispatched),
// moves to queued when the dispatcher accepts the item, and then mirrors the
// call's own status.
type Provider struct {
	ID          uuid.UUID `json:"id"`
	RequestID   uuid.UUID `json:"requestId"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	ExternalRef string    `json:"externalRef,omitempty"`
	CallID      string    `json:"callId,omitempty"`
	CallStatus  string    `json:"callStatus"`
	Rank        *int      `json:"rank,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// InteractionLogEntry is one audit trail line of a lifecycle run.
type InteractionLogEntry struct {
	ID         uuid.UUID `json:"id"`
	RequestID  uuid.UUID `json:"requestId"`
	Step       string    `json:"step"`
	Detail     string    `json:"detail,omitempty"`
	Status     string    `json:"status"`
	CallID     string    `json:"callId,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Interaction log entry statuses.
const (
	LogInfo    = "info"
	LogSuccess = "success"
	LogError   = "error"
)

// Provider call progress values used before a call reports its own status.
const (
	ProviderCallPending = "pending"
	ProviderCallQueued  = "queued"
)

// settledCallStatuses are provider call statuses after which the call will
// not change anymore. This is the request side's contract over the
// call_status column; the calls context reports these values.
var settledCallStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"no_answer": true,
	"voicemail": true,
	"busy":      true,
	"timeout":   true,
	"error":     true,
}

// failedCallStatuses are the settled statuses that count as failures. An
// unanswered or busy line is a legitimate outcome, not a failure.
var failedCallStatuses = map[string]bool{
	"failed":  true,
	"timeout": true,
	"error":   true,
}

// IsSettledCallStatus reports whether a provider's call has finished.
func IsSettledCallStatus(status string) bool {
	return settledCallStatuses[status]
}

// IsFailedCallStatus reports whether a settled call counts as failed.
func IsFailedCallStatus(status string) bool {
	return failedCallStatuses[status]
}

// GateDecision is the calling gate's verdict over the provider set.
type GateDecision int

const (
	// GateWait means at least one dispatched call is still running.
	GateWait GateDecision = iota
	// GateAdvance means every dispatched call settled and at least one
	// did not fail.
	GateAdvance
	// GateAllFailed means every dispatched call settled as a failure, or
	// nothing was ever dispatched.
	GateAllFailed
)

// EvaluateCallGate decides whether the lifecycle may advance past CALLING.
// Providers still at pending were rejected before dispatch and do not hold
// the gate open.
func EvaluateCallGate(providers []Provider) GateDecision {
	dispatched := 0
	settled := 0
	failed := 0
	for _, p := range providers {
		if p.CallStatus == ProviderCallPending {
			continue
		}
		dispatched++
		if IsSettledCallStatus(p.CallStatus) {
			settled++
			if IsFailedCallStatus(p.CallStatus) {
				failed++
			}
		}
	}
	switch {
	case dispatched == 0:
		return GateAllFailed
	case failed == dispatched:
		return GateAllFailed
	case settled == dispatched:
		return GateAdvance
	default:
		return GateWait
	}
}

// StatusSummary aggregates provider call progress for status polling.
type StatusSummary struct {
	Queued     int `json:"queued"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// SummarizeProviders folds the provider set into aggregate counts. Settled
// non-failure outcomes other than completed (no answer, busy, voicemail)
// count as failed here from the caller's perspective: that provider will not
// produce a recommendation.
func SummarizeProviders(providers []Provider) StatusSummary {
	var s StatusSummary
	for _, p := range providers {
		switch {
		case p.CallStatus == ProviderCallPending || p.CallStatus == ProviderCallQueued:
			s.Queued++
		case p.CallStatus == "completed":
			s.Completed++
		case IsSettledCallStatus(p.CallStatus):
			s.Failed++
		default:
			s.InProgress++
		}
	}
	return s
}
