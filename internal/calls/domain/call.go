// Package domain provides core business rules for the calls bounded context.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Urgency classifies how quickly the caller needs the service.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyNormal    Urgency = "normal"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

// NormalizeUrgency maps free-form input to a known urgency, defaulting to normal.
func NormalizeUrgency(value string) Urgency {
	switch Urgency(strings.ToLower(strings.TrimSpace(value))) {
	case UrgencyLow:
		return UrgencyLow
	case UrgencyHigh:
		return UrgencyHigh
	case UrgencyEmergency:
		return UrgencyEmergency
	default:
		return UrgencyNormal
	}
}

// CallStatus is the per-call outcome reported by an execution backend.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusVoicemail  CallStatus = "voicemail"
	CallStatusBusy       CallStatus = "busy"
	CallStatusTimeout    CallStatus = "timeout"
	CallStatusError      CallStatus = "error"
)

// terminalStatuses are outcomes after which no further change to a call is
// expected. no_answer, voicemail and busy are valid outcomes, not system
// errors; they still end the call.
var terminalStatuses = map[CallStatus]bool{
	CallStatusCompleted: true,
	CallStatusFailed:    true,
	CallStatusNoAnswer:  true,
	CallStatusVoicemail: true,
	CallStatusBusy:      true,
	CallStatusTimeout:   true,
	CallStatusError:     true,
}

// failedStatuses are the terminal outcomes that count as unsuccessful when
// deciding whether an entire batch failed.
var failedStatuses = map[CallStatus]bool{
	CallStatusFailed:  true,
	CallStatusTimeout: true,
	CallStatusError:   true,
}

// IsTerminalStatus reports whether the status ends the call.
func IsTerminalStatus(status CallStatus) bool {
	return terminalStatuses[status]
}

// IsFailedStatus reports whether the terminal status counts as a failure.
func IsFailedStatus(status CallStatus) bool {
	return failedStatuses[status]
}

// NormalizeStatus maps backend status strings onto the known set. Unknown
// non-empty values are treated as in_progress so the caller keeps polling
// instead of misclassifying a live call as terminal.
func NormalizeStatus(value string) CallStatus {
	status := CallStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case CallStatusQueued, CallStatusRinging, CallStatusInProgress,
		CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer,
		CallStatusVoicemail, CallStatusBusy, CallStatusTimeout, CallStatusError:
		return status
	case "ended", "done":
		return CallStatusCompleted
	case "no-answer", "noanswer", "unanswered":
		return CallStatusNoAnswer
	case "canceled", "cancelled":
		return CallStatusFailed
	case "":
		return CallStatusQueued
	default:
		return CallStatusInProgress
	}
}

// ExecutionMethod records which backend actually placed a call.
type ExecutionMethod string

const (
	ExecutionEngine    ExecutionMethod = "engine"
	ExecutionDirect    ExecutionMethod = "direct"
	ExecutionSimulated ExecutionMethod = "simulated"
)

// Completeness is the data-readiness marker of a cached call result.
// It moves partial → fetching → complete (or fetch_failed) and never
// regresses once complete.
type Completeness string

const (
	CompletenessPartial     Completeness = "partial"
	CompletenessFetching    Completeness = "fetching"
	CompletenessComplete    Completeness = "complete"
	CompletenessFetchFailed Completeness = "fetch_failed"
)

// CallRequest identifies one provider to call plus the service context the
// agent needs. Immutable once constructed.
type CallRequest struct {
	ProviderName   string
	Phone          string
	ProviderID     *uuid.UUID
	ServiceType    string
	Description    string
	Urgency        Urgency
	Location       string
	PromptOverride string
	RequestID      *uuid.UUID
}

// Analysis is the post-call analysis block produced by the execution backend.
type Analysis struct {
	Summary           string         `json:"summary,omitempty"`
	StructuredData    map[string]any `json:"structuredData,omitempty"`
	SuccessEvaluation string         `json:"successEvaluation,omitempty"`
}

// IsEmpty reports whether the analysis carries no usable content.
func (a *Analysis) IsEmpty() bool {
	return a == nil || (strings.TrimSpace(a.Summary) == "" && len(a.StructuredData) == 0 && strings.TrimSpace(a.SuccessEvaluation) == "")
}

// CallResult is the reconciled outcome of one outbound call. It is created
// on the first completion notification with whatever data that carried, then
// mutated in place by Merge as the enrichment fetcher obtains the full record.
type CallResult struct {
	CallID          string          `json:"callId"`
	ProviderName    string          `json:"providerName,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	ProviderID      *uuid.UUID      `json:"providerId,omitempty"`
	RequestID       *uuid.UUID      `json:"requestId,omitempty"`
	Status          CallStatus      `json:"status"`
	ExecutionMethod ExecutionMethod `json:"executionMethod,omitempty"`
	DurationSeconds int             `json:"durationSeconds"`
	EndedReason     string          `json:"endedReason,omitempty"`
	Transcript      string          `json:"transcript,omitempty"`
	Analysis        *Analysis       `json:"analysis,omitempty"`
	Cost            float64         `json:"cost"`
	Completeness    Completeness    `json:"completeness"`
	ReceivedAt      time.Time       `json:"receivedAt"`
	EnrichedAt      *time.Time      `json:"enrichedAt,omitempty"`
}

// transcriptPlaceholders are values backends emit before transcription has
// finished. A transcript matching one of these does not satisfy the
// completeness predicate.
var transcriptPlaceholders = map[string]bool{
	"":                           true,
	"transcript not available":   true,
	"transcript unavailable":     true,
	"transcription in progress":  true,
	"processing":                 true,
	"pending":                    true,
	"n/a":                        true,
}

// HasUsableTranscript reports whether the transcript carries real content
// rather than a placeholder.
func (r *CallResult) HasUsableTranscript() bool {
	return !transcriptPlaceholders[strings.ToLower(strings.TrimSpace(r.Transcript))]
}

// IsComplete is the completeness predicate used by the enrichment fetcher:
// a non-placeholder transcript and a non-empty analysis block.
func (r *CallResult) IsComplete() bool {
	return r.HasUsableTranscript() && !r.Analysis.IsEmpty()
}

// Merge folds a richer record into the receiver: fields present in the
// fetched record win, fields absent there keep the original value. Data
// already received is never discarded, and completeness never regresses.
func (r *CallResult) Merge(fetched CallResult) {
	if fetched.Status != "" && (fetched.Status != CallStatusQueued || r.Status == "") {
		r.Status = fetched.Status
	}
	if fetched.ExecutionMethod != "" {
		r.ExecutionMethod = fetched.ExecutionMethod
	}
	if fetched.DurationSeconds > 0 {
		r.DurationSeconds = fetched.DurationSeconds
	}
	if fetched.EndedReason != "" {
		r.EndedReason = fetched.EndedReason
	}
	if strings.TrimSpace(fetched.Transcript) != "" && (!r.HasUsableTranscript() || len(fetched.Transcript) > len(r.Transcript)) {
		r.Transcript = fetched.Transcript
	}
	if !fetched.Analysis.IsEmpty() {
		r.Analysis = fetched.Analysis
	}
	if fetched.Cost > 0 {
		r.Cost = fetched.Cost
	}
	if fetched.ProviderName != "" {
		r.ProviderName = fetched.ProviderName
	}
	if fetched.Phone != "" {
		r.Phone = fetched.Phone
	}
	if fetched.ProviderID != nil {
		r.ProviderID = fetched.ProviderID
	}
	if fetched.RequestID != nil {
		r.RequestID = fetched.RequestID
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = fetched.ReceivedAt
	}
}

// SetCompleteness applies a completeness transition, enforcing that a record
// marked complete never regresses to a weaker marker. It returns the marker
// actually stored.
func (r *CallResult) SetCompleteness(next Completeness) Completeness {
	if r.Completeness == CompletenessComplete && next != CompletenessComplete {
		return r.Completeness
	}
	r.Completeness = next
	return r.Completeness
}

// BookingConfirmedFlag extracts the structured booking_confirmed field from
// the analysis block. Backends report it inconsistently as bool or string.
func (r *CallResult) BookingConfirmedFlag() bool {
	if r.Analysis == nil {
		return false
	}
	switch v := r.Analysis.StructuredData["booking_confirmed"].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true") || strings.EqualFold(strings.TrimSpace(v), "yes")
	default:
		return false
	}
}

// StructuredString returns a string field from the analysis block, or "".
func (r *CallResult) StructuredString(key string) string {
	if r.Analysis == nil {
		return ""
	}
	if v, ok := r.Analysis.StructuredData[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
