// Package transport defines the wire-level DTOs for the calls API.
package transport

import (
	"time"

	"github.com/google/uuid"

	"hireline_backend/internal/calls/domain"
)

// WebhookEnvelope is the completion notification the voice provider posts.
// The provider wraps everything in a message object; only end-of-call
// reports are processed, other message types are acknowledged and dropped.
type WebhookEnvelope struct {
	Message WebhookMessage `json:"message"`
}

// WebhookMessage carries one call's outcome.
type WebhookMessage struct {
	Type            string            `json:"type"`
	Call            WebhookCall       `json:"call"`
	Status          string            `json:"status"`
	EndedReason     string            `json:"endedReason"`
	DurationSeconds int               `json:"durationSeconds"`
	Transcript      string            `json:"transcript"`
	Summary         string            `json:"summary"`
	Analysis        *WebhookAnalysis  `json:"analysis,omitempty"`
	Cost            float64           `json:"cost"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// WebhookCall identifies the call the message is about.
type WebhookCall struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WebhookAnalysis is the analysis block of an end-of-call report.
type WebhookAnalysis struct {
	Summary           string         `json:"summary"`
	StructuredData    map[string]any `json:"structuredData,omitempty"`
	SuccessEvaluation string         `json:"successEvaluation"`
}

// processedWebhookTypes are the message types that carry a call outcome.
var processedWebhookTypes = map[string]bool{
	"end-of-call-report": true,
	"call.completed":     true,
}

// IsCallOutcome reports whether this message type should be processed.
func (m *WebhookMessage) IsCallOutcome() bool {
	return processedWebhookTypes[m.Type]
}

// metadata returns the correlation map, preferring call-level metadata.
func (m *WebhookMessage) metadata(key string) string {
	if v, ok := m.Call.Metadata[key]; ok {
		return v
	}
	return m.Metadata[key]
}

// ToResult maps the webhook payload onto the domain result. Correlation IDs
// round-tripped through provider metadata are restored here.
func (m *WebhookMessage) ToResult() domain.CallResult {
	res := domain.CallResult{
		CallID:          m.Call.ID,
		Status:          domain.NormalizeStatus(m.Status),
		DurationSeconds: m.DurationSeconds,
		EndedReason:     m.EndedReason,
		Transcript:      m.Transcript,
		Cost:            m.Cost,
		ReceivedAt:      time.Now(),
	}
	if m.Analysis != nil {
		res.Analysis = &domain.Analysis{
			Summary:           m.Analysis.Summary,
			StructuredData:    m.Analysis.StructuredData,
			SuccessEvaluation: m.Analysis.SuccessEvaluation,
		}
	} else if m.Summary != "" {
		res.Analysis = &domain.Analysis{Summary: m.Summary}
	}
	if id, err := uuid.Parse(m.metadata("requestId")); err == nil {
		res.RequestID = &id
	}
	if id, err := uuid.Parse(m.metadata("providerId")); err == nil {
		res.ProviderID = &id
	}
	return res
}

// BatchCallItem is one provider to call in a dispatch request.
type BatchCallItem struct {
	ProviderName   string `json:"providerName" validate:"required,min=1,max=200"`
	Phone          string `json:"phone" validate:"required,min=4,max=32"`
	ServiceType    string `json:"serviceType" validate:"omitempty,max=100"`
	Description    string `json:"description" validate:"omitempty,max=2000"`
	Urgency        string `json:"urgency" validate:"omitempty,oneof=low normal high emergency"`
	Location       string `json:"location" validate:"omitempty,max=300"`
	PromptOverride string `json:"promptOverride" validate:"omitempty,max=4000"`
}

// DispatchBatchRequest is the batch dispatch intake payload.
type DispatchBatchRequest struct {
	Calls         []BatchCallItem `json:"calls" validate:"required,min=1,max=25,dive"`
	MaxConcurrent int             `json:"maxConcurrent" validate:"omitempty,min=1,max=10"`
	Urgency       string          `json:"urgency" validate:"omitempty,oneof=low normal high emergency"`
}

// ToCallRequests maps the intake payload to domain call requests.
func (r *DispatchBatchRequest) ToCallRequests() []domain.CallRequest {
	reqs := make([]domain.CallRequest, 0, len(r.Calls))
	for _, item := range r.Calls {
		reqs = append(reqs, domain.CallRequest{
			ProviderName:   item.ProviderName,
			Phone:          item.Phone,
			ServiceType:    item.ServiceType,
			Description:    item.Description,
			Urgency:        domain.Urgency(item.Urgency),
			Location:       item.Location,
			PromptOverride: item.PromptOverride,
		})
	}
	return reqs
}

// CallResultResponse is the API representation of one call result.
type CallResultResponse struct {
	CallID          string         `json:"callId"`
	ProviderName    string         `json:"providerName,omitempty"`
	Phone           string         `json:"phone,omitempty"`
	RequestID       *uuid.UUID     `json:"requestId,omitempty"`
	Status          string         `json:"status"`
	ExecutionMethod string         `json:"executionMethod,omitempty"`
	DurationSeconds int            `json:"durationSeconds"`
	EndedReason     string         `json:"endedReason,omitempty"`
	Transcript      string         `json:"transcript,omitempty"`
	Summary         string         `json:"summary,omitempty"`
	StructuredData  map[string]any `json:"structuredData,omitempty"`
	Cost            float64        `json:"cost"`
	Completeness    string         `json:"completeness"`
	ReceivedAt      time.Time      `json:"receivedAt"`
	EnrichedAt      *time.Time     `json:"enrichedAt,omitempty"`
}

// NewCallResultResponse maps a domain result to its API shape.
func NewCallResultResponse(res domain.CallResult) CallResultResponse {
	out := CallResultResponse{
		CallID:          res.CallID,
		ProviderName:    res.ProviderName,
		Phone:           res.Phone,
		RequestID:       res.RequestID,
		Status:          string(res.Status),
		ExecutionMethod: string(res.ExecutionMethod),
		DurationSeconds: res.DurationSeconds,
		EndedReason:     res.EndedReason,
		Transcript:      res.Transcript,
		Cost:            res.Cost,
		Completeness:    string(res.Completeness),
		ReceivedAt:      res.ReceivedAt,
		EnrichedAt:      res.EnrichedAt,
	}
	if res.Analysis != nil {
		out.Summary = res.Analysis.Summary
		out.StructuredData = res.Analysis.StructuredData
	}
	return out
}

// BatchResultResponse is the API representation of a finished batch.
type BatchResultResponse struct {
	ExecutionMethod string                 `json:"executionMethod"`
	Requested       int                    `json:"requested"`
	Succeeded       int                    `json:"succeeded"`
	Failed          int                    `json:"failed"`
	StatusCounts    map[string]int         `json:"statusCounts"`
	TotalDuration   int                    `json:"totalDurationSeconds"`
	AvgDuration     float64                `json:"avgDurationSeconds"`
	Results         []CallResultResponse   `json:"results"`
	Errors          []domain.DispatchError `json:"errors,omitempty"`
}

// NewBatchResultResponse maps a domain batch to its API shape.
func NewBatchResultResponse(batch domain.BatchResult) BatchResultResponse {
	out := BatchResultResponse{
		ExecutionMethod: string(batch.ExecutionMethod),
		Requested:       batch.Requested(),
		Succeeded:       batch.Succeeded(),
		Failed:          batch.Failed(),
		StatusCounts:    make(map[string]int),
		TotalDuration:   batch.TotalDurationSeconds(),
		AvgDuration:     batch.AverageDurationSeconds(),
		Results:         make([]CallResultResponse, 0, len(batch.Results)),
		Errors:          batch.Errors,
	}
	for status, n := range batch.StatusCounts() {
		out.StatusCounts[string(status)] = n
	}
	for i := range batch.Results {
		out.Results = append(out.Results, NewCallResultResponse(batch.Results[i]))
	}
	return out
}

// AsyncDispatchResponse acknowledges an asynchronous dispatch.
type AsyncDispatchResponse struct {
	ExecutionID string `json:"executionId"`
	StatusURL   string `json:"statusUrl,omitempty"`
}
