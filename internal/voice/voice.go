// Package voice places outbound calls directly against the hosted
// voice-agent provider. It is the fallback execution path when the workflow
// engine is unavailable, and the system of record the enrichment fetcher
// reads full call artifacts from.
package voice

import (
	"context"

	"hireline_backend/internal/calls/domain"
	"hireline_backend/platform/config"
	"hireline_backend/platform/logger"
)

// Config is the configuration surface the voice backend needs: provider
// credentials plus the poll window used to wait for a call to end.
type Config interface {
	config.VoiceConfig
	config.LifecycleConfig
}

// Backend is a direct call-execution backend.
type Backend interface {
	// Method identifies how calls placed by this backend are recorded.
	Method() domain.ExecutionMethod
	// Call places one call and blocks until it reaches a terminal status
	// or the poll window is exhausted.
	Call(ctx context.Context, req domain.CallRequest) (domain.CallResult, error)
	// GetCall fetches the full record for a previously placed call.
	GetCall(ctx context.Context, callID string) (domain.CallResult, error)
}

// New selects the backend implementation: the simulator in development when
// VOICE_SIMULATION is set, the HTTP client otherwise. Returns nil when no
// direct backend is configured at all.
func New(cfg Config, log *logger.Logger) Backend {
	if cfg.IsVoiceSimulation() {
		log.Info("voice backend running in simulation mode")
		return NewSimulator(log)
	}
	client := NewClient(cfg, log)
	if client == nil {
		return nil
	}
	return client
}

// callEnvelope is the provider's call resource representation.
type callEnvelope struct {
	ID                string         `json:"id"`
	Status            string         `json:"status"`
	PhoneNumber       string         `json:"phoneNumber"`
	DurationSeconds   int            `json:"durationSeconds"`
	EndedReason       string         `json:"endedReason"`
	Transcript        string         `json:"transcript"`
	Summary           string         `json:"summary"`
	StructuredData    map[string]any `json:"structuredData"`
	SuccessEvaluation string         `json:"successEvaluation"`
	Cost              float64        `json:"cost"`
}

func (e *callEnvelope) toResult() domain.CallResult {
	res := domain.CallResult{
		CallID:          e.ID,
		Phone:           e.PhoneNumber,
		Status:          domain.NormalizeStatus(e.Status),
		ExecutionMethod: domain.ExecutionDirect,
		DurationSeconds: e.DurationSeconds,
		EndedReason:     e.EndedReason,
		Transcript:      e.Transcript,
		Cost:            e.Cost,
	}
	if e.Summary != "" || len(e.StructuredData) > 0 || e.SuccessEvaluation != "" {
		res.Analysis = &domain.Analysis{
			Summary:           e.Summary,
			StructuredData:    e.StructuredData,
			SuccessEvaluation: e.SuccessEvaluation,
		}
	}
	return res
}

// placeCallRequest is the provider's call creation payload. Metadata round-
// trips our identifiers so webhooks can be correlated back to a request.
type placeCallRequest struct {
	PhoneNumber    string            `json:"phoneNumber"`
	ProviderName   string            `json:"providerName"`
	ServiceType    string            `json:"serviceType"`
	Description    string            `json:"description"`
	Urgency        string            `json:"urgency"`
	Location       string            `json:"location,omitempty"`
	PromptOverride string            `json:"promptOverride,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

func newPlaceCallRequest(req domain.CallRequest) placeCallRequest {
	body := placeCallRequest{
		PhoneNumber:    req.Phone,
		ProviderName:   req.ProviderName,
		ServiceType:    req.ServiceType,
		Description:    req.Description,
		Urgency:        string(req.Urgency),
		Location:       req.Location,
		PromptOverride: req.PromptOverride,
	}
	meta := make(map[string]string)
	if req.RequestID != nil {
		meta["requestId"] = req.RequestID.String()
	}
	if req.ProviderID != nil {
		meta["providerId"] = req.ProviderID.String()
	}
	if len(meta) > 0 {
		body.Metadata = meta
	}
	return body
}
