// Package transport defines the wire-level DTOs for the requests API.
package transport

import (
	"time"

	"github.com/google/uuid"

	"hireline_backend/internal/requests/domain"
	"hireline_backend/internal/requests/service"
)

// CandidateInput is one explicit provider candidate supplied at intake.
type CandidateInput struct {
	Name        string `json:"name" validate:"required,min=2,max=200"`
	Phone       string `json:"phone" validate:"required,min=4,max=32"`
	ExternalRef string `json:"externalRef" validate:"omitempty,max=128"`
}

// CreateRequestInput is the request intake payload. Providers are optional:
// when absent, discovery finds candidates.
type CreateRequestInput struct {
	ServiceType string           `json:"serviceType" validate:"required,min=2,max=100"`
	Description string           `json:"description" validate:"omitempty,max=2000"`
	Urgency     string           `json:"urgency" validate:"omitempty,oneof=low normal high emergency"`
	Location    string           `json:"location" validate:"omitempty,max=300"`
	NotifyEmail string           `json:"notifyEmail" validate:"omitempty,email,max=320"`
	Providers   []CandidateInput `json:"providers" validate:"omitempty,max=10,dive"`
}

// ToParams maps the intake payload to service parameters.
func (r *CreateRequestInput) ToParams() service.CreateParams {
	params := service.CreateParams{
		ServiceType: r.ServiceType,
		Description: r.Description,
		Urgency:     r.Urgency,
		Location:    r.Location,
		NotifyEmail: r.NotifyEmail,
	}
	for _, c := range r.Providers {
		params.Candidates = append(params.Candidates, service.CandidateParams{
			Name:        c.Name,
			Phone:       c.Phone,
			ExternalRef: c.ExternalRef,
		})
	}
	return params
}

// CreateRequestResponse acknowledges an accepted request.
type CreateRequestResponse struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	StatusURL string    `json:"statusUrl"`
}

// SelectionInput picks a recommended provider, by id or by the 1-based rank
// shown in the recommendations.
type SelectionInput struct {
	ProviderID *uuid.UUID `json:"providerId"`
	Option     int        `json:"option" validate:"omitempty,min=1,max=50"`
}

// RequestDetailResponse is the full request view including its audit trail.
type RequestDetailResponse struct {
	Request  domain.ServiceRequest        `json:"request"`
	Timeline []domain.InteractionLogEntry `json:"timeline,omitempty"`
}

// ProviderStatusView is one provider's call progress in the status poll.
type ProviderStatusView struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	CallID     string    `json:"callId,omitempty"`
	CallStatus string    `json:"callStatus"`
	Rank       *int      `json:"rank,omitempty"`
}

// RequestStatusResponse is the aggregate status polling payload.
type RequestStatusResponse struct {
	ID        uuid.UUID            `json:"id"`
	Status    string               `json:"status"`
	Outcome   string               `json:"outcome,omitempty"`
	Summary   domain.StatusSummary `json:"summary"`
	Providers []ProviderStatusView `json:"providers"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// NewStatusResponse folds the request and its providers into the polling
// payload.
func NewStatusResponse(req domain.ServiceRequest, providers []domain.Provider) RequestStatusResponse {
	out := RequestStatusResponse{
		ID:        req.ID,
		Status:    string(req.Status),
		Outcome:   req.Outcome,
		Summary:   domain.SummarizeProviders(providers),
		Providers: make([]ProviderStatusView, 0, len(providers)),
		UpdatedAt: req.UpdatedAt,
	}
	for _, p := range providers {
		out.Providers = append(out.Providers, ProviderStatusView{
			ID:         p.ID,
			Name:       p.Name,
			CallID:     p.CallID,
			CallStatus: p.CallStatus,
			Rank:       p.Rank,
		})
	}
	return out
}
