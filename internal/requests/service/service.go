// Package service implements intake and read operations for service
// requests. Lifecycle advancement itself lives in the orchestrator; the
// service validates, persists and hands over.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	callsdomain "hireline_backend/internal/calls/domain"
	appevents "hireline_backend/internal/events"
	"hireline_backend/internal/requests/domain"
	"hireline_backend/internal/requests/repository"
	"hireline_backend/platform/apperr"
	"hireline_backend/platform/config"
	"hireline_backend/platform/events"
	"hireline_backend/platform/logger"
	"hireline_backend/platform/phone"
	"hireline_backend/platform/tasks"
)

// Runner starts lifecycle work for a request. Implemented by the
// orchestrator.
type Runner interface {
	StartSearch(ctx context.Context, req domain.ServiceRequest, candidates []repository.CreateProviderParams) (*tasks.Task, bool)
	StartBooking(ctx context.Context, req domain.ServiceRequest, provider domain.Provider) (*tasks.Task, error)
}

// Service provides the request intake and query surface.
type Service struct {
	repo   repository.RequestsRepository
	runner Runner
	cfg    config.PhoneConfig
	bus    events.Bus
	log    *logger.Logger
}

// New creates the requests service.
func New(repo repository.RequestsRepository, runner Runner, cfg config.PhoneConfig, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, runner: runner, cfg: cfg, bus: bus, log: log}
}

// CandidateParams is one explicit provider candidate supplied at intake.
type CandidateParams struct {
	Name        string
	Phone       string
	ExternalRef string
}

// CreateParams holds the intake fields for a new request.
type CreateParams struct {
	ServiceType string
	Description string
	Urgency     string
	Location    string
	NotifyEmail string
	Candidates  []CandidateParams
}

// Create persists a new request and launches its lifecycle run. Explicit
// candidates are phone-validated here so a typo fails the API call instead
// of dying later in dispatch.
func (s *Service) Create(ctx context.Context, params CreateParams) (domain.ServiceRequest, error) {
	candidates, err := s.normalizeCandidates(params.Candidates)
	if err != nil {
		return domain.ServiceRequest{}, err
	}

	req, err := s.repo.Create(ctx, repository.CreateRequestParams{
		ServiceType: strings.TrimSpace(params.ServiceType),
		Description: strings.TrimSpace(params.Description),
		Urgency:     string(callsdomain.NormalizeUrgency(params.Urgency)),
		Location:    strings.TrimSpace(params.Location),
		NotifyEmail: strings.TrimSpace(params.NotifyEmail),
	})
	if err != nil {
		return domain.ServiceRequest{}, err
	}

	s.log.WithServiceRequest(req.ID.String()).Info("service request created",
		"serviceType", req.ServiceType,
		"urgency", req.Urgency,
		"candidates", len(candidates),
	)

	s.bus.Publish(ctx, appevents.RequestCreated{
		BaseEvent:   events.NewBaseEvent(),
		RequestID:   req.ID,
		ServiceType: req.ServiceType,
		Location:    req.Location,
		Urgency:     req.Urgency,
		NotifyEmail: req.NotifyEmail,
	})

	s.runner.StartSearch(ctx, req, candidates)
	return req, nil
}

// Get returns one request with its interaction log.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.ServiceRequest, []domain.InteractionLogEntry, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.ServiceRequest{}, nil, err
	}

	log, err := s.repo.ListLog(ctx, id)
	if err != nil {
		// The log is supporting detail; the request itself is the answer.
		s.log.Error("failed to load interaction log", "requestId", id, "error", err)
		log = nil
	}
	return req, log, nil
}

// Status returns the request and its per-provider call progress.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (domain.ServiceRequest, []domain.Provider, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.ServiceRequest{}, nil, err
	}

	providers, err := s.repo.ListProviders(ctx, id)
	if err != nil {
		return domain.ServiceRequest{}, nil, err
	}
	return req, providers, nil
}

// SelectionParams identifies the chosen provider, by id or by the 1-based
// rank shown in the recommendations.
type SelectionParams struct {
	ProviderID *uuid.UUID
	Option     int
}

// Select accepts the user's provider choice and starts the booking leg. The
// request must be awaiting selection; anything else is a conflict.
func (s *Service) Select(ctx context.Context, requestID uuid.UUID, sel SelectionParams) (domain.ServiceRequest, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return domain.ServiceRequest{}, err
	}
	if req.Status != domain.StateRecommended {
		return domain.ServiceRequest{}, apperr.Conflict(
			fmt.Sprintf("request is %s, selection requires %s", req.Status, domain.StateRecommended))
	}

	providerID, err := resolveSelection(req, sel)
	if err != nil {
		return domain.ServiceRequest{}, err
	}

	provider, err := s.repo.GetProvider(ctx, requestID, providerID)
	if err != nil {
		return domain.ServiceRequest{}, err
	}

	if _, err := s.runner.StartBooking(ctx, req, provider); err != nil {
		return domain.ServiceRequest{}, err
	}

	s.log.WithServiceRequest(requestID.String()).Info("provider selected",
		"providerId", provider.ID,
		"provider", provider.Name,
	)

	updated, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		// Booking started; report the state we know it entered.
		req.Status = domain.StateBooking
		return req, nil
	}
	return updated, nil
}

// resolveSelection turns the selection payload into a provider id. An
// ordinal refers to the rank persisted with the recommendations.
func resolveSelection(req domain.ServiceRequest, sel SelectionParams) (uuid.UUID, error) {
	if sel.ProviderID != nil {
		return *sel.ProviderID, nil
	}
	if sel.Option <= 0 {
		return uuid.Nil, apperr.Validation("selection requires a provider id or an option number")
	}
	for _, rec := range req.Recommendations {
		if rec.Rank != sel.Option {
			continue
		}
		if rec.ProviderID == nil {
			return uuid.Nil, apperr.Validation(fmt.Sprintf("option %d has no provider on file", sel.Option))
		}
		return *rec.ProviderID, nil
	}
	return uuid.Nil, apperr.Validation(fmt.Sprintf("option %d is not one of the recommendations", sel.Option))
}

// normalizeCandidates validates and normalizes explicit candidates to E.164.
func (s *Service) normalizeCandidates(input []CandidateParams) ([]repository.CreateProviderParams, error) {
	if len(input) == 0 {
		return nil, nil
	}

	region := s.cfg.GetPhoneDefaultRegion()
	out := make([]repository.CreateProviderParams, 0, len(input))
	for _, c := range input {
		name := strings.TrimSpace(c.Name)
		normalized, err := phone.ParseE164(c.Phone, region)
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("candidate %q has an invalid phone number", name))
		}
		out = append(out, repository.CreateProviderParams{
			Name:        name,
			Phone:       normalized,
			ExternalRef: strings.TrimSpace(c.ExternalRef),
		})
	}
	return out, nil
}
