// Package ranking turns settled call results into an ordered list of
// recommendations. Two tiers produce the ordering: the workflow engine's
// ranking flow when the engine is up, and a direct reasoning agent as the
// fallback. Entries that cannot be tied back to a real provider are dropped.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	calldomain "hireline_backend/internal/calls/domain"
	"hireline_backend/internal/ranking/agent"
	"hireline_backend/internal/requests/domain"
	"hireline_backend/internal/workflow"
	"hireline_backend/platform/logger"
)

// EngineClient is the engine-side ranking flow. Satisfied by
// *workflow.Client, whose methods tolerate a nil receiver.
type EngineClient interface {
	Healthy(ctx context.Context) bool
	RankProviders(ctx context.Context, serviceType, description, urgency, location string, results []calldomain.CallResult) ([]workflow.RankedProvider, error)
}

// Reasoner is the fallback ranking tier. Satisfied by *agent.Ranker.
type Reasoner interface {
	Rank(ctx context.Context, input agent.RankInput) ([]agent.RankedCandidate, error)
}

// ResultSource loads the reconciled call results of a request. Satisfied by
// the calls service.
type ResultSource interface {
	ResultsForRequest(ctx context.Context, requestID uuid.UUID) ([]calldomain.CallResult, error)
}

// Service implements the lifecycle's Ranker port.
type Service struct {
	engine EngineClient
	agent  Reasoner
	calls  ResultSource
	log    *logger.Logger
}

// New builds the ranking service. engine and reasoner may each be nil; at
// least one tier must produce output for Rank to succeed.
func New(engine EngineClient, reasoner Reasoner, calls ResultSource, log *logger.Logger) *Service {
	return &Service{engine: engine, agent: reasoner, calls: calls, log: log}
}

// Rank orders the given providers by the outcomes of their calls, best
// first. Only completed calls are considered. The engine tier runs first
// when the engine is healthy; any engine failure, or an engine answer that
// binds to no provider, falls through to the reasoning tier.
func (s *Service) Rank(ctx context.Context, req domain.ServiceRequest, providers []domain.Provider) ([]domain.Recommendation, error) {
	results, err := s.calls.ResultsForRequest(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("load call results: %w", err)
	}

	completed := completedResults(results)
	if len(completed) == 0 {
		return nil, fmt.Errorf("no completed calls to rank")
	}

	log := s.log.WithServiceRequest(req.ID.String())

	if recs := s.rankViaEngine(ctx, req, providers, completed, log); len(recs) > 0 {
		return recs, nil
	}

	recs, err := s.rankViaAgent(ctx, req, providers, completed)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("ranking matched no providers")
	}
	log.Info("providers ranked by reasoning agent", "recommendations", len(recs))
	return recs, nil
}

// rankViaEngine tries the engine ranking flow. It never fails the request:
// an unhealthy engine, a flow error, or an unusable answer all return nil so
// the caller can fall back.
func (s *Service) rankViaEngine(ctx context.Context, req domain.ServiceRequest, providers []domain.Provider, results []calldomain.CallResult, log *logger.Logger) []domain.Recommendation {
	if s.engine == nil || !s.engine.Healthy(ctx) {
		return nil
	}

	ranked, err := s.engine.RankProviders(ctx, req.ServiceType, req.Description, req.Urgency, req.Location, results)
	if err != nil {
		log.Warn("engine ranking flow failed, falling back to reasoning agent", "error", err)
		return nil
	}

	entries := make([]rankedEntry, 0, len(ranked))
	for _, r := range ranked {
		entries = append(entries, rankedEntry{
			ProviderName:    r.ProviderName,
			CallID:          r.CallID,
			Rank:            r.Rank,
			Score:           r.Score,
			Reason:          r.Reason,
			PriceIndication: r.PriceIndication,
			Availability:    r.Availability,
		})
	}

	recs := s.bind(entries, providers, log)
	if len(recs) == 0 {
		log.Warn("engine ranking matched no providers, falling back to reasoning agent", "entries", len(ranked))
		return nil
	}
	log.Info("providers ranked by engine flow", "recommendations", len(recs))
	return recs
}

func (s *Service) rankViaAgent(ctx context.Context, req domain.ServiceRequest, providers []domain.Provider, results []calldomain.CallResult) ([]domain.Recommendation, error) {
	if s.agent == nil {
		return nil, fmt.Errorf("no ranking tier available")
	}

	input := agent.RankInput{
		RequestID:   req.ID,
		ServiceType: req.ServiceType,
		Description: req.Description,
		Urgency:     req.Urgency,
		Location:    req.Location,
		Results:     make([]agent.CallSummary, 0, len(results)),
	}
	for i := range results {
		r := &results[i]
		summary := agent.CallSummary{
			CallID:          r.CallID,
			ProviderName:    r.ProviderName,
			Status:          string(r.Status),
			Transcript:      r.Transcript,
			PriceIndication: r.StructuredString("price_indication"),
			Availability:    availabilityHint(r),
		}
		if r.Analysis != nil {
			summary.Summary = r.Analysis.Summary
		}
		input.Results = append(input.Results, summary)
	}

	candidates, err := s.agent.Rank(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("reasoning agent: %w", err)
	}

	entries := make([]rankedEntry, 0, len(candidates))
	for _, c := range candidates {
		entries = append(entries, rankedEntry{
			ProviderName:    c.ProviderName,
			CallID:          c.CallID,
			Rank:            c.Rank,
			Score:           c.Score,
			Reason:          c.Reason,
			PriceIndication: c.PriceIndication,
			Availability:    c.Availability,
		})
	}
	return s.bind(entries, providers, s.log.WithServiceRequest(req.ID.String())), nil
}

// rankedEntry is the tier-neutral shape both tiers reduce to before binding.
type rankedEntry struct {
	ProviderName    string
	CallID          string
	Rank            int
	Score           float64
	Reason          string
	PriceIndication string
	Availability    string
}

// bind ties ranked entries back to the request's providers, by call ID first
// and case-insensitive name second. Entries matching no provider are dropped;
// ranks are reassigned densely so the surviving list stays 1-based.
func (s *Service) bind(entries []rankedEntry, providers []domain.Provider, log *logger.Logger) []domain.Recommendation {
	byCallID := make(map[string]*domain.Provider, len(providers))
	byName := make(map[string]*domain.Provider, len(providers))
	for i := range providers {
		p := &providers[i]
		if p.CallID != "" {
			byCallID[p.CallID] = p
		}
		byName[strings.ToLower(strings.TrimSpace(p.Name))] = p
	}

	recs := make([]domain.Recommendation, 0, len(entries))
	seen := make(map[uuid.UUID]bool, len(entries))
	for _, e := range entries {
		p := byCallID[e.CallID]
		if p == nil {
			p = byName[strings.ToLower(strings.TrimSpace(e.ProviderName))]
		}
		if p == nil {
			log.Warn("dropping ranked entry matching no provider", "providerName", e.ProviderName, "callId", e.CallID)
			continue
		}
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true

		providerID := p.ID
		callID := e.CallID
		if callID == "" {
			callID = p.CallID
		}
		recs = append(recs, domain.Recommendation{
			Rank:            e.Rank,
			ProviderID:      &providerID,
			ProviderName:    p.Name,
			CallID:          callID,
			Score:           e.Score,
			Reason:          e.Reason,
			PriceIndication: e.PriceIndication,
			Availability:    e.Availability,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		ri, rj := recs[i].Rank, recs[j].Rank
		if ri <= 0 {
			return false
		}
		if rj <= 0 {
			return true
		}
		return ri < rj
	})
	for i := range recs {
		recs[i].Rank = i + 1
	}
	return recs
}

func completedResults(results []calldomain.CallResult) []calldomain.CallResult {
	completed := make([]calldomain.CallResult, 0, len(results))
	for _, r := range results {
		if r.Status == calldomain.CallStatusCompleted {
			completed = append(completed, r)
		}
	}
	return completed
}

// availabilityHint condenses the structured availability fields into one
// line for the reasoning prompt.
func availabilityHint(r *calldomain.CallResult) string {
	day := r.StructuredString("proposed_day")
	at := r.StructuredString("proposed_time")
	switch {
	case day != "" && at != "":
		return day + " at " + at
	case day != "":
		return day
	case at != "":
		return at
	}
	if r.Analysis != nil {
		if avail, ok := r.Analysis.StructuredData["available"].(bool); ok {
			if avail {
				return "available"
			}
			return "not available"
		}
	}
	return ""
}
