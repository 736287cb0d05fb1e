// Package agent hosts the reasoning fallback of the ranking oracle: an ADK
// agent that reads call outcomes and orders the providers when the engine's
// ranking flow is unavailable.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"hireline_backend/platform/ai/moonshot"
)

// CallSummary is one provider call reduced to what the model needs to judge
// it.
type CallSummary struct {
	CallID          string
	ProviderName    string
	Status          string
	Summary         string
	Transcript      string
	PriceIndication string
	Availability    string
}

// RankInput carries the request context plus the call outcomes to rank.
type RankInput struct {
	RequestID   uuid.UUID
	ServiceType string
	Description string
	Urgency     string
	Location    string
	Results     []CallSummary
}

// RankedCandidate is one line of the model's verdict.
type RankedCandidate struct {
	ProviderName    string  `json:"providerName"`
	CallID          string  `json:"callId,omitempty"`
	Rank            int     `json:"rank"`
	Score           float64 `json:"score"`
	Reason          string  `json:"reason"`
	PriceIndication string  `json:"priceIndication,omitempty"`
	Availability    string  `json:"availability,omitempty"`
}

// Ranker wraps the reasoning model behind a single Rank call.
type Ranker struct {
	agent          agent.Agent
	runner         *runner.Runner
	sessionService session.Service
	appName        string
	runMu          sync.Mutex
}

// NewRanker creates the ranking agent without tools; the verdict comes back
// as the final response text.
func NewRanker(apiKey string) (*Ranker, error) {
	kimi := moonshot.NewModel(moonshot.Config{
		APIKey:          apiKey,
		Model:           "kimi-k2.5",
		DisableThinking: true,
	})

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "ProviderRanker",
		Model:       kimi,
		Description: "Ranks service providers by their call outcomes.",
		Instruction: getRankerSystemPrompt(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ranking agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        "provider-ranker",
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ranking runner: %w", err)
	}

	return &Ranker{
		agent:          adkAgent,
		runner:         r,
		sessionService: sessionService,
		appName:        "provider-ranker",
	}, nil
}

// Rank asks the model to order the call outcomes and parses its JSON verdict.
func (r *Ranker) Rank(ctx context.Context, input RankInput) ([]RankedCandidate, error) {
	if len(input.Results) == 0 {
		return nil, fmt.Errorf("nothing to rank")
	}

	r.runMu.Lock()
	defer r.runMu.Unlock()

	promptText := buildRankPrompt(input)
	sessionID := uuid.New().String()
	userID := "ranker-" + input.RequestID.String()

	_, err := r.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   r.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("ranking: create session: %w", err)
	}
	defer func() {
		_ = r.sessionService.Delete(ctx, &session.DeleteRequest{
			AppName:   r.appName,
			UserID:    userID,
			SessionID: sessionID,
		})
	}()

	userMessage := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: promptText}},
	}

	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeNone}

	var outputText strings.Builder
	for event, err := range r.runner.Run(ctx, userID, sessionID, userMessage, runConfig) {
		if err != nil {
			return nil, fmt.Errorf("ranking: run failed: %w", err)
		}
		if event.Content == nil {
			continue
		}
		for _, part := range event.Content.Parts {
			outputText.WriteString(part.Text)
		}
	}

	return ParseVerdict(outputText.String())
}
