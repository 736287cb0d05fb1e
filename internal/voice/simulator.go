package voice

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hireline_backend/internal/calls/domain"
	"hireline_backend/platform/logger"
)

// Simulator is a local stand-in for the voice provider used in development.
// Outcomes are derived from the last digit of the dialed number so every
// downstream branch can be exercised without real calls:
//
//	...7  -> no_answer
//	...8  -> busy
//	...9  -> provider declines the job
//	else  -> provider agrees and confirms a slot
type Simulator struct {
	mu      sync.Mutex
	records map[string]domain.CallResult
	log     *logger.Logger
	latency time.Duration
}

func NewSimulator(log *logger.Logger) *Simulator {
	return &Simulator{
		records: make(map[string]domain.CallResult),
		log:     log,
		latency: 150 * time.Millisecond,
	}
}

func (s *Simulator) Method() domain.ExecutionMethod {
	return domain.ExecutionSimulated
}

func (s *Simulator) Call(ctx context.Context, req domain.CallRequest) (domain.CallResult, error) {
	select {
	case <-ctx.Done():
		return domain.CallResult{}, ctx.Err()
	case <-time.After(s.latency):
	}

	callID := "sim_" + uuid.NewString()
	res := s.synthesize(callID, req)

	s.mu.Lock()
	s.records[callID] = res
	s.mu.Unlock()

	s.log.WithCallID(callID).Info("simulated call finished", "phone", req.Phone, "status", res.Status)
	return res, nil
}

func (s *Simulator) GetCall(_ context.Context, callID string) (domain.CallResult, error) {
	s.mu.Lock()
	res, ok := s.records[callID]
	s.mu.Unlock()
	if !ok {
		return domain.CallResult{}, fmt.Errorf("simulated call %s not found", callID)
	}
	return res, nil
}

func (s *Simulator) synthesize(callID string, req domain.CallRequest) domain.CallResult {
	res := domain.CallResult{
		CallID:          callID,
		ProviderName:    req.ProviderName,
		Phone:           req.Phone,
		ProviderID:      req.ProviderID,
		RequestID:       req.RequestID,
		ExecutionMethod: domain.ExecutionSimulated,
		ReceivedAt:      time.Now(),
	}

	switch lastDigit(req.Phone) {
	case '7':
		res.Status = domain.CallStatusNoAnswer
		res.EndedReason = "no answer after 30 seconds"
		return res
	case '8':
		res.Status = domain.CallStatusBusy
		res.EndedReason = "line busy"
		return res
	case '9':
		res.Status = domain.CallStatusCompleted
		res.DurationSeconds = 35
		res.EndedReason = "provider hung up"
		res.Transcript = fmt.Sprintf(
			"AI: Hello, I'm calling on behalf of a customer who needs %s in %s.\n%s: Sorry, we're fully booked for the next month. Can't take new jobs.\nAI: Understood, thank you for your time.",
			req.ServiceType, orUnknown(req.Location), req.ProviderName)
		res.Analysis = &domain.Analysis{
			Summary:           "Provider is fully booked and declined the job.",
			StructuredData:    map[string]any{"available": false},
			SuccessEvaluation: "false",
		}
		return res
	}

	res.Status = domain.CallStatusCompleted
	res.DurationSeconds = 95
	res.EndedReason = "assistant ended the call"
	res.Transcript = fmt.Sprintf(
		"AI: Hello, I'm calling on behalf of a customer who needs %s in %s. The situation: %s. Are you available?\n%s: Yes, we can do that. We could come tomorrow morning, around 9 AM.\nAI: That works. Can you give me a price indication?\n%s: For something like this, roughly 150 euros including call-out.\nAI: Great, I'll confirm that slot. Thank you!",
		req.ServiceType, orUnknown(req.Location), req.Description, req.ProviderName, req.ProviderName)
	res.Analysis = &domain.Analysis{
		Summary: "Provider is available tomorrow at 9 AM, estimated 150 euros including call-out.",
		StructuredData: map[string]any{
			"available":         true,
			"price_indication":  "150 euros",
			"proposed_day":      "tomorrow",
			"proposed_time":     "9:00",
			"booking_confirmed": true,
		},
		SuccessEvaluation: "true",
	}
	return res
}

func lastDigit(phone string) byte {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return 0
	}
	return trimmed[len(trimmed)-1]
}

func orUnknown(location string) string {
	if strings.TrimSpace(location) == "" {
		return "the customer's area"
	}
	return location
}
