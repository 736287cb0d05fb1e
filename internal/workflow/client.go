// Package workflow integrates the external workflow engine that executes
// call batches and hosts the provider-ranking flow. The engine is the
// preferred execution path; the voice backend is the fallback.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hireline_backend/internal/calls/domain"
	"hireline_backend/platform/config"
	"hireline_backend/platform/logger"
)

// Config is the configuration surface the engine client needs.
type Config interface {
	config.EngineConfig
	config.LifecycleConfig
}

// healthProbeTimeout bounds the pre-dispatch health check so an unreachable
// engine fails over quickly instead of stalling a batch.
const healthProbeTimeout = 2 * time.Second

// Client talks to the workflow engine's REST API.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	log          *logger.Logger
	pollInterval time.Duration
	pollAttempts int
}

// NewClient builds the engine client. Returns nil when no engine URL is
// configured; callers treat a nil client as "engine unavailable".
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.GetEngineURL() == "" {
		return nil
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.GetEngineURL(), "/"),
		apiKey:       cfg.GetEngineAPIKey(),
		http:         &http.Client{Timeout: 30 * time.Second},
		log:          log,
		pollInterval: cfg.GetCallPollInterval(),
		pollAttempts: cfg.GetCallPollAttempts(),
	}
}

// Healthy probes the engine's health endpoint with a short timeout. Any
// transport error, non-2xx response, or probe timeout counts as unhealthy.
func (c *Client) Healthy(ctx context.Context) bool {
	if c == nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("engine health probe failed", "error", err)
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("engine health probe returned non-OK", "status", resp.StatusCode)
		return false
	}
	return true
}

// batchEnvelope is the engine's batch resource.
type batchEnvelope struct {
	ID     string              `json:"id"`
	Status string              `json:"status"`
	Calls  []batchCallEnvelope `json:"calls"`
}

type batchCallEnvelope struct {
	ID                string         `json:"id"`
	ProviderName      string         `json:"providerName"`
	PhoneNumber       string         `json:"phoneNumber"`
	Status            string         `json:"status"`
	DurationSeconds   int            `json:"durationSeconds"`
	EndedReason       string         `json:"endedReason"`
	Transcript        string         `json:"transcript"`
	Summary           string         `json:"summary"`
	StructuredData    map[string]any `json:"structuredData"`
	SuccessEvaluation string         `json:"successEvaluation"`
	Cost              float64        `json:"cost"`
}

func (e *batchCallEnvelope) toResult() domain.CallResult {
	res := domain.CallResult{
		CallID:          e.ID,
		ProviderName:    e.ProviderName,
		Phone:           e.PhoneNumber,
		Status:          domain.NormalizeStatus(e.Status),
		ExecutionMethod: domain.ExecutionEngine,
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

type batchCallItem struct {
	PhoneNumber    string            `json:"phoneNumber"`
	ProviderName   string            `json:"providerName"`
	ServiceType    string            `json:"serviceType"`
	Description    string            `json:"description"`
	Urgency        string            `json:"urgency"`
	Location       string            `json:"location,omitempty"`
	PromptOverride string            `json:"promptOverride,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type createBatchRequest struct {
	Calls []batchCallItem `json:"calls"`
}

// ExecuteBatch submits all requests as one engine batch and blocks until
// every call reaches a terminal status or the poll window is exhausted.
// Calls still live when the window closes are reported as timed out.
func (c *Client) ExecuteBatch(ctx context.Context, reqs []domain.CallRequest) (domain.BatchResult, error) {
	batch := domain.BatchResult{ExecutionMethod: domain.ExecutionEngine}
	if len(reqs) == 0 {
		return batch, nil
	}

	batchID, err := c.createBatch(ctx, reqs)
	if err != nil {
		return batch, err
	}
	c.log.Info("engine batch submitted", "batch_id", batchID, "calls", len(reqs))

	var (
		envelope batchEnvelope
		haveAny  bool
		lastErr  error
	)
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		env, err := c.batchStatus(ctx, batchID)
		if err != nil {
			lastErr = err
			c.log.Warn("engine batch poll failed", "batch_id", batchID, "attempt", attempt+1, "error", err)
			continue
		}
		envelope, haveAny = env, true
		if batchDone(env) {
			break
		}
	}

	if !haveAny {
		return batch, fmt.Errorf("engine batch %s never reported a status: %w", batchID, lastErr)
	}

	for i := range envelope.Calls {
		res := envelope.Calls[i].toResult()
		if !domain.IsTerminalStatus(res.Status) {
			res.Status = domain.CallStatusTimeout
			if res.EndedReason == "" {
				res.EndedReason = "batch poll window exhausted"
			}
		}
		batch.Results = append(batch.Results, res)
	}
	return batch, nil
}

func batchDone(env batchEnvelope) bool {
	switch strings.ToLower(env.Status) {
	case "completed", "failed", "partial":
		return true
	}
	for i := range env.Calls {
		if !domain.IsTerminalStatus(domain.NormalizeStatus(env.Calls[i].Status)) {
			return false
		}
	}
	return len(env.Calls) > 0
}

func (c *Client) createBatch(ctx context.Context, reqs []domain.CallRequest) (string, error) {
	payload := createBatchRequest{Calls: make([]batchCallItem, 0, len(reqs))}
	for _, r := range reqs {
		item := batchCallItem{
			PhoneNumber:    r.Phone,
			ProviderName:   r.ProviderName,
			ServiceType:    r.ServiceType,
			Description:    r.Description,
			Urgency:        string(r.Urgency),
			Location:       r.Location,
			PromptOverride: r.PromptOverride,
		}
		meta := make(map[string]string)
		if r.RequestID != nil {
			meta["requestId"] = r.RequestID.String()
		}
		if r.ProviderID != nil {
			meta["providerId"] = r.ProviderID.String()
		}
		if len(meta) > 0 {
			item.Metadata = meta
		}
		payload.Calls = append(payload.Calls, item)
	}

	var envelope batchEnvelope
	if err := c.post(ctx, "/v1/batches", payload, &envelope); err != nil {
		return "", err
	}
	if envelope.ID == "" {
		return "", fmt.Errorf("engine did not return a batch id")
	}
	return envelope.ID, nil
}

func (c *Client) batchStatus(ctx context.Context, batchID string) (batchEnvelope, error) {
	var envelope batchEnvelope
	if err := c.get(ctx, "/v1/batches/"+batchID, &envelope); err != nil {
		return batchEnvelope{}, err
	}
	return envelope, nil
}

// RankedProvider is one entry of the engine ranking flow's output.
type RankedProvider struct {
	ProviderName    string  `json:"providerName"`
	CallID          string  `json:"callId,omitempty"`
	Rank            int     `json:"rank"`
	Score           float64 `json:"score"`
	Reason          string  `json:"reason"`
	PriceIndication string  `json:"priceIndication,omitempty"`
	Availability    string  `json:"availability,omitempty"`
}

type rankResultItem struct {
	CallID         string         `json:"callId"`
	ProviderName   string         `json:"providerName"`
	Status         string         `json:"status"`
	Summary        string         `json:"summary,omitempty"`
	Transcript     string         `json:"transcript,omitempty"`
	StructuredData map[string]any `json:"structuredData,omitempty"`
}

type rankFlowRequest struct {
	ServiceType string           `json:"serviceType"`
	Description string           `json:"description"`
	Urgency     string           `json:"urgency"`
	Location    string           `json:"location,omitempty"`
	Results     []rankResultItem `json:"results"`
}

type rankFlowResponse struct {
	Recommendations []RankedProvider `json:"recommendations"`
}

// RankProviders runs the engine's ranking flow over completed call results.
func (c *Client) RankProviders(ctx context.Context, serviceType, description, urgency, location string, results []domain.CallResult) ([]RankedProvider, error) {
	if c == nil {
		return nil, fmt.Errorf("engine not configured")
	}

	payload := rankFlowRequest{
		ServiceType: serviceType,
		Description: description,
		Urgency:     urgency,
		Location:    location,
		Results:     make([]rankResultItem, 0, len(results)),
	}
	for i := range results {
		r := &results[i]
		item := rankResultItem{
			CallID:       r.CallID,
			ProviderName: r.ProviderName,
			Status:       string(r.Status),
			Transcript:   r.Transcript,
		}
		if r.Analysis != nil {
			item.Summary = r.Analysis.Summary
			item.StructuredData = r.Analysis.StructuredData
		}
		payload.Results = append(payload.Results, item)
	}

	var resp rankFlowResponse
	if err := c.post(ctx, "/v1/flows/rank", payload, &resp); err != nil {
		return nil, err
	}
	return resp.Recommendations, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal engine payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("engine request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode engine response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}
