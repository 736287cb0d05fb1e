package voice

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
	"hireline_backend/platform/logger"
)

// Client talks to the voice provider's REST API.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	log          *logger.Logger
	pollInterval time.Duration
	pollAttempts int
}

// NewClient builds the HTTP backend. Returns nil when no API URL is
// configured; callers treat a nil backend as "direct path unavailable".
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.GetVoiceAPIURL() == "" {
		return nil
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.GetVoiceAPIURL(), "/"),
		apiKey:       cfg.GetVoiceAPIKey(),
		http:         &http.Client{Timeout: 15 * time.Second},
		log:          log,
		pollInterval: cfg.GetCallPollInterval(),
		pollAttempts: cfg.GetCallPollAttempts(),
	}
}

func (c *Client) Method() domain.ExecutionMethod {
	return domain.ExecutionDirect
}

// Call places the call and polls until the provider reports a terminal
// status. When the poll window runs out the call is marked timed out rather
// than left dangling; the enrichment path can still pick up late artifacts.
func (c *Client) Call(ctx context.Context, req domain.CallRequest) (domain.CallResult, error) {
	callID, err := c.PlaceCall(ctx, req)
	if err != nil {
		return domain.CallResult{}, err
	}

	log := c.log.WithCallID(callID)
	log.Info("call placed", "phone", req.Phone, "provider", req.ProviderName)

	var (
		last    domain.CallResult
		haveAny bool
		lastErr error
	)
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			if haveAny {
				return last, ctx.Err()
			}
			return domain.CallResult{CallID: callID, Status: domain.CallStatusQueued, ExecutionMethod: domain.ExecutionDirect}, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		res, err := c.GetCall(ctx, callID)
		if err != nil {
			// Transient poll failures are expected; keep the window open.
			lastErr = err
			log.Warn("call status poll failed", "attempt", attempt+1, "error", err)
			continue
		}
		last, haveAny = res, true
		if domain.IsTerminalStatus(res.Status) {
			return res, nil
		}
	}

	if !haveAny {
		return domain.CallResult{}, fmt.Errorf("call %s never reported a status: %w", callID, lastErr)
	}
	last.Status = domain.CallStatusTimeout
	if last.EndedReason == "" {
		last.EndedReason = "status poll window exhausted"
	}
	log.Warn("call did not reach a terminal status within the poll window")
	return last, nil
}

// PlaceCall creates the call resource and returns the provider call ID.
func (c *Client) PlaceCall(ctx context.Context, req domain.CallRequest) (string, error) {
	body, err := json.Marshal(newPlaceCallRequest(req))
	if err != nil {
		return "", fmt.Errorf("marshal call payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/calls", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("voice provider request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("voice provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var envelope callEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("decode call response: %w", err)
	}
	if envelope.ID == "" {
		return "", fmt.Errorf("voice provider did not return a call id")
	}
	return envelope.ID, nil
}

// GetCall fetches the full call record, including transcript and analysis
// once the provider has produced them.
func (c *Client) GetCall(ctx context.Context, callID string) (domain.CallResult, error) {
	url := fmt.Sprintf("%s/v1/calls/%s", c.baseURL, callID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.CallResult{}, err
	}
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.CallResult{}, fmt.Errorf("voice provider request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return domain.CallResult{}, fmt.Errorf("voice provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var envelope callEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return domain.CallResult{}, fmt.Errorf("decode call record: %w", err)
	}
	return envelope.toResult(), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
