// Package places looks up candidate service providers near a location
// through an external discovery API. The client is optional: when no
// PLACES_API_URL is configured the lifecycle relies on candidates supplied
// with the request itself.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"hireline_backend/platform/config"
	"hireline_backend/platform/logger"
)

// Candidate is a provider returned by the discovery API. Phone is the raw
// number as reported upstream; normalization happens at intake.
type Candidate struct {
	Name        string
	Phone       string
	ExternalRef string
}

// Client talks to the provider discovery API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limit      int
	log        *logger.Logger
}

// New builds the discovery client, or returns nil when no API is configured.
// Callers treat a nil client as "discovery disabled".
func New(cfg config.PlacesConfig, log *logger.Logger) *Client {
	if !cfg.IsPlacesEnabled() {
		return nil
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(cfg.GetPlacesAPIURL(), "/"),
		apiKey:     cfg.GetPlacesAPIKey(),
		limit:      cfg.GetProviderSearchLimit(),
		log:        log,
	}
}

type searchResponse struct {
	Results []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"results"`
}

// Search returns up to the configured number of candidates offering the
// given service near the given location. Results without a phone number are
// useless to the dispatcher and are dropped.
func (c *Client) Search(ctx context.Context, serviceType, location string) ([]Candidate, error) {
	params := url.Values{}
	params.Set("category", serviceType)
	params.Set("near", location)
	params.Set("limit", strconv.Itoa(c.limit))

	reqURL := fmt.Sprintf("%s/v1/places/search?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("places request failed", "error", err)
		return nil, fmt.Errorf("places request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Error("places upstream error", "status", resp.StatusCode)
		return nil, fmt.Errorf("places upstream: status %d", resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode places payload: %w", err)
	}

	candidates := make([]Candidate, 0, len(payload.Results))
	for _, r := range payload.Results {
		if strings.TrimSpace(r.Phone) == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			Name:        r.Name,
			Phone:       r.Phone,
			ExternalRef: r.ID,
		})
		if len(candidates) == c.limit {
			break
		}
	}

	return candidates, nil
}
