package places

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hireline_backend/platform/logger"
)

type placesConfig struct {
	url   string
	key   string
	limit int
}

func (c placesConfig) GetPlacesAPIURL() string    { return c.url }
func (c placesConfig) GetPlacesAPIKey() string    { return c.key }
func (c placesConfig) GetProviderSearchLimit() int { return c.limit }
func (c placesConfig) IsPlacesEnabled() bool      { return c.url != "" }

func TestNewDisabledWithoutURL(t *testing.T) {
	if c := New(placesConfig{}, logger.New("development")); c != nil {
		t.Fatal("expected nil client when no API URL is configured")
	}
}

func TestSearchFiltersAndLimits(t *testing.T) {
	var gotAuth, gotCategory, gotNear string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCategory = r.URL.Query().Get("category")
		gotNear = r.URL.Query().Get("near")

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"id": "pl_1", "name": "Austin Plumbing Co", "phone": "+15125550101"},
				{"id": "pl_2", "name": "No Phone Listed LLC", "phone": ""},
				{"id": "pl_3", "name": "Hill Country Pipes", "phone": "+15125550103"},
				{"id": "pl_4", "name": "Overflow Plumbers", "phone": "+15125550104"},
			},
		})
	}))
	defer srv.Close()

	client := New(placesConfig{url: srv.URL, key: "secret", limit: 2}, logger.New("development"))
	if client == nil {
		t.Fatal("expected configured client")
	}

	candidates, err := client.Search(context.Background(), "plumber", "Austin")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want bearer key", gotAuth)
	}
	if gotCategory != "plumber" || gotNear != "Austin" {
		t.Errorf("query = (%q, %q), want (plumber, Austin)", gotCategory, gotNear)
	}

	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2 (phone-less dropped, limit applied)", len(candidates))
	}
	if candidates[0].Name != "Austin Plumbing Co" || candidates[0].ExternalRef != "pl_1" {
		t.Errorf("unexpected first candidate: %+v", candidates[0])
	}
	if candidates[1].Name != "Hill Country Pipes" {
		t.Errorf("phone-less result should be skipped, got %+v", candidates[1])
	}
}

func TestSearchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(placesConfig{url: srv.URL, key: "secret", limit: 3}, logger.New("development"))
	if _, err := client.Search(context.Background(), "plumber", "Austin"); err == nil {
		t.Fatal("expected error on upstream failure")
	}
}
