package adapters

import (
	"context"

	"hireline_backend/internal/places"
	"hireline_backend/internal/requests"
	requestsrepo "hireline_backend/internal/requests/repository"
)

// PlacesProviderFinder adapts the places client as the lifecycle's provider
// discovery source.
type PlacesProviderFinder struct {
	client *places.Client
}

// NewPlacesProviderFinder creates a new places provider finder adapter.
func NewPlacesProviderFinder(client *places.Client) *PlacesProviderFinder {
	return &PlacesProviderFinder{client: client}
}

// Search looks up businesses matching the service type near the location.
func (a *PlacesProviderFinder) Search(ctx context.Context, serviceType, location string) ([]requestsrepo.CreateProviderParams, error) {
	found, err := a.client.Search(ctx, serviceType, location)
	if err != nil {
		return nil, err
	}

	out := make([]requestsrepo.CreateProviderParams, 0, len(found))
	for _, c := range found {
		out = append(out, requestsrepo.CreateProviderParams{
			Name:        c.Name,
			Phone:       c.Phone,
			ExternalRef: c.ExternalRef,
		})
	}
	return out, nil
}

// Compile-time check.
var _ requests.ProviderFinder = (*PlacesProviderFinder)(nil)
