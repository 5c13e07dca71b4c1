package maps

import (
	"context"
	"fmt"
	"log"

	"googlemaps.github.io/maps"

	"pulse/internal/types"
)

// GeocodeService handles reverse geocoding through the Google Maps API.
type GeocodeService struct {
	client *maps.Client
}

// NewGeocodeService creates a new GeocodeService with the given API Key.
func NewGeocodeService(apiKey string) (*GeocodeService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GeocodeService{client: client}, nil
}

// Describe returns a human-readable address for the given point, or an
// empty string when geocoding is unavailable or fails. A location label
// is decorative; errors never block the caller.
func (s *GeocodeService) Describe(ctx context.Context, p types.Point) string {
	if s == nil || s.client == nil {
		return ""
	}
	r := &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
	}
	results, err := s.client.ReverseGeocode(ctx, r)
	if err != nil {
		log.Printf("reverse geocode failed: %v", err)
		return ""
	}
	if len(results) == 0 {
		return ""
	}
	return results[0].FormattedAddress
}
