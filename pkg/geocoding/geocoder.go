// Package geocoding resolves addresses to coordinates for list items that
// arrive without them. Matching itself never calls the geocoder; missing
// coordinates are a valid input state handled by weight renormalization.
package geocoding

import (
	"context"
)

// Result is a resolved coordinate pair with the provider's precision
// classification
type Result struct {
	Lat          float64
	Lng          float64
	LocationType string // ROOFTOP, RANGE_INTERPOLATED, GEOMETRIC_CENTER, APPROXIMATE
}

// Geocoder resolves a free-text address within a country to coordinates.
// Implementations return an error on provider failure or zero results;
// callers decide whether to proceed without coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address, countryCode string) (*Result, error)
}
