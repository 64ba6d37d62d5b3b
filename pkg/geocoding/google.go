package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/juniper/pkg/tracing"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleGeocoder resolves addresses via the Google Maps Geocoding API
type GoogleGeocoder struct {
	apiKey     string
	httpClient *http.Client
	logger     ectologger.Logger
}

// NewGoogleGeocoder creates a new Google Maps geocoder
func NewGoogleGeocoder(apiKey string, logger ectologger.Logger) *GoogleGeocoder {
	return &GoogleGeocoder{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type googleResponse struct {
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status string `json:"status"` // OK, ZERO_RESULTS, etc.
}

// Geocode implements Geocoder
func (g *GoogleGeocoder) Geocode(ctx context.Context, address, countryCode string) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "geocoding.GoogleGeocoder.Geocode")
	defer span.End()

	params := url.Values{}
	params.Set("address", address)
	params.Set("key", g.apiKey)
	if countryCode != "" {
		params.Set("components", "country:"+strings.ToUpper(countryCode))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocoding request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding provider returned status %d", resp.StatusCode)
	}

	var gr googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to decode geocoding response: %w", err)
	}

	if gr.Status != "OK" {
		return nil, fmt.Errorf("geocoding provider status: %s", gr.Status)
	}
	if len(gr.Results) == 0 {
		return nil, fmt.Errorf("no geocoding results for address")
	}

	top := gr.Results[0]

	g.logger.WithContext(ctx).WithFields(map[string]any{
		"location_type": top.Geometry.LocationType,
		"country_code":  countryCode,
	}).Debug("Geocoded address")

	return &Result{
		Lat:          top.Geometry.Location.Lat,
		Lng:          top.Geometry.Location.Lng,
		LocationType: top.Geometry.LocationType,
	}, nil
}
