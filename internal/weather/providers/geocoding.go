package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/i474232898/city-weather/internal/weather"
)

const (
	// DefaultGeocodingURL is the Open-Meteo geocoding API host.
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com"
	// DefaultGeocodingLanguage is the locale results are named in.
	DefaultGeocodingLanguage = "ru"

	geocodingPath = "/v1/search"
)

// GeocodingClient implements weather.Resolver against the Open-Meteo
// geocoding API. Each call is a single attempt.
type GeocodingClient struct {
	client   *http.Client
	baseURL  string
	language string
	upstream Observer
}

var _ weather.Resolver = (*GeocodingClient)(nil)

// NewGeocodingClient creates a geocoding client. Empty baseURL and language
// fall back to the package defaults.
func NewGeocodingClient(client *http.Client, baseURL, language string, upstream Observer) *GeocodingClient {
	if baseURL == "" {
		baseURL = DefaultGeocodingURL
	}
	if language == "" {
		language = DefaultGeocodingLanguage
	}
	return &GeocodingClient{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/") + geocodingPath,
		language: language,
		upstream: upstream,
	}
}

type geocodeResult struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

type geocodeResponse struct {
	Results []geocodeResult `json:"results"`
}

// Resolve asks for exactly one match and returns it. An absent or empty
// results list is a miss, not an error.
func (g *GeocodingClient) Resolve(ctx context.Context, name string) (weather.LocationInfo, bool, error) {
	if g.client == nil {
		return weather.LocationInfo{}, false, errNoHTTPClient
	}

	values := url.Values{}
	values.Set("name", name)
	values.Set("count", "1")
	values.Set("language", g.language)
	values.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return weather.LocationInfo{}, false, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		observe(g.upstream, "geocoding", "failed")
		return weather.LocationInfo{}, false, fmt.Errorf("geocoding: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observe(g.upstream, "geocoding", "failed")
		return weather.LocationInfo{}, false, fmt.Errorf("geocoding: %w: %d", errUnexpected, resp.StatusCode)
	}

	var payload geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		observe(g.upstream, "geocoding", "failed")
		return weather.LocationInfo{}, false, fmt.Errorf("geocoding: decode response: %w", err)
	}
	observe(g.upstream, "geocoding", "ok")

	if len(payload.Results) == 0 {
		return weather.LocationInfo{}, false, nil
	}

	r := payload.Results[0]
	tz := r.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return weather.LocationInfo{}, false, fmt.Errorf("geocoding: timezone %q: %w", tz, err)
	}

	return weather.LocationInfo{
		Name:      r.Name,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Timezone:  tz,
	}, true, nil
}
