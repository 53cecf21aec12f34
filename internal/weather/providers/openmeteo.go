package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/city-weather/internal/cache"
	"github.com/i474232898/city-weather/internal/weather"
)

const (
	// DefaultForecastURL is the Open-Meteo forecast API host.
	DefaultForecastURL = "https://api.open-meteo.com"
	// DefaultForecastDays is the requested forecast horizon.
	DefaultForecastDays = 2

	forecastPath     = "/v1/forecast"
	forecastVariable = "temperature_2m"
)

// CacheObserver is told whether each forecast request was served from cache.
type CacheObserver interface {
	ObserveCache(hit bool)
}

// ForecastOptions configures a ForecastClient. Zero values fall back to
// the package defaults; a nil Cache disables caching.
type ForecastOptions struct {
	BaseURL      string
	ForecastDays int
	Backoff      BackoffConfig
	Cache        cache.Cache
	Upstream     Observer
	CacheEvents  CacheObserver
}

// ForecastClient implements weather.Fetcher against the Open-Meteo forecast API.
type ForecastClient struct {
	name         string
	baseURL      string
	forecastDays int
	httpCfg      HTTPClientConfig
	circuit      *gobreaker.CircuitBreaker
	cache        cache.Cache
	upstream     Observer
	cacheEvents  CacheObserver
}

var _ weather.Fetcher = (*ForecastClient)(nil)

// NewForecastClient creates a forecast client sharing the given HTTP client.
func NewForecastClient(client *http.Client, opts ForecastOptions) *ForecastClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultForecastURL
	}
	if opts.ForecastDays <= 0 {
		opts.ForecastDays = DefaultForecastDays
	}
	if opts.Backoff == (BackoffConfig{}) {
		opts.Backoff = DefaultBackoff
	}
	if opts.Cache == nil {
		opts.Cache = cache.Disabled{}
	}

	return &ForecastClient{
		name:         "openmeteo",
		baseURL:      strings.TrimRight(opts.BaseURL, "/") + forecastPath,
		forecastDays: opts.ForecastDays,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: opts.Backoff,
		},
		circuit:     newCircuitBreaker("openmeteo-forecast"),
		cache:       opts.Cache,
		upstream:    opts.Upstream,
		cacheEvents: opts.CacheEvents,
	}
}

func (p *ForecastClient) Name() string {
	return p.name
}

// forecastResponse is the subset of the Open-Meteo payload requested with
// timeformat=unixtime.
type forecastResponse struct {
	Timezone string `json:"timezone"`
	Current  struct {
		Time          int64    `json:"time"`
		Temperature2m *float64 `json:"temperature_2m"`
	} `json:"current"`
	Hourly struct {
		Time          []int64    `json:"time"`
		Temperature2m []*float64 `json:"temperature_2m"`
	} `json:"hourly"`
}

// forecastURL encodes the request. url.Values sorts its keys, so identical
// parameters always yield the same URL, which doubles as the cache key.
func (p *ForecastClient) forecastURL(loc weather.LocationInfo) string {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	values.Set("hourly", forecastVariable)
	values.Set("current", forecastVariable)
	values.Set("timezone", loc.Timezone)
	values.Set("forecast_days", strconv.Itoa(p.forecastDays))
	values.Set("timeformat", "unixtime")
	return p.baseURL + "?" + values.Encode()
}

// Fetch returns the current temperature and the hourly series converted to
// the location's timezone. Only successful, decodable bodies are cached.
func (p *ForecastClient) Fetch(ctx context.Context, loc weather.LocationInfo) (weather.Forecast, error) {
	tz, err := time.LoadLocation(loc.Timezone)
	if err != nil {
		return weather.Forecast{}, fmt.Errorf("openmeteo: timezone %q: %w", loc.Timezone, err)
	}

	u := p.forecastURL(loc)
	if body, ok := p.cache.Get(u); ok {
		p.observeCache(true)
		return decodeForecast(body, tz)
	}
	p.observeCache(false)

	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, "forecast", p.upstream, buildRequest)
	if err != nil {
		return weather.Forecast{}, fmt.Errorf("openmeteo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return weather.Forecast{}, fmt.Errorf("openmeteo: read body: %w", err)
	}

	forecast, err := decodeForecast(body, tz)
	if err != nil {
		return weather.Forecast{}, err
	}
	p.cache.Set(u, body)
	return forecast, nil
}

func (p *ForecastClient) observeCache(hit bool) {
	if p.cacheEvents != nil {
		p.cacheEvents.ObserveCache(hit)
	}
}

func decodeForecast(body []byte, tz *time.Location) (weather.Forecast, error) {
	var payload forecastResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return weather.Forecast{}, fmt.Errorf("openmeteo: decode forecast: %w", err)
	}
	if payload.Current.Temperature2m == nil {
		return weather.Forecast{}, fmt.Errorf("openmeteo: response has no current temperature")
	}

	n := min(len(payload.Hourly.Time), len(payload.Hourly.Temperature2m))
	hourly := make([]weather.HourlyTemperature, 0, n)
	for i := 0; i < n; i++ {
		// null marks an hour the model has no value for.
		t := payload.Hourly.Temperature2m[i]
		if t == nil {
			continue
		}
		hourly = append(hourly, weather.HourlyTemperature{
			Time:        time.Unix(payload.Hourly.Time[i], 0).In(tz),
			Temperature: int(*t),
		})
	}

	return weather.Forecast{
		CurrentTemperature: int(*payload.Current.Temperature2m),
		CurrentTime:        time.Unix(payload.Current.Time, 0).In(tz),
		Hourly:             hourly,
	}, nil
}
