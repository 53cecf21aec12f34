package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/city-weather/internal/metrics"
	"github.com/i474232898/city-weather/internal/store"
	"github.com/i474232898/city-weather/internal/weather"
	"github.com/i474232898/city-weather/internal/weather/providers"
)

const (
	geocodingEndpoint = providers.DefaultGeocodingURL + "/v1/search"
	forecastEndpoint  = providers.DefaultForecastURL + "/v1/forecast"

	moscowEscaped = "%D0%9C%D0%BE%D1%81%D0%BA%D0%B2%D0%B0"
)

type geoCity struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

var knownCities = map[string]geoCity{
	"москва":     {Name: "Москва", Latitude: 55.75222, Longitude: 37.61556, Timezone: "Europe/Moscow"},
	"moscow":     {Name: "Москва", Latitude: 55.75222, Longitude: 37.61556, Timezone: "Europe/Moscow"},
	"париж":      {Name: "Париж", Latitude: 48.85341, Longitude: 2.3488, Timezone: "Europe/Paris"},
	"кает":       {Name: "Кает/Север", Latitude: 61.2, Longitude: 45.1, Timezone: "Europe/Moscow"},
	"кает/север": {Name: "Кает/Север", Latitude: 61.2, Longitude: 45.1, Timezone: "Europe/Moscow"},
}

type testEnv struct {
	app       *fiber.App
	history   *store.MemoryStore
	transport *httpmock.MockTransport
}

type envOptions struct {
	metrics *metrics.Metrics
	health  Pinger
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	mt := httpmock.NewMockTransport()
	client := &http.Client{Transport: mt}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	history := store.NewMemoryStore()
	svc := weather.NewService(
		providers.NewGeocodingClient(client, "", "", opts.metrics),
		providers.NewForecastClient(client, providers.ForecastOptions{
			Backoff:  providers.BackoffConfig{MaxRetries: 1, InitialInterval: time.Millisecond},
			Upstream: opts.metrics,
		}),
		history,
		logger,
		weather.WithSearchObserver(opts.metrics),
	)

	handlerOpts := Options{Logger: logger, Health: opts.health}
	if opts.metrics != nil {
		handlerOpts.Metrics = opts.metrics.Handler()
	}
	app := NewApp(NewHandler(svc, handlerOpts))

	return &testEnv{app: app, history: history, transport: mt}
}

// registerGeocoder answers for knownCities, matching the name case-insensitively.
func (e *testEnv) registerGeocoder() {
	e.transport.RegisterResponder(http.MethodGet, geocodingEndpoint,
		func(req *http.Request) (*http.Response, error) {
			city, ok := knownCities[strings.ToLower(req.URL.Query().Get("name"))]
			if !ok {
				return httpmock.NewStringResponse(http.StatusOK, `{"generationtime_ms": 0.2}`), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"results": []geoCity{city}})
		})
}

// registerForecast serves 48 hourly values from midnight local time, with
// the current reading at 10:15.
func (e *testEnv) registerForecast(t *testing.T) {
	t.Helper()
	e.transport.RegisterResponder(http.MethodGet, forecastEndpoint,
		func(req *http.Request) (*http.Response, error) {
			tz, err := time.LoadLocation(req.URL.Query().Get("timezone"))
			if err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, `{"error": true}`), nil
			}
			day := time.Date(2024, 1, 15, 0, 0, 0, 0, tz)

			times := make([]int64, 48)
			temps := make([]float64, 48)
			for i := range times {
				times[i] = day.Add(time.Duration(i) * time.Hour).Unix()
				temps[i] = float64(i - 10)
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"timezone": tz.String(),
				"current": map[string]any{
					"time":           day.Add(10*time.Hour + 15*time.Minute).Unix(),
					"temperature_2m": -3.4,
				},
				"hourly": map[string]any{
					"time":           times,
					"temperature_2m": temps,
				},
			})
		})
}

func (e *testEnv) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := e.app.Test(req, 5000)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func searchRequest(name string, cookies ...*http.Cookie) *http.Request {
	form := url.Values{"name": {name}}
	req := httptest.NewRequest(http.MethodPost, "/search/", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestSearch_RedirectsAndRemembersCity(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.registerGeocoder()

	resp := env.do(t, searchRequest("Москва"))

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/weather/"+moscowEscaped, resp.Header.Get(fiber.HeaderLocation))

	cookie := findCookie(resp, lastCityCookie)
	require.NotNil(t, cookie)
	assert.Equal(t, moscowEscaped, cookie.Value)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), cookie.MaxAge)
	assert.NotNil(t, findCookie(resp, sessionCookieName), "session must be established")

	events := env.history.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Москва", events[0].City.Name)
	assert.Nil(t, events[0].SessionKey, "a fresh session has no key yet")
	assert.Zero(t, env.transport.GetCallCountInfo()["GET "+forecastEndpoint], "search does not fetch the forecast")
}

func TestSearch_RecordsSessionKeyOnReturnVisit(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.registerGeocoder()

	first := env.do(t, searchRequest("Москва"))
	sessionCookie := findCookie(first, sessionCookieName)
	require.NotNil(t, sessionCookie)

	second := env.do(t, searchRequest("Париж", &http.Cookie{Name: sessionCookieName, Value: sessionCookie.Value}))
	require.Equal(t, http.StatusFound, second.StatusCode)

	events := env.history.Events()
	require.Len(t, events, 2)
	require.NotNil(t, events[1].SessionKey)
	assert.Equal(t, sessionCookie.Value, *events[1].SessionKey)
	assert.Equal(t, "Париж", events[1].City.Name)
}

func TestSearch_AliasesCollapseToCanonicalCity(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.registerGeocoder()

	for _, name := range []string{"москва", "  МОСКВА ", "Moscow"} {
		resp := env.do(t, searchRequest(name))
		require.Equal(t, http.StatusFound, resp.StatusCode, name)
		assert.Equal(t, "/weather/"+moscowEscaped, resp.Header.Get(fiber.HeaderLocation))
	}

	for _, ev := range env.history.Events() {
		assert.Equal(t, "Москва", ev.City.Name)
	}
}

func TestCityStats_CountsPerCityDescending(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.registerGeocoder()

	for _, name := range []string{"Москва", "Париж", "москва", "Москва"} {
		resp := env.do(t, searchRequest(name))
		require.Equal(t, http.StatusFound, resp.StatusCode)
	}

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/city-stats/", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON)
	assert.JSONEq(t, `[{"city":"Москва","count":3},{"city":"Париж","count":1}]`, readBody(t, resp))
}

func TestCityStats_Empty(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/city-stats/", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, readBody(t, resp))
}

func TestSearch_NotFoundWritesNothing(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.registerGeocoder()

	resp := env.do(t, searchRequest("Атлантида"))

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Город не найден")
	assert.Nil(t, findCookie(resp, lastCityCookie))
	assert.Empty(t, env.history.Events())

	_, err := env.history.FindCity(context.Background(), "Атлантида")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSearch_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"too_long", strings.Repeat("я", weather.MaxCityNameLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{})
			env.registerGeocoder()

			resp := env.do(t, searchRequest(tt.input))

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, readBody(t, resp), `action="/search/"`)
			assert.Zero(t, env.transport.GetTotalCallCount())
			assert.Empty(t, env.history.Events())
		})
	}
}

func TestSearch_ResolverFailure(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.transport.RegisterResponder(http.MethodGet, geocodingEndpoint,
		httpmock.NewStringResponder(http.StatusInternalServerError, `oops`))

	resp := env.do(t, searchRequest("Москва"))

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Ошибка 502")
	assert.Nil(t, findCookie(resp, lastCityCookie))
	assert.Empty(t, env.history.Events())
}

func TestCityWeatherPage_RendersNextHours(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.registerGeocoder()
	env.registerForecast(t)

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/weather/"+moscowEscaped, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "text/html")

	body := readBody(t, resp)
	assert.Contains(t, body, "<h1>Москва</h1>")
	assert.Contains(t, body, "-3 °C")
	assert.NotContains(t, body, "<td>10:00</td>")
	assert.Contains(t, body, "<td>11:00</td><td>1</td>")
	assert.Contains(t, body, "<td>18:00</td><td>8</td>")
	assert.NotContains(t, body, "<td>19:00</td>")
	assert.Empty(t, env.history.Events(), "viewing a city does not record a search")
}

func TestCityWeatherPage_UnknownCityRedirectsHome(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.registerGeocoder()

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/weather/Atlantis", nil))

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get(fiber.HeaderLocation))
}

func TestCityWeatherPage_FetchFailure(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.registerGeocoder()
	env.transport.RegisterResponder(http.MethodGet, forecastEndpoint,
		httpmock.NewStringResponder(http.StatusServiceUnavailable, `down`))

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/weather/"+moscowEscaped, nil))

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "Сервис погоды недоступен")
	assert.NotContains(t, body, "<table>")
	assert.Equal(t, 2, env.transport.GetCallCountInfo()["GET "+forecastEndpoint])
}

func TestCityWeatherJSON(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.registerGeocoder()
	env.registerForecast(t)

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/weather/"+moscowEscaped, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Location weather.LocationInfo `json:"location"`
		Forecast struct {
			CurrentTemperature int `json:"currentTemperature"`
			Hourly             []struct {
				Time        time.Time `json:"time"`
				Temperature int       `json:"temperature"`
			} `json:"hourly"`
		} `json:"forecast"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))

	assert.Equal(t, "Москва", payload.Location.Name)
	assert.Equal(t, -3, payload.Forecast.CurrentTemperature)
	require.Len(t, payload.Forecast.Hourly, weather.DefaultWindowHours)
	assert.Equal(t, 11, payload.Forecast.Hourly[0].Time.Hour())
	assert.Equal(t, 1, payload.Forecast.Hourly[0].Temperature)
}

func TestCityWeatherJSON_Errors(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.registerGeocoder()

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/weather/Atlantis", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":true,"message":"city not found"}`, readBody(t, resp))
}

func TestIndex_PrefillsFromCookie(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: lastCityCookie, Value: moscowEscaped})
	resp := env.do(t, req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `value="Москва"`)
}

func TestIndex_WithoutCookie(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, `value=""`)
	assert.NotContains(t, body, "Последний поиск")
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","service":"city-weather"}`, readBody(t, resp))

	down := newTestEnv(t, envOptions{health: pingerFunc(func(context.Context) error {
		return errors.New("database is locked")
	})})
	resp = down.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	m, err := metrics.New()
	require.NoError(t, err)

	env := newTestEnv(t, envOptions{metrics: m})
	env.registerGeocoder()
	env.do(t, searchRequest("Москва"))
	env.do(t, searchRequest("Атлантида"))

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, `city_weather_searches_total{outcome="found"} 1`)
	assert.Contains(t, body, `city_weather_searches_total{outcome="not_found"} 1`)
	assert.Contains(t, body, fmt.Sprintf(`city_weather_upstream_attempts_total{endpoint="geocoding",outcome="ok"} %d`, 2))
}

func TestMetricsEndpoint_NotRegisteredWithoutMetrics(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSearch_NameWithSlashReachesCityPage(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.registerGeocoder()
	env.registerForecast(t)

	resp := env.do(t, searchRequest("Кает"))
	require.Equal(t, http.StatusFound, resp.StatusCode)
	location := resp.Header.Get(fiber.HeaderLocation)
	assert.Equal(t, "/weather/"+url.PathEscape("Кает/Север"), location)
	assert.Contains(t, location, "%2F")

	page := env.do(t, httptest.NewRequest(http.MethodGet, location, nil))
	require.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, readBody(t, page), "<h1>Кает/Север</h1>")
}
