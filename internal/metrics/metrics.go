// Package metrics provides Prometheus metrics for searches and outbound
// weather requests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's collectors on a private registry. All
// Observe methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	searchesTotal     *prometheus.CounterVec
	upstreamAttempts  *prometheus.CounterVec
	forecastCacheHits *prometheus.CounterVec
}

// New creates and registers the collectors, including Go runtime and
// process collectors.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		searchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "city_weather_searches_total",
				Help: "Total number of city searches by outcome",
			},
			[]string{"outcome"}, // found, not_found, invalid, error
		),
		upstreamAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "city_weather_upstream_attempts_total",
				Help: "Total number of outbound API attempts",
			},
			[]string{"endpoint", "outcome"}, // endpoint: geocoding, forecast
		),
		forecastCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "city_weather_forecast_cache_requests_total",
				Help: "Total number of forecast cache lookups",
			},
			[]string{"result"}, // hit, miss
		),
	}

	for _, c := range []prometheus.Collector{
		m.searchesTotal,
		m.upstreamAttempts,
		m.forecastCacheHits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSearch(outcome string) {
	if m == nil {
		return
	}
	m.searchesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUpstream(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.upstreamAttempts.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.forecastCacheHits.WithLabelValues(result).Inc()
}
