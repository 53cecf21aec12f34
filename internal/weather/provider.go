package weather

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCityName is returned for empty or oversized input, before any
	// outbound call is made.
	ErrInvalidCityName = errors.New("invalid city name")
	// ErrCityNotFound means the geocoder had no match for the input.
	ErrCityNotFound = errors.New("city not found")
	// ErrResolutionFailed wraps network, status and parse errors from the geocoder.
	ErrResolutionFailed = errors.New("city resolution failed")
	// ErrFetchFailed wraps forecast errors left after retries are exhausted.
	ErrFetchFailed = errors.New("forecast fetch failed")
)

// Resolver translates a free-text city name into a location. A miss is
// reported as found == false with a nil error.
type Resolver interface {
	Resolve(ctx context.Context, name string) (loc LocationInfo, found bool, err error)
}

// Fetcher retrieves the current temperature and hourly series for a location.
type Fetcher interface {
	Fetch(ctx context.Context, loc LocationInfo) (Forecast, error)
}

// HistoryStore is the contract every search history backend must satisfy.
type HistoryStore interface {
	GetOrCreateCity(ctx context.Context, name string) (City, error)
	RecordSearch(ctx context.Context, sessionKey *string, city City) error
	CityStats(ctx context.Context) ([]CityStat, error)
}

// SearchObserver receives the outcome of each search. Outcomes are
// "found", "not_found", "invalid" and "error".
type SearchObserver interface {
	ObserveSearch(outcome string)
}
