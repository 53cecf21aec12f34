package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// MaxCityNameLength bounds the user input and the stored city name.
const MaxCityNameLength = 58

// Service orchestrates resolution, forecast fetching and search history.
type Service struct {
	resolver    Resolver
	fetcher     Fetcher
	history     HistoryStore
	logger      *slog.Logger
	windowHours int
	observer    SearchObserver
}

// Option customizes a Service.
type Option func(*Service)

// WithWindowHours overrides DefaultWindowHours.
func WithWindowHours(n int) Option {
	return func(s *Service) {
		s.windowHours = n
	}
}

// WithSearchObserver registers an observer notified of every search outcome.
func WithSearchObserver(o SearchObserver) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// NewService creates a new Service.
func NewService(resolver Resolver, fetcher Fetcher, history HistoryStore, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		resolver:    resolver,
		fetcher:     fetcher,
		history:     history,
		logger:      logger.With(slog.String("component", "weather")),
		windowHours: DefaultWindowHours,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search resolves the user's input and records the search against the
// canonical city. History is written before any forecast is fetched, so it
// survives a later weather failure.
func (s *Service) Search(ctx context.Context, sessionKey *string, rawName string) (LocationInfo, error) {
	loc, err := s.resolve(ctx, rawName)
	if err != nil {
		s.observe(err)
		return LocationInfo{}, err
	}

	city, err := s.history.GetOrCreateCity(ctx, loc.Name)
	if err != nil {
		s.observe(err)
		return LocationInfo{}, fmt.Errorf("get or create city %q: %w", loc.Name, err)
	}
	if err := s.history.RecordSearch(ctx, sessionKey, city); err != nil {
		s.observe(err)
		return LocationInfo{}, fmt.Errorf("record search for %q: %w", loc.Name, err)
	}

	s.logger.InfoContext(ctx, "search recorded",
		slog.String("city", city.Name),
		slog.Bool("anonymous", sessionKey == nil),
	)
	s.observe(nil)
	return loc, nil
}

// CityWeather resolves the name and returns its forecast window.
func (s *Service) CityWeather(ctx context.Context, name string) (CityWeather, error) {
	loc, err := s.resolve(ctx, name)
	if err != nil {
		return CityWeather{}, err
	}

	forecast, err := s.fetch(ctx, loc)
	if err != nil {
		return CityWeather{}, err
	}

	return CityWeather{
		Location: loc,
		Window:   forecast.Window(s.windowHours),
	}, nil
}

// Warm resolves and fetches a city's forecast without recording history,
// leaving the response in the fetcher's cache.
func (s *Service) Warm(ctx context.Context, name string) error {
	loc, err := s.resolve(ctx, name)
	if err != nil {
		return err
	}
	_, err = s.fetch(ctx, loc)
	return err
}

// Stats returns per-city search counts, most searched first.
func (s *Service) Stats(ctx context.Context) ([]CityStat, error) {
	stats, err := s.history.CityStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("city stats: %w", err)
	}
	return stats, nil
}

func (s *Service) resolve(ctx context.Context, rawName string) (LocationInfo, error) {
	name := strings.TrimSpace(rawName)
	if name == "" || utf8.RuneCountInString(name) > MaxCityNameLength {
		return LocationInfo{}, ErrInvalidCityName
	}

	loc, found, err := s.resolver.Resolve(ctx, name)
	if err != nil {
		s.logger.WarnContext(ctx, "city resolution failed", slog.String("query", name), slog.Any("error", err))
		return LocationInfo{}, fmt.Errorf("%w: %v", ErrResolutionFailed, err)
	}
	if !found {
		s.logger.DebugContext(ctx, "city not found", slog.String("query", name))
		return LocationInfo{}, ErrCityNotFound
	}
	return loc, nil
}

func (s *Service) fetch(ctx context.Context, loc LocationInfo) (Forecast, error) {
	forecast, err := s.fetcher.Fetch(ctx, loc)
	if err != nil {
		s.logger.ErrorContext(ctx, "forecast fetch failed", slog.String("city", loc.Name), slog.Any("error", err))
		return Forecast{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return forecast, nil
}

func (s *Service) observe(err error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveSearch(SearchOutcome(err))
}

// SearchOutcome maps a Search error to its observer label.
func SearchOutcome(err error) string {
	switch {
	case err == nil:
		return "found"
	case errors.Is(err, ErrCityNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidCityName):
		return "invalid"
	default:
		return "error"
	}
}
