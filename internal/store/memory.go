package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/city-weather/internal/weather"
)

var (
	// ErrNotFound is returned when a city lookup has no row.
	ErrNotFound = errors.New("not found")
	// ErrUnknownCity is returned when a search references a city that was never stored.
	ErrUnknownCity = errors.New("search references an unknown city")
)

var _ weather.HistoryStore = (*MemoryStore)(nil)

// MemoryStore is a concurrency-safe in-memory search history. It keeps the
// same referential rules as the SQL schema and suits tests and DB_DRIVER=memory.
type MemoryStore struct {
	mu sync.RWMutex

	// key: canonical city name
	cities map[string]weather.City
	events []weather.SearchEvent

	nextCityID  uint
	nextEventID uint

	now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cities: make(map[string]weather.City),
		now:    time.Now,
	}
}

// GetOrCreateCity returns the city stored under name, inserting it first if needed.
func (s *MemoryStore) GetOrCreateCity(_ context.Context, name string) (weather.City, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if city, ok := s.cities[name]; ok {
		return city, nil
	}

	s.nextCityID++
	city := weather.City{ID: s.nextCityID, Name: name}
	s.cities[name] = city
	return city, nil
}

// FindCity returns the city stored under name.
func (s *MemoryStore) FindCity(_ context.Context, name string) (weather.City, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	city, ok := s.cities[name]
	if !ok {
		return weather.City{}, ErrNotFound
	}
	return city, nil
}

// RecordSearch appends a search event stamped with the store's clock.
func (s *MemoryStore) RecordSearch(_ context.Context, sessionKey *string, city weather.City) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.cities[city.Name]
	if !ok || stored.ID != city.ID {
		return ErrUnknownCity
	}

	var key *string
	if sessionKey != nil {
		k := *sessionKey
		key = &k
	}

	s.nextEventID++
	s.events = append(s.events, weather.SearchEvent{
		ID:         s.nextEventID,
		SessionKey: key,
		City:       stored,
		Timestamp:  s.now().UTC(),
	})
	return nil
}

// Events returns a copy of every recorded search in insertion order.
func (s *MemoryStore) Events() []weather.SearchEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.SearchEvent, len(s.events))
	copy(out, s.events)
	return out
}

// CityStats counts searches per city name, highest count first. Ties keep
// the order in which each city was first searched.
func (s *MemoryStore) CityStats(_ context.Context) ([]weather.CityStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := make(map[string]int)
	var stats []weather.CityStat
	for _, ev := range s.events {
		i, ok := index[ev.City.Name]
		if !ok {
			i = len(stats)
			index[ev.City.Name] = i
			stats = append(stats, weather.CityStat{City: ev.City.Name})
		}
		stats[i].Count++
	}

	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Count > stats[j].Count
	})
	if stats == nil {
		stats = []weather.CityStat{}
	}
	return stats, nil
}
