package weather

import (
	"time"
)

// LocationInfo is the geocoder's best match for a free-text city name.
// Name is the canonical name that search history is keyed by.
type LocationInfo struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

// HourlyTemperature is a single point of the hourly forecast series.
// Time is expressed in the location's timezone.
type HourlyTemperature struct {
	Time        time.Time `json:"time"`
	Temperature int       `json:"temperature"`
}

// Forecast is the fetcher's view of a forecast response: the current reading
// and the whole hourly series for the requested horizon, ordered by Time.
type Forecast struct {
	CurrentTemperature int                 `json:"currentTemperature"`
	CurrentTime        time.Time           `json:"currentTime"`
	Hourly             []HourlyTemperature `json:"hourly"`
}

// ForecastWindow is what gets displayed: the current reading plus the next
// few hourly entries starting at the next full local hour.
type ForecastWindow struct {
	CurrentTemperature int                 `json:"currentTemperature"`
	CurrentTime        time.Time           `json:"currentTime"`
	Hourly             []HourlyTemperature `json:"hourly"`
}

// CityWeather pairs a resolved location with its forecast window.
type CityWeather struct {
	Location LocationInfo   `json:"location"`
	Window   ForecastWindow `json:"forecast"`
}

// City is a persisted, canonical city name.
type City struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// SearchEvent is one recorded search. SessionKey is nil for visitors whose
// session was not established yet.
type SearchEvent struct {
	ID         uint      `json:"id"`
	SessionKey *string   `json:"sessionKey,omitempty"`
	City       City      `json:"city"`
	Timestamp  time.Time `json:"timestamp"`
}

// CityStat is the number of recorded searches for one city.
type CityStat struct {
	City  string `json:"city"`
	Count int64  `json:"count"`
}
