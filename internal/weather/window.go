package weather

import (
	"time"
	_ "time/tzdata"
)

// DefaultWindowHours is how many hourly entries a forecast window holds.
const DefaultWindowHours = 8

// NextHour returns the start of the local hour following now, evaluated in
// now's location so zones with half-hour offsets floor to their own wall clock.
func NextHour(now time.Time) time.Time {
	floor := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	return floor.Add(time.Hour)
}

// NextHours keeps the entries at or after the next full hour relative to now,
// in their original order, and caps them at n. Fewer available entries are
// returned as is.
func NextHours(series []HourlyTemperature, now time.Time, n int) []HourlyTemperature {
	out := make([]HourlyTemperature, 0, max(n, 0))
	if n <= 0 {
		return out
	}

	next := NextHour(now)
	for _, h := range series {
		if h.Time.Before(next) {
			continue
		}
		out = append(out, h)
		if len(out) == n {
			break
		}
	}
	return out
}

// Window reduces the forecast to its current reading and the next n hours.
func (f Forecast) Window(n int) ForecastWindow {
	return ForecastWindow{
		CurrentTemperature: f.CurrentTemperature,
		CurrentTime:        f.CurrentTime,
		Hourly:             NextHours(f.Hourly, f.CurrentTime, n),
	}
}
