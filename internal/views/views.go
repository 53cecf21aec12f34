// Package views renders the HTML pages from embedded templates.
package views

import (
	"embed"
	"html/template"
	"io"
	"time"

	"github.com/i474232898/city-weather/internal/weather"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(
	template.New("").Funcs(template.FuncMap{
		"clock": func(t time.Time) string { return t.Format("15:04") },
		"date":  func(t time.Time) string { return t.Format("02.01.2006") },
	}).ParseFS(templatesFS, "templates/*.html"),
)

// IndexData feeds the landing page.
type IndexData struct {
	// Name prefills the search input.
	Name string
	// LastCity is the decoded last_searched_city cookie, if any.
	LastCity string
	// Message explains why the previous search did not go through.
	Message string
}

// CityWeatherData feeds the city forecast page. Times are already in the
// city's timezone.
type CityWeatherData struct {
	City   weather.LocationInfo
	Window weather.ForecastWindow
}

// ErrorData feeds the generic error page.
type ErrorData struct {
	Status  int
	Message string
}

// RenderIndex writes the landing page with the search form.
func RenderIndex(w io.Writer, data IndexData) error {
	return templates.ExecuteTemplate(w, "index.html", data)
}

// RenderCityWeather writes the forecast page for one city.
func RenderCityWeather(w io.Writer, data CityWeatherData) error {
	return templates.ExecuteTemplate(w, "city_weather.html", data)
}

// RenderError writes the error page for a failed request.
func RenderError(w io.Writer, data ErrorData) error {
	return templates.ExecuteTemplate(w, "error.html", data)
}
