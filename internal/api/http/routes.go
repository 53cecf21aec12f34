package httpapi

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/i474232898/city-weather/internal/common"
	"github.com/i474232898/city-weather/internal/views"
	"github.com/i474232898/city-weather/internal/weather"
)

var validate = validator.New()

// DefaultCookieMaxAge is how long the last searched city is remembered.
const DefaultCookieMaxAge = 7 * 24 * time.Hour

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Handler. Zero values fall back to defaults; nil
// Metrics and Health leave /metrics unregistered and /health unconditional.
type Options struct {
	Sessions     *session.Store
	CookieMaxAge time.Duration
	Metrics      http.Handler
	Health       Pinger
	Logger       *slog.Logger
}

// Handler serves the pages and the JSON API.
type Handler struct {
	service      *weather.Service
	sessions     *session.Store
	cookieMaxAge time.Duration
	metrics      http.Handler
	health       Pinger
	logger       *slog.Logger
}

// NewHandler creates a Handler serving service, applying defaults to opts.
func NewHandler(service *weather.Service, opts Options) *Handler {
	if opts.Sessions == nil {
		opts.Sessions = NewSessionStore(14 * 24 * time.Hour)
	}
	if opts.CookieMaxAge <= 0 {
		opts.CookieMaxAge = DefaultCookieMaxAge
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		service:      service,
		sessions:     opts.Sessions,
		cookieMaxAge: opts.CookieMaxAge,
		metrics:      opts.Metrics,
		health:       opts.Health,
		logger:       opts.Logger.With(slog.String("component", "http")),
	}
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/", h.index)
	app.Post("/search/", h.search)
	// Wildcards, because canonical names may contain "/" and paths are
	// unescaped before routing.
	app.Get("/weather/*", h.cityWeather)

	api := app.Group("/api")
	api.Get("/city-stats/", h.cityStats)
	api.Get("/weather/*", h.cityWeatherJSON)

	app.Get("/health", h.healthCheck)
	if h.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.metrics))
	}
}

// searchForm is the body of POST /search/.
type searchForm struct {
	Name string `form:"name" validate:"required,max=58"`
}

func (h *Handler) index(c *fiber.Ctx) error {
	return renderIndex(c, fiber.StatusOK, views.IndexData{LastCity: lastCity(c)})
}

func (h *Handler) search(c *fiber.Ctx) error {
	var form searchForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Некорректный запрос")
	}
	form.Name = common.NormalizeName(utils.CopyString(form.Name))

	if err := validate.Struct(form); err != nil {
		return renderIndex(c, fiber.StatusBadRequest, views.IndexData{
			Name:    form.Name,
			Message: "Введите название города (не длиннее 58 символов)",
		})
	}

	sess, err := h.sessions.Get(c)
	if err != nil {
		return err
	}
	// A session that is new on this request has no committed key yet.
	var sessionKey *string
	if !sess.Fresh() {
		id := sess.ID()
		sessionKey = &id
	}

	loc, err := h.service.Search(c.UserContext(), sessionKey, form.Name)
	switch {
	case errors.Is(err, weather.ErrInvalidCityName):
		return renderIndex(c, fiber.StatusBadRequest, views.IndexData{
			Name:    form.Name,
			Message: "Введите название города (не длиннее 58 символов)",
		})
	case errors.Is(err, weather.ErrCityNotFound):
		return renderIndex(c, fiber.StatusNotFound, views.IndexData{
			Name:    form.Name,
			Message: "Город не найден",
		})
	case errors.Is(err, weather.ErrResolutionFailed):
		return fiber.NewError(fiber.StatusBadGateway, "Сервис геокодирования недоступен")
	case err != nil:
		return err
	}

	sess.Set("last_city", loc.Name)
	if err := sess.Save(); err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     lastCityCookie,
		Value:    url.PathEscape(loc.Name),
		Path:     "/",
		MaxAge:   int(h.cookieMaxAge.Seconds()),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Redirect("/weather/"+url.PathEscape(loc.Name), fiber.StatusFound)
}

func (h *Handler) cityWeather(c *fiber.Ctx) error {
	name := cityParam(c)

	cw, err := h.service.CityWeather(c.UserContext(), name)
	switch {
	case errors.Is(err, weather.ErrCityNotFound), errors.Is(err, weather.ErrInvalidCityName):
		return c.Redirect("/", fiber.StatusFound)
	case err != nil:
		return upstreamError(err)
	}

	var buf bytes.Buffer
	if err := views.RenderCityWeather(&buf, views.CityWeatherData{City: cw.Location, Window: cw.Window}); err != nil {
		return err
	}
	return c.Type("html", "utf-8").Send(buf.Bytes())
}

func (h *Handler) cityWeatherJSON(c *fiber.Ctx) error {
	name := cityParam(c)

	cw, err := h.service.CityWeather(c.UserContext(), name)
	switch {
	case errors.Is(err, weather.ErrCityNotFound):
		return fiber.NewError(fiber.StatusNotFound, "city not found")
	case errors.Is(err, weather.ErrInvalidCityName):
		return fiber.NewError(fiber.StatusBadRequest, "invalid city name")
	case err != nil:
		return upstreamError(err)
	}
	return c.JSON(cw)
}

func (h *Handler) cityStats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (h *Handler) healthCheck(c *fiber.Ctx) error {
	if h.health != nil {
		if err := h.health.Ping(c.UserContext()); err != nil {
			h.logger.WarnContext(c.UserContext(), "health check failed", slog.Any("error", err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":  "unavailable",
				"service": "city-weather",
			})
		}
	}
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "city-weather",
	})
}

// upstreamError maps resolution and fetch failures to 502; anything else is
// an internal error.
func upstreamError(err error) error {
	switch {
	case errors.Is(err, weather.ErrResolutionFailed):
		return fiber.NewError(fiber.StatusBadGateway, "Сервис геокодирования недоступен")
	case errors.Is(err, weather.ErrFetchFailed):
		return fiber.NewError(fiber.StatusBadGateway, "Сервис погоды недоступен")
	default:
		return err
	}
}

// cityParam returns the city name from the wildcard segment of the path.
func cityParam(c *fiber.Ctx) string {
	return utils.CopyString(c.Params("*"))
}

// lastCity decodes the last_searched_city cookie. Undecodable values are ignored.
func lastCity(c *fiber.Ctx) string {
	raw := c.Cookies(lastCityCookie)
	if raw == "" {
		return ""
	}
	name, err := url.PathUnescape(raw)
	if err != nil {
		return ""
	}
	return utils.CopyString(name)
}

func renderIndex(c *fiber.Ctx, status int, data views.IndexData) error {
	if data.LastCity == "" {
		data.LastCity = lastCity(c)
	}
	var buf bytes.Buffer
	if err := views.RenderIndex(&buf, data); err != nil {
		return err
	}
	return c.Status(status).Type("html", "utf-8").Send(buf.Bytes())
}
