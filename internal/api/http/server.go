package httpapi

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"

	"github.com/i474232898/city-weather/internal/common"
	"github.com/i474232898/city-weather/internal/views"
)

const (
	sessionCookieName = "sessionid"
	lastCityCookie    = "last_searched_city"
)

// NewSessionStore creates the anonymous session store. Keys are random UUIDs
// kept in the sessionid cookie.
func NewSessionStore(expiration time.Duration) *session.Store {
	return session.New(session.Config{
		Expiration:     expiration,
		KeyLookup:      "cookie:" + sessionCookieName,
		KeyGenerator:   uuid.NewString,
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSameSite: fiber.CookieSameSiteLaxMode,
	})
}

// NewApp builds the Fiber app with the global middleware and every route.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "city-weather",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		UnescapePath:          true,
		ErrorHandler:          errorHandler(h.logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(requestLogger(h.logger))

	RegisterRoutes(app, h)
	return app
}

// errorHandler is the single request boundary for handler errors. API
// routes answer in JSON, page routes with the error page.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Внутренняя ошибка сервера"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			logger.ErrorContext(c.UserContext(), "request failed",
				slog.String("path", c.Path()),
				slog.Int("status", code),
				slog.Any("error", err),
			)
		}

		if common.HasAnyPrefix(c.Path(), "/api/") {
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": message,
			})
		}

		var buf bytes.Buffer
		if rerr := views.RenderError(&buf, views.ErrorData{Status: code, Message: message}); rerr != nil {
			return c.Status(code).SendString(http.StatusText(code))
		}
		return c.Status(code).Type("html", "utf-8").Send(buf.Bytes())
	}
}

// requestLogger logs one line per request once the handler chain returns.
func requestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.LogAttrs(c.UserContext(), level, "http request",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
		)
		return err
	}
}
