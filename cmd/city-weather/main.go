package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/i474232898/city-weather/internal/api/http"
	"github.com/i474232898/city-weather/internal/cache"
	"github.com/i474232898/city-weather/internal/config"
	"github.com/i474232898/city-weather/internal/logging"
	"github.com/i474232898/city-weather/internal/metrics"
	"github.com/i474232898/city-weather/internal/scheduler"
	"github.com/i474232898/city-weather/internal/store"
	"github.com/i474232898/city-weather/internal/weather"
	"github.com/i474232898/city-weather/internal/weather/providers"
)

const appName = "city-weather"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(cfg, appName)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, logger *slog.Logger) error {
	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	// Search history: SQL through GORM, or in-process for local runs.
	var history weather.HistoryStore
	var health httpapi.Pinger
	if cfg.DBDriver == store.DriverMemory {
		history = store.NewMemoryStore()
	} else {
		db, err := store.Open(cfg.DBDriver, cfg.DBDSN, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		history = db
		health = db
	}

	// Shared HTTP client for outbound API calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	var responses cache.Cache = cache.Disabled{}
	if cfg.CacheEnabled {
		responses = cache.NewTTL(cfg.CacheTTL)
	}

	geocoder := providers.NewGeocodingClient(httpClient, cfg.GeocodingURL, cfg.GeocodingLanguage, m)
	fetcher := providers.NewForecastClient(httpClient, providers.ForecastOptions{
		BaseURL:      cfg.ForecastURL,
		ForecastDays: cfg.ForecastDays,
		Backoff: providers.BackoffConfig{
			MaxRetries:      cfg.RetryMax,
			InitialInterval: cfg.RetryBackoff,
			MaxInterval:     providers.DefaultBackoff.MaxInterval,
		},
		Cache:       responses,
		Upstream:    m,
		CacheEvents: m,
	})

	service := weather.NewService(geocoder, fetcher, history, logger,
		weather.WithWindowHours(cfg.ForecastHours),
		weather.WithSearchObserver(m),
	)

	// Scheduler that keeps popular forecasts in the response cache.
	sched := scheduler.New(service, cfg.WarmInterval, cfg.WarmTopN, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	app := httpapi.NewApp(httpapi.NewHandler(service, httpapi.Options{
		Sessions:     httpapi.NewSessionStore(cfg.SessionExpiration),
		CookieMaxAge: cfg.CookieMaxAge,
		Metrics:      m.Handler(),
		Health:       health,
		Logger:       logger,
	}))

	go func() {
		logger.Info("listening", slog.String("port", cfg.Port), slog.String("db_driver", cfg.DBDriver))
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("fiber server stopped", slog.Any("error", err))
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
