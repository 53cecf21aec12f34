package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

type AppConfig struct {
	Env      string
	LogLevel slog.Level
	Port     string

	// HTTPTimeout bounds every outbound API call.
	HTTPTimeout time.Duration

	GeocodingURL      string
	GeocodingLanguage string
	ForecastURL       string
	ForecastDays      int
	ForecastHours     int

	CacheEnabled bool
	CacheTTL     time.Duration

	RetryMax     int
	RetryBackoff time.Duration

	DBDriver string
	DBDSN    string

	CookieMaxAge      time.Duration
	SessionExpiration time.Duration

	// WarmInterval controls how often popular forecasts are prefetched (0 = disabled).
	WarmInterval time.Duration
	WarmTopN     int
}

var defaults = map[string]string{
	"APP_ENV":            EnvDev,
	"LOG_LEVEL":          "info",
	"PORT":               "8080",
	"HTTP_TIMEOUT":       "10s",
	"GEOCODING_URL":      "https://geocoding-api.open-meteo.com",
	"GEOCODING_LANGUAGE": "ru",
	"FORECAST_URL":       "https://api.open-meteo.com",
	"FORECAST_DAYS":      "2",
	"FORECAST_HOURS":     "8",
	"CACHE_ENABLED":      "true",
	"CACHE_TTL":          "1h",
	"RETRY_MAX":          "5",
	"RETRY_BACKOFF":      "200ms",
	"DB_DRIVER":          "sqlite",
	"DB_DSN":             "file:city-weather.db?_foreign_keys=on",
	"COOKIE_MAX_AGE":     "168h",
	"SESSION_EXPIRATION": "336h",
	"WARM_INTERVAL":      "30m",
	"WARM_TOP_N":         "5",
}

// Load reads configuration from the environment, after merging an optional
// .env file, with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", slog.Any("error", err))
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*AppConfig, error) {
	p := parser{v: v}
	cfg := &AppConfig{
		Env:               strings.ToLower(v.GetString("APP_ENV")),
		LogLevel:          p.level("LOG_LEVEL"),
		Port:              v.GetString("PORT"),
		HTTPTimeout:       p.duration("HTTP_TIMEOUT"),
		GeocodingURL:      v.GetString("GEOCODING_URL"),
		GeocodingLanguage: v.GetString("GEOCODING_LANGUAGE"),
		ForecastURL:       v.GetString("FORECAST_URL"),
		ForecastDays:      p.positiveInt("FORECAST_DAYS"),
		ForecastHours:     p.positiveInt("FORECAST_HOURS"),
		CacheEnabled:      p.boolean("CACHE_ENABLED"),
		CacheTTL:          p.duration("CACHE_TTL"),
		RetryMax:          p.int("RETRY_MAX"),
		RetryBackoff:      p.duration("RETRY_BACKOFF"),
		DBDriver:          strings.ToLower(v.GetString("DB_DRIVER")),
		DBDSN:             v.GetString("DB_DSN"),
		CookieMaxAge:      p.duration("COOKIE_MAX_AGE"),
		SessionExpiration: p.duration("SESSION_EXPIRATION"),
		WarmInterval:      p.duration("WARM_INTERVAL"),
		WarmTopN:          p.positiveInt("WARM_TOP_N"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Env {
	case EnvDev, EnvProd:
	default:
		return fmt.Errorf("invalid APP_ENV %q: want %q or %q", c.Env, EnvDev, EnvProd)
	}
	switch c.DBDriver {
	case "sqlite", "mysql", "memory":
	default:
		return fmt.Errorf("invalid DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDriver != "memory" && c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required for driver %s", c.DBDriver)
	}
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("RETRY_MAX must not be negative")
	}
	for key, d := range map[string]time.Duration{
		"HTTP_TIMEOUT":       c.HTTPTimeout,
		"CACHE_TTL":          c.CacheTTL,
		"RETRY_BACKOFF":      c.RetryBackoff,
		"COOKIE_MAX_AGE":     c.CookieMaxAge,
		"SESSION_EXPIRATION": c.SessionExpiration,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if c.WarmInterval < 0 {
		return fmt.Errorf("WARM_INTERVAL must not be negative")
	}
	return nil
}

// parser keeps the first conversion error so Load reports one bad key at a time.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) duration(key string) time.Duration {
	d, err := time.ParseDuration(p.v.GetString(key))
	if err != nil {
		p.fail(key, err)
	}
	return d
}

func (p *parser) int(key string) int {
	n, err := strconv.Atoi(p.v.GetString(key))
	if err != nil {
		p.fail(key, err)
	}
	return n
}

func (p *parser) positiveInt(key string) int {
	n := p.int(key)
	if n <= 0 {
		p.fail(key, fmt.Errorf("must be positive, got %d", n))
	}
	return n
}

func (p *parser) boolean(key string) bool {
	b, err := strconv.ParseBool(p.v.GetString(key))
	if err != nil {
		p.fail(key, err)
	}
	return b
}

func (p *parser) level(key string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(p.v.GetString(key))); err != nil {
		p.fail(key, err)
	}
	return lvl
}
