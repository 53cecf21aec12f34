package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/city-weather/internal/config"
)

func TestNewLogger_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.AppConfig{Env: config.EnvProd, LogLevel: slog.LevelInfo}, "city-weather")

	logger.Debug("hidden")
	logger.Info("search recorded", slog.String("city", "Москва"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "search recorded", line["msg"])
	assert.Equal(t, "city-weather", line["app"])
	assert.Equal(t, "prod", line["env"])
	assert.Equal(t, "Москва", line["city"])
}

func TestNewLogger_DevIsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.AppConfig{Env: config.EnvDev, LogLevel: slog.LevelDebug}, "city-weather")

	logger.Debug("cache warmed")

	out := buf.String()
	assert.Contains(t, out, "cache warmed")
	assert.Contains(t, out, "city-weather")
	assert.False(t, json.Valid(buf.Bytes()))
}
