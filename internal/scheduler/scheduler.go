package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/city-weather/internal/weather"
)

// warmTimeout bounds a single city's resolve and fetch.
const warmTimeout = 30 * time.Second

// Source provides the popularity ranking and warms one city's forecast.
// *weather.Service satisfies it.
type Source interface {
	Stats(ctx context.Context) ([]weather.CityStat, error)
	Warm(ctx context.Context, name string) error
}

// Scheduler periodically prefetches forecasts for the most searched cities
// so their pages are served from the response cache.
type Scheduler struct {
	scheduler *gocron.Scheduler
	source    Source
	topN      int
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler.
func New(source Source, interval time.Duration, topN int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		source:    source,
		topN:      topN,
		interval:  interval,
		logger:    logger.With(slog.String("component", "scheduler")),
	}
}

// Start schedules the warm job and starts the underlying scheduler. A
// non-positive interval disables warming.
func (s *Scheduler) Start() error {
	if s.interval <= 0 || s.topN <= 0 {
		s.logger.Info("cache warming disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		s.WarmPopular(context.Background())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("cache warming scheduled",
		slog.Duration("interval", s.interval),
		slog.Int("top_n", s.topN),
	)
	return nil
}

// WarmPopular warms the topN most searched cities in order and returns how
// many succeeded. Failures are logged and skipped.
func (s *Scheduler) WarmPopular(ctx context.Context) int {
	stats, err := s.source.Stats(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load city stats", slog.Any("error", err))
		return 0
	}
	if len(stats) > s.topN {
		stats = stats[:s.topN]
	}

	warmed := 0
	for _, st := range stats {
		if ctx.Err() != nil {
			break
		}
		cityCtx, cancel := context.WithTimeout(ctx, warmTimeout)
		err := s.source.Warm(cityCtx, st.City)
		cancel()
		if err != nil {
			s.logger.WarnContext(ctx, "cache warm failed", slog.String("city", st.City), slog.Any("error", err))
			continue
		}
		warmed++
	}

	s.logger.DebugContext(ctx, "cache warm completed", slog.Int("warmed", warmed), slog.Int("candidates", len(stats)))
	return warmed
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
