package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/i474232898/city-weather/internal/weather"
)

// Supported DB_DRIVER values.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// City is the city table. Names are canonical geocoder names.
type City struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:58;not null;uniqueIndex"`
}

func (City) TableName() string { return "city" }

// SearchedCity is one recorded search. Deleting a city cascades to its searches.
type SearchedCity struct {
	ID         uint      `gorm:"primaryKey"`
	SessionKey *string   `gorm:"size:40"`
	CityID     uint      `gorm:"not null;index"`
	City       City      `gorm:"constraint:OnDelete:CASCADE"`
	Timestamp  time.Time `gorm:"autoCreateTime;not null"`
}

func (SearchedCity) TableName() string { return "searched_city" }

var _ weather.HistoryStore = (*GormStore)(nil)

// GormStore persists search history through GORM.
type GormStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the configured SQL backend and migrates the schema.
func Open(driver, dsn string, logger *slog.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger(logger)})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite has a single writer, and every in-memory connection is a
		// separate database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return NewGormStore(db, logger)
}

// NewGormStore wraps an open connection and migrates the schema.
func NewGormStore(db *gorm.DB, logger *slog.Logger) (*GormStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&City{}, &SearchedCity{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormStore{db: db, logger: logger.With(slog.String("component", "store"))}, nil
}

func newGormLogger(logger *slog.Logger) gormlogger.Interface {
	if logger == nil {
		logger = slog.Default()
	}
	return gormlogger.New(
		slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

// DB exposes the underlying connection.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// GetOrCreateCity returns the row for name, inserting it when absent. A
// concurrent insert of the same name loses on the unique index; the loser
// reads back the winner's row.
func (s *GormStore) GetOrCreateCity(ctx context.Context, name string) (weather.City, error) {
	var row City
	err := s.db.WithContext(ctx).Where(City{Name: name}).FirstOrCreate(&row).Error
	if err != nil {
		if ferr := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error; ferr != nil {
			return weather.City{}, fmt.Errorf("failed to get or create city: %w", err)
		}
		s.logger.DebugContext(ctx, "city created concurrently", slog.String("city", name))
	}
	return weather.City{ID: row.ID, Name: row.Name}, nil
}

// FindCity returns the row for name, or ErrNotFound.
func (s *GormStore) FindCity(ctx context.Context, name string) (weather.City, error) {
	var row City
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.City{}, ErrNotFound
	}
	if err != nil {
		return weather.City{}, fmt.Errorf("failed to find city: %w", err)
	}
	return weather.City{ID: row.ID, Name: row.Name}, nil
}

// RecordSearch inserts one searched_city row; the timestamp is set on insert.
func (s *GormStore) RecordSearch(ctx context.Context, sessionKey *string, city weather.City) error {
	row := SearchedCity{SessionKey: sessionKey, CityID: city.ID}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to record search: %w", err)
	}
	return nil
}

// CityStats groups searches by city name, most searched first.
func (s *GormStore) CityStats(ctx context.Context) ([]weather.CityStat, error) {
	stats := []weather.CityStat{}
	err := s.db.WithContext(ctx).
		Table("searched_city").
		Select("city.name AS city, COUNT(searched_city.id) AS count").
		Joins("JOIN city ON city.id = searched_city.city_id").
		Group("city.name").
		Order("count DESC").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate city stats: %w", err)
	}
	if stats == nil {
		stats = []weather.CityStat{}
	}
	return stats, nil
}

// CountSearches returns the total number of searched_city rows.
func (s *GormStore) CountSearches(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&SearchedCity{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count searches: %w", err)
	}
	return n, nil
}
