package gormset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fluxbase-eu/filterkit/internal/config"
)

// Open connects gorm to the configured database. Pool limits follow the
// pgx pool settings so both backends behave alike.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	slow := cfg.SlowQuery
	if slow <= 0 {
		slow = time.Second
	}

	db, err := gorm.Open(gormpg.Open(cfg.ConnectionString()), &gorm.Config{
		Logger:                 NewLogger(slow),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres db failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB failed: %w", err)
	}
	if cfg.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(int(cfg.MaxConnections))
	}
	if cfg.MinConnections > 0 {
		sqlDB.SetMaxIdleConns(int(cfg.MinConnections))
	}
	if cfg.MaxConnLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
	if cfg.MaxConnIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres db failed: %w", err)
	}

	log.Info().Str("database", cfg.Database).Msg("Gorm connection established")
	return db, nil
}

// Logger routes gorm's statement log through zerolog
type Logger struct {
	level         logger.LogLevel
	slowThreshold time.Duration
}

// NewLogger creates a logger that warns on statements slower than slow
func NewLogger(slow time.Duration) *Logger {
	return &Logger{level: logger.Warn, slowThreshold: slow}
}

func (l *Logger) LogMode(level logger.LogLevel) logger.Interface {
	nl := *l
	nl.level = level
	return &nl
}

func (l *Logger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		log.Info().Msgf("[gorm] "+msg, data...)
	}
}

func (l *Logger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		log.Warn().Msgf("[gorm] "+msg, data...)
	}
}

func (l *Logger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		log.Error().Msgf("[gorm] "+msg, data...)
	}
}

func (l *Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	var event *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		event = log.Error().Err(err)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		event = log.Warn().Bool("slow_query", true)
	case l.level >= logger.Info:
		event = log.Debug()
	default:
		return
	}
	event.Dur("duration", elapsed).Int64("rows", rows).Str("query", sql).Msg("[gorm] statement")
}
