package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// queryLogger routes GORM's statement log into the service logger. Only
// failed and slow statements are reported.
type queryLogger struct {
	logg  *logger.Logger
	slow  time.Duration
	level gormlogger.LogLevel
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLogger{logg: logg, slow: slow, level: gormlogger.Warn}
}

func (l *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	out := *l
	out.level = level
	return &out
}

func (l *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logg.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logg.Error(ctx, fmt.Sprintf(msg, args...), nil)
	}
}

func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	notFound := errors.Is(err, gorm.ErrRecordNotFound)
	slow := l.slow > 0 && elapsed > l.slow
	if (err == nil || notFound) && !slow {
		return
	}

	sql, rows := fc()
	logCtx := l.logg.WithFields(ctx, map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	})
	switch {
	case err != nil && !notFound && l.level >= gormlogger.Error:
		l.logg.Error(logCtx, "db.query_failed", err)
	case slow && l.level >= gormlogger.Warn:
		l.logg.Warn(logCtx, "db.slow_query")
	}
}
