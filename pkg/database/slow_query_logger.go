package database

import (
	"context"
	"errors"
	"time"

	"github.com/flowvault-go/pkg/logger"
	"github.com/flowvault-go/pkg/metrics"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQueryThreshold is used when no threshold is configured.
const DefaultSlowQueryThreshold = 200 * time.Millisecond

// SlowQueryLogger routes gorm's logging into the service logger and only
// reports failed statements and statements slower than the threshold.
type SlowQueryLogger struct {
	logger    logger.Logger
	threshold time.Duration
	level     gormlogger.LogLevel
}

func NewSlowQueryLogger(log logger.Logger, threshold time.Duration) *SlowQueryLogger {
	if threshold <= 0 {
		threshold = DefaultSlowQueryThreshold
	}
	return &SlowQueryLogger{
		logger:    log.Named("gorm"),
		threshold: threshold,
		level:     gormlogger.Warn,
	}
}

func (l *SlowQueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *SlowQueryLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger.Info(msg, "args", args)
	}
}

func (l *SlowQueryLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger.Warn(msg, "args", args)
	}
}

func (l *SlowQueryLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger.Error(msg, "args", args)
	}
}

func (l *SlowQueryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	metrics.DatabaseQueryDuration.Observe(elapsed.Seconds())

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.logger.Error("query failed", "sql", sql, "rows", rows, "duration", elapsed, "error", err)
	case elapsed > l.threshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.logger.Warn("slow query detected", "sql", sql, "rows", rows, "duration", elapsed, "threshold", l.threshold)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.logger.Debug("query", "sql", sql, "rows", rows, "duration", elapsed)
	}
}
