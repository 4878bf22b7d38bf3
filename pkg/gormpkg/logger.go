package gormpkg

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SlowThreshold is the query duration above which queries are logged at warn level.
const SlowThreshold = 200 * time.Millisecond

// Logger writes GORM logs to the zerolog logger of the query context, so that
// queries carry the request fields.
type Logger struct {
	level logger.LogLevel
}

var _ logger.Interface = Logger{}

// NewLogger returns a Logger for the given level name: silent, error, warn or info.
// Unknown names select error.
func NewLogger(level string) Logger {
	switch level {
	case "info":
		return Logger{level: logger.Info}
	case "warn":
		return Logger{level: logger.Warn}
	case "silent":
		return Logger{level: logger.Silent}
	default:
		return Logger{level: logger.Error}
	}
}

// LogMode returns a copy of l with the given level.
func (l Logger) LogMode(level logger.LogLevel) logger.Interface {
	l.level = level
	return l
}

func (l Logger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		zerolog.Ctx(ctx).Info().Msgf(msg, args...)
	}
}

func (l Logger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		zerolog.Ctx(ctx).Warn().Msgf(msg, args...)
	}
}

func (l Logger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		zerolog.Ctx(ctx).Error().Msgf(msg, args...)
	}
}

// Trace logs a finished query.
//
// Missing records are expected by the repositories and are not errors here.
func (l Logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	zl := zerolog.Ctx(ctx)

	var e *zerolog.Event

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		e = zl.Error().Err(err)
	case elapsed > SlowThreshold && l.level >= logger.Warn:
		e = zl.Warn().Bool("slow", true)
	case l.level >= logger.Info:
		e = zl.Debug()
	default:
		return
	}

	sql, rows := fc()
	e.Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("gorm query")
}
