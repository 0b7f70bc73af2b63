package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/farmbid-backend/pkg/logger"
)

// QueryLogger reports failed statements at error level and statements
// slower than slow at warn level through logg. Missing rows, duplicate keys
// and canceled contexts are expected outcomes and stay at debug.
func QueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	return queryLogger{logg: logg, slow: slow}
}

type queryLogger struct {
	logg *logger.Logger
	slow time.Duration
}

func (q queryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return q }

func (q queryLogger) Info(ctx context.Context, msg string, args ...any) {
	q.logg.Debug(q.logg.WithField(ctx, "detail", fmt.Sprintf(msg, args...)), "db.info")
}

func (q queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	q.logg.Warn(q.logg.WithField(ctx, "detail", fmt.Sprintf(msg, args...)), "db.warn")
}

func (q queryLogger) Error(ctx context.Context, msg string, args ...any) {
	q.logg.Error(ctx, "db.error", errors.New(fmt.Sprintf(msg, args...)))
}

func (q queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	slow := q.slow > 0 && elapsed > q.slow
	if err == nil && !slow {
		return
	}

	statement, rows := fc()
	ctx = q.logg.WithFields(ctx, map[string]any{
		"sql":        statement,
		"rows":       rows,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	switch {
	case err != nil && expected(err):
		q.logg.Debug(q.logg.WithField(ctx, "error", err.Error()), "db.query_rejected")
	case err != nil:
		q.logg.Error(ctx, "db.query_failed", err)
	default:
		q.logg.Warn(ctx, "db.slow_query")
	}
}

func expected(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, gorm.ErrDuplicatedKey) ||
		errors.Is(err, context.Canceled) ||
		IsUniqueViolation(err, "")
}
