package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"

	"glancesync/internal/ctxkeys"
	logger2 "glancesync/internal/logger"
)

func TestGormLoggerTrace(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewGormLogger(logger2.NewWithWriter(&buf, zerolog.DebugLevel))
	ctx, traceID := ctxkeys.WithTraceID(context.Background())
	query := func() (string, int64) { return "SELECT 1", 1 }

	t.Run("record_not_found_is_quiet", func(t *testing.T) {
		buf.Reset()
		l.Trace(ctx, time.Now(), query, logger.ErrRecordNotFound)
		assert.Empty(t, buf.String())
	})

	t.Run("error_logged_with_trace", func(t *testing.T) {
		buf.Reset()
		l.Trace(ctx, time.Now(), query, errors.New("disk I/O error"))
		assert.Contains(t, buf.String(), "SQL执行错误")
		assert.Contains(t, buf.String(), traceID)
		assert.Contains(t, buf.String(), `"component":"storage"`)
	})

	t.Run("slow_query_uses_threshold", func(t *testing.T) {
		buf.Reset()
		l.Trace(ctx, time.Now().Add(-time.Second), query, nil)
		assert.Contains(t, buf.String(), "慢SQL查询")
		assert.Contains(t, buf.String(), "200ms")

		buf.Reset()
		l.Trace(ctx, time.Now(), query, nil)
		assert.Empty(t, buf.String(), "fast queries are not logged at warn level")
	})

	t.Run("log_mode_returns_copy", func(t *testing.T) {
		buf.Reset()
		verbose := l.LogMode(logger.Info)
		verbose.Trace(ctx, time.Now(), query, nil)
		assert.Contains(t, buf.String(), "SELECT 1")
		assert.Equal(t, logger.Warn, l.LogLevel)

		buf.Reset()
		l.LogMode(logger.Silent).Trace(ctx, time.Now(), query, errors.New("ignored"))
		assert.Empty(t, buf.String())
	})
}
