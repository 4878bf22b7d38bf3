package gormpkg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func captureContext() (context.Context, *bytes.Buffer) {
	var buf bytes.Buffer
	l := zerolog.New(&buf).With().Str("request_id", "req-1").Logger()

	return l.WithContext(context.Background()), &buf
}

func query() (string, int64) {
	return "UPDATE `account_models` SET `balance`=1", 1
}

func TestLoggerTrace(t *testing.T) {
	testCases := []struct {
		name      string
		level     string
		elapsed   time.Duration
		err       error
		wantLevel string
	}{
		{name: "Error", level: "error", err: errors.New("boom"), wantLevel: "error"},
		{name: "RecordNotFound", level: "error", err: gorm.ErrRecordNotFound},
		{name: "Silent", level: "silent", err: errors.New("boom")},
		{name: "SlowAtWarn", level: "warn", elapsed: 2 * SlowThreshold, wantLevel: "warn"},
		{name: "SlowAtError", level: "error", elapsed: 2 * SlowThreshold},
		{name: "Info", level: "info", wantLevel: "debug"},
		{name: "FastAtWarn", level: "warn"},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			ctx, buf := captureContext()

			NewLogger(tc.level).Trace(ctx, time.Now().Add(-tc.elapsed), query, tc.err)

			if tc.wantLevel == "" {
				require.Zero(t, buf.Len(), buf.String())
				return
			}

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			require.Equal(t, tc.wantLevel, entry["level"])
			require.Equal(t, "req-1", entry["request_id"])
			require.Equal(t, "gorm query", entry["message"])

			sql, _ := query()
			require.Equal(t, sql, entry["sql"])
		})
	}
}

func TestLoggerLogMode(t *testing.T) {
	ctx, buf := captureContext()

	l := NewLogger("silent").LogMode(logger.Warn)

	l.Info(ctx, "ignored %d", 1)
	require.Zero(t, buf.Len())

	l.Warn(ctx, "slow %s", "thing")
	require.Contains(t, buf.String(), "slow thing")
}
