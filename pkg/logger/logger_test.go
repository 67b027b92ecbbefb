package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickweave/clickweave/pkg/logger"
)

// capture points the default logger at a debug-level log file.
func capture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clickweave.log")
	prev := logger.GetDefaultLogger()
	logger.InitLogger(&logger.LoggerConfig{Level: "debug", File: path})
	t.Cleanup(func() { logger.SetDefault(prev) })
	return path
}

func lastEntry(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func announceEmergency(ctx context.Context) {
	logger.Warn(ctx, "Emergency stop triggered!")
}

type stopper struct{}

func (stopper) claimAndStop(ctx context.Context) {
	announceEmergency(ctx)
}

func TestCallerNameSkipsLoggerFrames(t *testing.T) {
	path := capture(t)

	stopper{}.claimAndStop(context.Background())
	assert.Equal(t, "[announceEmergency] Emergency stop triggered!", lastEntry(t, path)["msg"])

	logger.GetDefaultLogger().Info(context.Background(), "direct %d", 7)
	assert.Equal(t, "[TestCallerNameSkipsLoggerFrames] direct 7", lastEntry(t, path)["msg"])
}

func TestContextFields(t *testing.T) {
	path := capture(t)

	ctx := logger.WithSessionID(logger.WithTraceID(context.Background(), "trace-1"), "sess-9")
	logger.Error(ctx, "boom")
	entry := lastEntry(t, path)
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "sess-9", entry["session_id"])
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "trace-1", logger.GetTraceID(ctx))

	logger.Debug(context.Background(), "quiet")
	assert.NotContains(t, lastEntry(t, path), "trace_id")
}
