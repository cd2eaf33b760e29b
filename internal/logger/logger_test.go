package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesPlainLogFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logFile := filepath.Join(t.TempDir(), "logs", "archivist.log")
	closer, err := Setup("info", logFile)
	require.NoError(t, err)

	slog.Info("Archived conversation", "chat_id", "89ecea6c")
	slog.Debug("hidden at info level")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Archived conversation")
	assert.Contains(t, string(data), "chat_id=89ecea6c")
	assert.NotContains(t, string(data), "hidden at info level")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestCycleID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetCycleID(ctx))

	id := NewCycleID()
	ctx = WithCycleID(ctx, id)
	assert.Equal(t, id, GetCycleID(ctx))
	assert.Len(t, id, 26)
	assert.False(t, strings.ContainsAny(id, "-_ "))
	assert.NotNil(t, From(ctx))
}
