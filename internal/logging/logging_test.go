package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestTeeWritesConsoleAndFile(t *testing.T) {
	var console, file bytes.Buffer
	logger := NewWithWriters(Config{Level: "info"}, zapcore.AddSync(&console), zapcore.AddSync(&file))

	logger.Info("tab opened", zap.String("namespace", "ops"))
	logger.Debug("hidden")
	_ = logger.Sync()

	require.Contains(t, console.String(), "tab opened")
	require.NotContains(t, console.String(), "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(file.Bytes()), &entry))
	require.Equal(t, "tab opened", entry["message"])
	require.Equal(t, "info", entry["level"])
	require.Equal(t, "ops", entry["namespace"])
}

func TestDevelopmentConsoleIsHumanReadable(t *testing.T) {
	var console bytes.Buffer
	logger := NewWithWriters(Config{Development: true}, zapcore.AddSync(&console), nil)

	logger.Debug("countdown", zap.Int("seconds", 9))
	_ = logger.Sync()

	out := console.String()
	require.Contains(t, out, "countdown")
	require.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
}

func TestSensitiveFieldsRedacted(t *testing.T) {
	var file bytes.Buffer
	logger := NewWithWriters(Config{}, zapcore.AddSync(&bytes.Buffer{}), zapcore.AddSync(&file))

	logger.With(zap.String("refresh_token", "rt-secret")).
		Info("sign-in", zap.String("access_token", "at-secret"), zap.String("username", "ops"), zap.String("password", "pw"))
	_ = logger.Sync()

	out := file.String()
	require.NotContains(t, out, "at-secret")
	require.NotContains(t, out, "rt-secret")
	require.NotContains(t, out, `"pw"`)
	require.Contains(t, out, Redacted)
	require.Contains(t, out, `"username":"ops"`)
}

func TestFileWriterRotatesIntoPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessionwatch.log")
	logger := New(Config{File: path, Level: "warn"})
	logger.Warn("store unavailable")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "store unavailable")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG", zapcore.InfoLevel))
	require.Equal(t, zapcore.WarnLevel, ParseLevel(" warning ", zapcore.InfoLevel))
	require.Equal(t, zapcore.ErrorLevel, ParseLevel("error", zapcore.InfoLevel))
	require.Equal(t, zapcore.InfoLevel, ParseLevel("verbose", zapcore.InfoLevel))
}

func TestIsSensitiveKey(t *testing.T) {
	require.True(t, IsSensitiveKey("Authorization"))
	require.True(t, IsSensitiveKey("access_token"))
	require.False(t, IsSensitiveKey("namespace"))
}
