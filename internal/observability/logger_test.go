// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/visverify/internal/config"
)

// syncBuffer is a goroutine safe buffer usable as a zapcore.WriteSyncer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Sync() error { return nil }

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestInitialize(t *testing.T) {
	t.Cleanup(ResetForTest)

	t.Run("should initialize a plain console logger off a terminal", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			Color:       "auto",
			ServiceName: "visverify",
		}, out, false)
		GetLogger().Named("runner").Info("Verification passed.", zap.String("plan", "map"))
		Sync()

		output := out.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "visverify.runner")
		assert.Contains(t, output, "Verification passed.")
		assert.Contains(t, output, `{"plan": "map"}`)
		assert.NotContains(t, output, "\x1b[")
	})

	t.Run("should colour levels when forced", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "console", Color: "always"}, out, false)
		GetLogger().Warn("Delay ignored.")
		Sync()

		assert.Contains(t, out.String(), "\x1b[")
		assert.Contains(t, out.String(), "WARN")
	})

	t.Run("should initialize json logger", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		}, out, true)
		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out.String()), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "This is a JSON message.", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("should respect the configured level", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, out, false)
		GetLogger().Info("dropped")
		GetLogger().Error("kept")
		Sync()

		assert.NotContains(t, out.String(), "dropped")
		assert.Contains(t, out.String(), "kept")
	})

	t.Run("should write to a rotated log file if configured", func(t *testing.T) {
		ResetForTest()
		logFile := filepath.Join(t.TempDir(), "visverify.log")

		Initialize(config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: logFile,
			MaxSize: 1,
		}, zapcore.AddSync(&syncBuffer{}), false)
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		// The file core always uses JSON.
		line := strings.TrimSpace(string(content))
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "This should go to the file.", entry["msg"])
	})

	t.Run("should only initialize once", func(t *testing.T) {
		ResetForTest()
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "First"}, out, false)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "Second"}, out, false)
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		Sync()

		assert.Contains(t, out.String(), "First")
		assert.NotContains(t, out.String(), "Second")
	})
}

func TestGetLogger(t *testing.T) {
	t.Cleanup(ResetForTest)

	t.Run("should return a fallback logger if not initialized", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
	})

	t.Run("should return the global logger after initialization", func(t *testing.T) {
		ResetForTest()
		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "GlobalTest"}, &syncBuffer{}, false)
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}

func TestColorEnabled(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		isTTY   bool
		noColor bool
		want    bool
	}{
		{name: "auto on a terminal", mode: "auto", isTTY: true, want: true},
		{name: "auto off a terminal", mode: "auto", isTTY: false, want: false},
		{name: "auto with NO_COLOR", mode: "auto", isTTY: true, noColor: true, want: false},
		{name: "always ignores NO_COLOR", mode: "always", isTTY: false, noColor: true, want: true},
		{name: "never on a terminal", mode: "never", isTTY: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.noColor {
				t.Setenv("NO_COLOR", "1")
			} else {
				t.Setenv("NO_COLOR", "")
				os.Unsetenv("NO_COLOR")
			}
			assert.Equal(t, tt.want, colorEnabled(tt.mode, tt.isTTY))
		})
	}
}

func TestIgnorableSyncError(t *testing.T) {
	assert.True(t, ignorableSyncError(&os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.EINVAL}))
	assert.True(t, ignorableSyncError(&os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.ENOTTY}))
	assert.False(t, ignorableSyncError(&os.PathError{Op: "sync", Path: "/var/log/visverify.log", Err: syscall.ENOSPC}))
	assert.False(t, ignorableSyncError(errors.New("disk quota exceeded")))
}
