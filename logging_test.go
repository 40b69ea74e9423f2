package reactor

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggerFiltersByLevel(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer f.Close()

	l := NewDefaultLogger(LogWarn, f)
	l.Log(LogEntry{Level: LogDebug, Category: "test", Message: "should not appear"})
	l.Log(LogEntry{Level: LogError, Category: "test", Message: "should appear"})

	require.NoError(t, f.Sync())
	_, err = f.Seek(0, 0)
	require.NoError(t, err)

	content, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	s := string(content)
	assert.NotContains(t, s, "should not appear")
	assert.Contains(t, s, "should appear")
}

func TestDefaultLoggerJSONFormat(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer f.Close()

	l := NewDefaultLogger(LogInfo, f)
	l.Log(LogEntry{Level: LogInfo, Category: "poller", Message: "wake"})

	require.NoError(t, f.Sync())

	content, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	line := strings.TrimSpace(string(content))
	assert.True(t, strings.HasPrefix(line, "{"))
	assert.Contains(t, line, `"category":"poller"`)
	assert.Contains(t, line, `"message":"wake"`)
}

func TestNoOpLoggerNeverEnabled(t *testing.T) {
	l := NoOpLogger{}
	assert.False(t, l.IsEnabled(LogDebug))
	assert.False(t, l.IsEnabled(LogError))
	l.Log(LogEntry{Level: LogError, Message: "discarded"}) // must not panic
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LogDebug.String())
	assert.Equal(t, "INFO", LogInfo.String())
	assert.Equal(t, "WARN", LogWarn.String())
	assert.Equal(t, "ERROR", LogError.String())
}

func TestLogEntryTimestampDefaulted(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer f.Close()

	l := NewDefaultLogger(LogDebug, f)
	l.Log(LogEntry{Level: LogInfo, Message: "x"})

	content, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Contains(t, string(content), time.Now().Format("2006-01-02"))
}
