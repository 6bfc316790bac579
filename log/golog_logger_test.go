package log

import (
	"bytes"
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
)

func TestNewGologLogger(t *testing.T) {
	logger := NewGologLogger(golog.New())

	assert.NotNil(t, logger)
	assert.Equal(t, LogLevelInfo, logger.GetLevel())
}

func TestGologLogger_LevelControl(t *testing.T) {
	logger := NewGologLogger(golog.New())

	logger.SetLevel(LogLevelDebug)
	assert.Equal(t, LogLevelDebug, logger.GetLevel())

	logger.SetLevel(LogLevelNone)
	assert.Equal(t, LogLevelNone, logger.GetLevel())
}

func TestCustomLogger_WritesFormattedMessages(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCustomLogger(&buf, LogLevelDebug)

	logger.Info("node %s completed", "draft")
	assert.Contains(t, buf.String(), "node draft completed")
	assert.Contains(t, buf.String(), "[graph] ")
}

func TestCustomLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCustomLogger(&buf, LogLevelError)

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("hidden warn")
	assert.Empty(t, buf.String())

	logger.Error("visible %d", 42)
	assert.Contains(t, buf.String(), "visible 42")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("ERROR"))
	assert.Equal(t, LogLevelNone, ParseLevel("disable"))
	assert.Equal(t, LogLevelInfo, ParseLevel("whatever"))
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestDefaultLogger_Replace(t *testing.T) {
	prev := GetDefaultLogger()
	defer SetDefaultLogger(prev)

	SetDefaultLogger(nil)
	_, ok := GetDefaultLogger().(NoOpLogger)
	assert.True(t, ok)

	// must not panic
	Info("discarded %s", "message")
}
