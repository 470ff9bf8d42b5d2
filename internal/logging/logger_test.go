package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabiq-dev/tabiq/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"invalid", InfoLevel}, // default
		{"", InfoLevel},        // default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseLogLevel(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestNewLoggerStdout(t *testing.T) {
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stdout",
	}

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.Equal(t, InfoLevel, logger.level)
	assert.Equal(t, "text", logger.format)
	assert.Equal(t, os.Stdout, logger.output)
	assert.Nil(t, logger.file)
}

func TestNewLoggerStderr(t *testing.T) {
	cfg := config.LoggingConfig{
		Level:  "debug",
		Format: "json",
		Output: "stderr",
	}

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.Equal(t, DebugLevel, logger.level)
	assert.Equal(t, "json", logger.format)
	assert.Equal(t, os.Stderr, logger.output)
	assert.True(t, logger.showCaller)
}

func TestNewLoggerFile(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "test.log")

	cfg := config.LoggingConfig{
		Level:  "warn",
		Format: "text",
		Output: "file",
		File:   logFile,
	}

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.Equal(t, WarnLevel, logger.level)
	assert.NotNil(t, logger.file)

	logger.Close()
}

func TestNewLoggerFileInvalidPath(t *testing.T) {
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "file",
		File:   "",
	}

	logger, err := NewLogger(cfg)
	assert.Error(t, err)
	assert.Nil(t, logger)
	assert.Contains(t, err.Error(), "log file path is required")
}

func TestNewLoggerInvalidOutput(t *testing.T) {
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "invalid",
	}

	logger, err := NewLogger(cfg)
	assert.Error(t, err)
	assert.Nil(t, logger)
	assert.Contains(t, err.Error(), "invalid log output")
}

func TestLoggerWithField(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:  InfoLevel,
		format: "json",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	newLogger := logger.WithField("query_id", "abc-123")
	newLogger.Info("test message")

	var entry LogEntry
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err)

	assert.Equal(t, "test message", entry.Message)
	assert.Equal(t, "abc-123", entry.Fields["query_id"])
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:  InfoLevel,
		format: "json",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	fields := map[string]interface{}{
		"intent":   "filter",
		"rows":     42,
		"fallback": true,
	}

	newLogger := logger.WithFields(fields)
	newLogger.Info("query processed")

	var entry LogEntry
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err)

	assert.Equal(t, "query processed", entry.Message)
	assert.Equal(t, "filter", entry.Fields["intent"])
	assert.Equal(t, float64(42), entry.Fields["rows"]) // JSON unmarshals numbers as float64
	assert.Equal(t, true, entry.Fields["fallback"])
}

func TestLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:  InfoLevel,
		format: "json",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	logger.WithComponent("sandbox").Info("plan executed")

	var entry LogEntry
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err)

	assert.Equal(t, "sandbox", entry.Fields["component"])
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:  InfoLevel,
		format: "json",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	testErr := assert.AnError
	newLogger := logger.WithError(testErr)
	newLogger.Info("test message")

	var entry LogEntry
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err)

	assert.Equal(t, testErr.Error(), entry.Fields["error"])
}

func TestLoggerWithErrorNil(t *testing.T) {
	logger := &Logger{
		level:  InfoLevel,
		format: "json",
		output: os.Stderr,
		fields: make(map[string]interface{}),
	}

	newLogger := logger.WithError(nil)
	assert.Equal(t, logger, newLogger)
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:  WarnLevel,
		format: "json",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)

	var warnEntry LogEntry
	err := json.Unmarshal([]byte(lines[0]), &warnEntry)
	require.NoError(t, err)
	assert.Equal(t, "WARN", warnEntry.Level)

	var errorEntry LogEntry
	err = json.Unmarshal([]byte(lines[1]), &errorEntry)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", errorEntry.Level)
}

func TestLoggerFormattedMessages(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:  InfoLevel,
		format: "json",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	logger.Infof("loaded %d rows from %s", 1500, "sales.csv")

	var entry LogEntry
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err)

	assert.Equal(t, "loaded 1500 rows from sales.csv", entry.Message)
}

func TestLoggerErrorWithErr(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:  InfoLevel,
		format: "json",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	testErr := assert.AnError
	logger.ErrorWithErr("execution failed", testErr)

	var entry LogEntry
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err)

	assert.Equal(t, "execution failed", entry.Message)
	assert.Equal(t, testErr.Error(), entry.Error)
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:      InfoLevel,
		format:     "text",
		output:     &buf,
		fields:     map[string]interface{}{"intent": "aggregate"},
		showCaller: false,
	}

	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "INFO")
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "intent=aggregate")
}

func TestLoggerTextFormatWithCaller(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		level:      InfoLevel,
		format:     "text",
		output:     &buf,
		fields:     make(map[string]interface{}),
		showCaller: true,
	}

	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "logger_test.go:")
}

func TestLoggerClose(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "test.log")

	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "file",
		File:   logFile,
	}

	logger, err := NewLogger(cfg)
	require.NoError(t, err)

	logger.Info("test message")

	err = logger.Close()
	assert.NoError(t, err)

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test message")
}

func TestGlobalLoggingFunctions(t *testing.T) {
	var buf bytes.Buffer

	globalLogger = &Logger{
		level:  InfoLevel,
		format: "json",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	Info("info message")
	Warn("warn message")
	Error("error message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)

	for i, expectedLevel := range []string{"INFO", "WARN", "ERROR"} {
		var entry LogEntry
		err := json.Unmarshal([]byte(lines[i]), &entry)
		require.NoError(t, err)
		assert.Equal(t, expectedLevel, entry.Level)
	}
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer

	globalLogger = &Logger{
		level:  DebugLevel,
		format: "json",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	err := TimedOperation("synthesize", func() error {
		time.Sleep(1 * time.Millisecond)
		return nil
	})

	assert.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)

	var startEntry LogEntry
	err = json.Unmarshal([]byte(lines[0]), &startEntry)
	require.NoError(t, err)
	assert.Contains(t, startEntry.Message, "Starting operation")
	assert.Equal(t, "synthesize", startEntry.Fields["operation"])

	var endEntry LogEntry
	err = json.Unmarshal([]byte(lines[1]), &endEntry)
	require.NoError(t, err)
	assert.Contains(t, endEntry.Message, "Operation completed successfully")
	assert.NotNil(t, endEntry.Fields["duration"])
}

func TestTimedOperationWithError(t *testing.T) {
	var buf bytes.Buffer

	globalLogger = &Logger{
		level:  DebugLevel,
		format: "json",
		output: &buf,
		fields: make(map[string]interface{}),
	}

	testErr := assert.AnError

	err := TimedOperation("execute", func() error {
		return testErr
	})

	assert.Equal(t, testErr, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)

	var errorEntry LogEntry
	err = json.Unmarshal([]byte(lines[1]), &errorEntry)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", errorEntry.Level)
	assert.Contains(t, errorEntry.Message, "Operation failed")
	assert.Equal(t, testErr.Error(), errorEntry.Error)
}
