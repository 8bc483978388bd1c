package testutil

import (
	"context"
	"sync"

	"github.com/sbportal/editlock/pkg/observability/logger"
)

// MockLogger is a test logger that captures log entries for assertion in
// tests. Safe for concurrent use.
type MockLogger struct {
	mu   sync.Mutex
	logs []LogEntry
}

// LogEntry represents a single log entry captured by MockLogger.
type LogEntry struct {
	Level  string
	Msg    string
	Fields map[string]interface{}
}

// Debug records a debug-level log entry.
func (m *MockLogger) Debug(msg string, args ...any) {
	m.record("debug", msg, args)
}

// Info records an info-level log entry.
func (m *MockLogger) Info(msg string, args ...any) {
	m.record("info", msg, args)
}

// Warn records a warn-level log entry.
func (m *MockLogger) Warn(msg string, args ...any) {
	m.record("warn", msg, args)
}

// Error records an error-level log entry.
func (m *MockLogger) Error(msg string, args ...any) {
	m.record("error", msg, args)
}

// With returns the same logger.
func (m *MockLogger) With(args ...any) logger.Logger {
	return m
}

// WithContext returns the same logger.
func (m *MockLogger) WithContext(ctx context.Context) logger.Logger {
	return m
}

// Entries returns a copy of the captured log entries.
func (m *MockLogger) Entries() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LogEntry(nil), m.logs...)
}

func (m *MockLogger) record(level, msg string, args []any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, LogEntry{Level: level, Msg: msg, Fields: argsToMap(args)})
}

func argsToMap(args []any) map[string]interface{} {
	fields := make(map[string]interface{})
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	return fields
}
