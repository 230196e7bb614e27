package hub

import (
	"log/slog"
	"sync"
	"testing"
)

func TestLogger_Interface(t *testing.T) {
	// *slog.Logger must satisfy Logger
	var _ Logger = slog.Default()
}

func TestDefaultLogger(t *testing.T) {
	logger := defaultLogger()

	if logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

// mockLogger records every logged message by level.
type mockLogger struct {
	mu      sync.Mutex
	entries map[string][]string
}

func newMockLogger() *mockLogger {
	return &mockLogger{entries: make(map[string][]string)}
}

func (l *mockLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[level] = append(l.entries[level], msg)
}

func (l *mockLogger) Debug(msg string, args ...any) { l.record("debug", msg) }
func (l *mockLogger) Info(msg string, args ...any)  { l.record("info", msg) }
func (l *mockLogger) Warn(msg string, args ...any)  { l.record("warn", msg) }
func (l *mockLogger) Error(msg string, args ...any) { l.record("error", msg) }

// logged reports whether msg was logged at level.
func (l *mockLogger) logged(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.entries[level] {
		if m == msg {
			return true
		}
	}
	return false
}

func TestMockLogger_Records(t *testing.T) {
	var logger Logger = newMockLogger()
	mock := logger.(*mockLogger)

	logger.Debug("test debug", "key1", "value1")
	logger.Info("test info", "key2", "value2")
	logger.Warn("test warn", "key3", "value3")
	logger.Error("test error", "key4", "value4")

	for level, msg := range map[string]string{
		"debug": "test debug",
		"info":  "test info",
		"warn":  "test warn",
		"error": "test error",
	} {
		if !mock.logged(level, msg) {
			t.Errorf("%s message %q not recorded", level, msg)
		}
	}
}
