// pattern: Imperative Shell

package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NopLogger returns a logger that discards all output.
func NopLogger() *ScopedLogger {
	return &ScopedLogger{}
}

// TestLogManager is the in-memory LoggerProvider: every line, debug
// included, is decoded onto Channel instead of written to a file.
type TestLogManager struct {
	sink   *ChannelSink
	scopes *scopeCache
}

// NewTestLogManager keeps up to bufferSize undrained entries.
func NewTestLogManager(bufferSize int) *TestLogManager {
	sink := NewChannelSink(bufferSize)
	core := zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), sink, zapcore.DebugLevel)
	return &TestLogManager{
		sink:   sink,
		scopes: newScopeCache(zap.New(core), zapcore.DebugLevel),
	}
}

func (m *TestLogManager) For(scope string) *ScopedLogger {
	return m.scopes.get(scope)
}

// Channel yields entries in write order. It is closed by Close.
func (m *TestLogManager) Channel() <-chan LogEntry {
	return m.sink.Entries()
}

func (m *TestLogManager) Close() error {
	return m.sink.Close()
}
