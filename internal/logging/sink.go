// pattern: Imperative Shell

package logging

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"
)

var errSinkClosed = errors.New("logging: write to closed channel sink")

// ChannelSink is a zapcore.WriteSyncer that turns JSON log lines into
// LogEntry values on a bounded channel. A full channel loses its oldest
// entry, so Write never blocks the logger.
type ChannelSink struct {
	mu      sync.Mutex
	entries chan LogEntry
	closed  bool
}

func NewChannelSink(bufferSize int) *ChannelSink {
	return &ChannelSink{entries: make(chan LogEntry, bufferSize)}
}

func (s *ChannelSink) Write(p []byte) (int, error) {
	var line zapLine
	if err := json.Unmarshal(p, &line); err != nil {
		return len(p), nil // not ours to fail on
	}
	entry := line.entry()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errSinkClosed
	}
	for !s.offer(entry) {
		select {
		case <-s.entries:
		default:
		}
	}
	return len(p), nil
}

// offer must be called with mu held.
func (s *ChannelSink) offer(e LogEntry) bool {
	if cap(s.entries) == 0 {
		return true
	}
	select {
	case s.entries <- e:
		return true
	default:
		return false
	}
}

func (s *ChannelSink) Sync() error { return nil }

// Close ends the stream; later writes fail. Calling it again is a no-op.
func (s *ChannelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.entries)
	}
	return nil
}

func (s *ChannelSink) Entries() <-chan LogEntry {
	return s.entries
}

// zapLine is one line written by the JSON encoder from jsonEncoderConfig.
type zapLine struct {
	Msg    string
	Level  string
	Logger string
	TS     float64
	Extra  map[string]any
}

func (l *zapLine) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.Msg, _ = raw["msg"].(string)
	l.Level, _ = raw["level"].(string)
	l.Logger, _ = raw["logger"].(string)
	l.TS, _ = raw["ts"].(float64)
	for _, k := range []string{"msg", "level", "logger", "ts", "caller", "stacktrace"} {
		delete(raw, k)
	}
	l.Extra = raw
	return nil
}

func (l zapLine) entry() LogEntry {
	e := LogEntry{
		Timestamp: time.Now(),
		Level:     "INFO",
		Scope:     "app",
		Message:   l.Msg,
		Fields:    l.Extra,
	}
	if l.Level != "" {
		e.Level = ParseLevel(l.Level)
	}
	if l.Logger != "" {
		e.Scope = l.Logger
	}
	if l.TS > 0 {
		sec, frac := math.Modf(l.TS)
		e.Timestamp = time.Unix(int64(sec), int64(frac*1e9))
	}
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	return e
}
