// pattern: Imperative Shell

package appstate

import (
	"sync/atomic"

	"unigen/internal/logging"
)

// HeadlessWindow stands in for a real window when none is attached. Focus
// requests are logged and counted.
type HeadlessWindow struct {
	logger  *logging.ScopedLogger
	focused atomic.Int64
}

func NewHeadlessWindow(logger *logging.ScopedLogger) *HeadlessWindow {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &HeadlessWindow{logger: logger}
}

func (w *HeadlessWindow) Focus() error {
	n := w.focused.Add(1)
	w.logger.Info("focus requested", "count", n)
	return nil
}

// Focused returns how many times Focus was called.
func (w *HeadlessWindow) Focused() int64 {
	return w.focused.Load()
}
