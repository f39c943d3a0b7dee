// pattern: Imperative Shell

package shutdown

import (
	"os"
	"sync"
)

// Trigger is a one-shot stop signal with a single receiver. Fire delivers at
// most once. When the receiver has gone away (Detach), firing exits the
// process instead, since nothing else would ever stop it.
type Trigger struct {
	mu       sync.Mutex
	ch       chan struct{}
	fired    bool
	detached bool
	exit     func(code int)
}

// NewTrigger returns an armed trigger.
func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{}), exit: os.Exit}
}

// C is closed when the trigger fires.
func (t *Trigger) C() <-chan struct{} {
	return t.ch
}

// Fire delivers the stop signal. It reports false if the trigger had already
// fired.
func (t *Trigger) Fire() bool {
	t.mu.Lock()
	if t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	detached := t.detached
	if !detached {
		close(t.ch)
	}
	t.mu.Unlock()

	if detached {
		t.exit(0)
	}
	return true
}

// Detach records that nobody receives from C anymore.
func (t *Trigger) Detach() {
	t.mu.Lock()
	t.detached = true
	t.mu.Unlock()
}

// Fired reports whether Fire has been called.
func (t *Trigger) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}
