// pattern: Imperative Shell

// Package appstate is the process-wide state of a primary instance: the
// project it has locked, its window and whether startup finished. It is built
// once in main and passed to whoever needs it.
package appstate

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"unigen/internal/filelock"
	"unigen/internal/logging"
)

const (
	// MetaDir is the per-project metadata directory.
	MetaDir = "ugmeta"
	// ProjectLockName is the lock file inside MetaDir.
	ProjectLockName = "unigen.pid"
)

// Window is the UI surface of the instance.
type Window interface {
	Focus() error
}

// Context holds the project lock slot, the window and the initialised flag.
type Context struct {
	mu          sync.RWMutex
	window      Window
	initialized bool
	project     *filelock.Handle
	projectDir  string
	logger      *logging.ScopedLogger
}

// New returns an empty Context. A nil window means headless.
func New(window Window, logger *logging.ScopedLogger) *Context {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if window == nil {
		window = NewHeadlessWindow(logger)
	}
	return &Context{window: window, logger: logger}
}

// ProjectLockPath returns <dir>/ugmeta/unigen.pid.
func ProjectLockPath(dir string) string {
	return filepath.Join(dir, MetaDir, ProjectLockName)
}

func ensureProjectLockPath(dir string) (string, error) {
	path := ProjectLockPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	return path, nil
}

// TryLockProject reports whether dir could be locked right now. The probe
// lock is released before returning.
func (c *Context) TryLockProject(dir string) bool {
	path, err := ensureProjectLockPath(dir)
	if err != nil {
		c.logger.Warn("project lock unavailable", "project", dir, "error", err)
		return false
	}
	h, ok := filelock.Acquire(path)
	if !ok {
		return false
	}
	_ = h.Release()
	return true
}

// LockProject locks dir and keeps the lock until UnlockProject, another
// successful LockProject, or process exit. A previously held project lock is
// released when the new one is stored. On failure the slot is unchanged.
func (c *Context) LockProject(dir string) bool {
	path, err := ensureProjectLockPath(dir)
	if err != nil {
		c.logger.Warn("project lock unavailable", "project", dir, "error", err)
		return false
	}
	h, err := filelock.TryAcquire(path)
	if err != nil {
		c.logger.Warn("project lock unavailable", "project", dir, "error", err)
		return false
	}
	if h == nil {
		c.logger.Info("project locked by another instance", "project", dir, "holder_pid", filelock.ReadPID(path))
		return false
	}

	c.mu.Lock()
	old := c.project
	c.project = h
	c.projectDir = dir
	c.mu.Unlock()

	if old != nil {
		_ = old.Release()
	}
	c.logger.Info("project locked", "project", dir)
	return true
}

// UnlockProject releases the held project lock and reports whether one was
// held.
func (c *Context) UnlockProject() bool {
	c.mu.Lock()
	h := c.project
	c.project = nil
	c.projectDir = ""
	c.mu.Unlock()

	if h == nil {
		return false
	}
	if err := h.Release(); err != nil {
		c.logger.Warn("project unlock failed", "lock", h.Path(), "error", err)
	}
	return true
}

// IsProjectLocked reports whether a project lock is held.
func (c *Context) IsProjectLocked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.project != nil
}

// LockedProject returns the directory of the held project lock, or "".
func (c *Context) LockedProject() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.projectDir
}

func (c *Context) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

func (c *Context) SetInitialized(v bool) {
	c.mu.Lock()
	c.initialized = v
	c.mu.Unlock()
}

// FocusIfProject brings the window forward when dir is the locked project.
func (c *Context) FocusIfProject(dir string) bool {
	c.mu.RLock()
	match := c.project != nil && samePath(c.projectDir, dir)
	window := c.window
	c.mu.RUnlock()

	if !match {
		return false
	}
	if err := window.Focus(); err != nil {
		c.logger.Warn("focus failed", "project", dir, "error", err)
		return false
	}
	return true
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}
