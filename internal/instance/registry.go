// pattern: Imperative Shell

// Package instance answers whether a singleton role is already running on
// this host, and which process it is, using a well-known lock file.
package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"unigen/internal/filelock"
	"unigen/internal/logging"
)

// ControlPlaneLockName is the lock file guarding the control-plane singleton.
const ControlPlaneLockName = "unigen-mqtt-service.lock"

// ErrAlreadyRunning is returned by Acquire when another process holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Status is a point-in-time view of a singleton.
type Status struct {
	Running  bool
	PID      uint32
	LockPath string
}

// Registry locates the lock file for one singleton role.
type Registry struct {
	lockPath string
	logger   *logging.ScopedLogger
}

// NewRegistry returns a Registry whose lock file is dir/name. An empty dir
// means the system temp directory, which every process on the host shares.
func NewRegistry(dir, name string, logger *logging.ScopedLogger) *Registry {
	if dir == "" {
		dir = os.TempDir()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Registry{
		lockPath: filepath.Join(dir, name),
		logger:   logger,
	}
}

// ControlPlane returns the registry for the control-plane role.
func ControlPlane(dir string, logger *logging.ScopedLogger) *Registry {
	return NewRegistry(dir, ControlPlaneLockName, logger)
}

// LockPath returns the lock file path.
func (r *Registry) LockPath() string {
	return r.lockPath
}

// Acquire takes the singleton lock for the calling process. The caller owns
// the returned handle and must keep it alive for as long as it serves.
func (r *Registry) Acquire() (*filelock.Handle, error) {
	h, err := filelock.TryAcquire(r.lockPath)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if h == nil {
		return nil, ErrAlreadyRunning
	}
	if err := h.PIDError(); err != nil {
		r.logger.Warn("lock held but PID not recorded", "lock", r.lockPath, "error", err)
	}
	return h, nil
}

// IsRunning reports whether a live process holds the lock.
func (r *Registry) IsRunning() bool {
	running := filelock.IsRunning(r.lockPath)
	r.logger.Debug("singleton check", "lock", r.lockPath, "running", running)
	return running
}

// PID returns the PID recorded in the lock file, or 0 if none. The value may
// be stale when no process holds the lock; pair it with IsRunning.
func (r *Registry) PID() uint32 {
	return filelock.ReadPID(r.lockPath)
}

// Status combines IsRunning and PID.
func (r *Registry) Status() Status {
	running := r.IsRunning()
	var pid uint32
	if running {
		pid = r.PID()
	}
	return Status{Running: running, PID: pid, LockPath: r.lockPath}
}

// Cleanup removes a stale lock file left by a crashed holder so its PID is no
// longer reported. It refuses while a live process holds the lock.
func (r *Registry) Cleanup() (bool, error) {
	if _, err := os.Stat(r.lockPath); os.IsNotExist(err) {
		return false, nil
	}

	h, err := r.Acquire()
	if err != nil {
		return false, err
	}
	defer func() { _ = h.Release() }()

	if err := os.Remove(r.lockPath); err != nil {
		return false, fmt.Errorf("remove stale lock file: %w", err)
	}
	r.logger.Info("removed stale lock file", "lock", r.lockPath)
	return true, nil
}
