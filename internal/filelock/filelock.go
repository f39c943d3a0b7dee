// pattern: Imperative Shell

// Package filelock is a non-blocking exclusive advisory lock on a file whose
// content is the holder's process ID. The operating system drops the lock when
// the holding process exits, including on a crash, so a held lock always means
// a live holder.
package filelock

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// Handle is a held lock. The zero value is not usable; obtain one from Acquire.
type Handle struct {
	fl     *flock.Flock
	pidErr error
}

// Acquire tries once to take the exclusive lock at path. It never waits: if
// another handle holds the lock, or the file cannot be opened, it returns
// (nil, false). On success the file is truncated and rewritten with the
// current PID followed by a newline, then flushed to disk; see PIDError.
func Acquire(path string) (*Handle, bool) {
	h, err := TryAcquire(path)
	if err != nil {
		return nil, false
	}
	return h, h != nil
}

// TryAcquire is Acquire with the failure reason kept: (nil, nil) means the
// lock is held elsewhere, a non-nil error means the lock file was unusable.
func TryAcquire(path string) (*Handle, error) {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if !locked {
		return nil, nil
	}

	// The lock is authoritative and the PID informational, so a failed write
	// keeps the lock. Windows refuses writes to the locked byte range from a
	// second descriptor.
	return &Handle{fl: fl, pidErr: writePID(path, os.Getpid())}, nil
}

// PIDError reports why the PID could not be recorded, if it could not.
func (h *Handle) PIDError() error {
	return h.pidErr
}

// Release unlocks and closes the handle. Calling it more than once is a no-op.
func (h *Handle) Release() error {
	if h == nil || h.fl == nil {
		return nil
	}
	return h.fl.Unlock()
}

// Path returns the locked file's path.
func (h *Handle) Path() string {
	return h.fl.Path()
}

// ReadPID returns the PID recorded in the lock file at path without locking
// it. A missing or unreadable file, or content that is not an unsigned 32-bit
// decimal, yields 0.
func ReadPID(path string) uint32 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(pid)
}

// IsRunning reports whether some live process holds the lock at path. It
// locks and immediately unlocks; only a failed acquisition means running.
// An unusable lock file also counts as running, so callers never start a
// second holder they could not have locked out.
//
// IsRunning never writes: the file keeps whatever PID the last holder
// recorded, or stays empty if it did not exist.
func IsRunning(path string) bool {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil || !locked {
		return true
	}
	_ = fl.Unlock()
	return false
}

// writePID overwrites path with "<pid>\n" through a second descriptor; the
// lock itself is held by the flock descriptor.
func writePID(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("truncate lock file %s: %w", path, err)
	}
	if _, err := f.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write pid to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync lock file %s: %w", path, err)
	}
	return f.Close()
}
