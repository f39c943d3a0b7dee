// pattern: Imperative Shell

// Package process starts programs that must outlive their parent.
package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"unigen/internal/logging"
)

// Spec describes a detached child process.
type Spec struct {
	Path    string   // executable to run
	Args    []string // arguments, without argv[0]
	Env     []string // KEY=value entries added to the parent's environment
	Dir     string   // working directory; empty means the filesystem root
	LogPath string   // file receiving stdout and stderr; empty discards them
}

// Launcher starts a process described by Spec and returns its PID without
// keeping any handle on it.
type Launcher interface {
	Launch(spec Spec) (int, error)
}

// Detached is the platform Launcher: the child gets its own session (process
// group and no console on Windows), a working directory that keeps no mount
// busy, stdin from the null device and output appended to a log file.
type Detached struct {
	logger *logging.ScopedLogger
}

// NewDetached returns a Detached launcher.
func NewDetached(logger *logging.ScopedLogger) *Detached {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Detached{logger: logger}
}

// Launch implements Launcher.
func (d *Detached) Launch(spec Spec) (int, error) {
	if spec.Path == "" {
		return 0, errors.New("process: empty executable path")
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Dir = spec.Dir
	if cmd.Dir == "" {
		cmd.Dir = rootDir()
	}
	cmd.SysProcAttr = detachAttrs()

	// Stdin stays nil, which exec maps to the null device.
	if out := d.openLog(spec.LogPath); out != nil {
		defer out.Close()
		cmd.Stdout = out
		cmd.Stderr = out
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", spec.Path, err)
	}

	pid := cmd.Process.Pid
	// The child must not be tied to this process; drop our handle.
	_ = cmd.Process.Release()

	d.logger.Info("detached process started", "pid", pid, "binary", spec.Path)
	return pid, nil
}

// openLog opens path for appending, or returns nil so output is discarded.
func (d *Detached) openLog(path string) *os.File {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		d.logger.Warn("cannot open child log, discarding output", "path", path, "error", err)
		return nil
	}
	d.logger.Info("child output redirected", "path", path)
	return f
}
