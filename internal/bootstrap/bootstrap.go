// pattern: Imperative Shell

// Package bootstrap makes sure a control plane is running on this host,
// starting a detached copy of the current binary when none is.
package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"unigen/internal/approle"
	"unigen/internal/logging"
	"unigen/internal/process"
)

// StdoutLogName is the file in the temp directory that receives the control
// plane's raw stdout and stderr.
const StdoutLogName = "unigen_mqtt.log"

// DefaultSettleDelay is how long EnsureControlPlane waits for a fresh child
// to take the lock before checking again.
const DefaultSettleDelay = time.Second

// Prober reports whether a control plane holds its lock.
type Prober interface {
	IsRunning() bool
}

// Config wires a Bootstrapper.
type Config struct {
	Registry    Prober
	Launcher    process.Launcher
	Executable  func() (string, error) // defaults to os.Executable
	Args        []string               // extra arguments for the child
	SettleDelay time.Duration          // defaults to DefaultSettleDelay
	LogPath     string                 // defaults to DefaultLogPath()
}

// Bootstrapper starts the control plane on demand.
type Bootstrapper struct {
	cfg    Config
	logger *logging.ScopedLogger
}

// DefaultLogPath returns <tmp>/unigen_mqtt.log.
func DefaultLogPath() string {
	return filepath.Join(os.TempDir(), StdoutLogName)
}

// New returns a Bootstrapper with defaults filled in.
func New(cfg Config, logger *logging.ScopedLogger) *Bootstrapper {
	if cfg.Executable == nil {
		cfg.Executable = os.Executable
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.LogPath == "" {
		cfg.LogPath = DefaultLogPath()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bootstrapper{cfg: cfg, logger: logger}
}

// EnsureControlPlane returns true when a control plane is running, spawning
// one first if needed. It does not prove the spawned child is the winner: a
// concurrent caller may have started its own, and whichever child takes the
// lock first serves while the other exits without binding.
func (b *Bootstrapper) EnsureControlPlane(ctx context.Context) bool {
	if b.cfg.Registry.IsRunning() {
		b.logger.Debug("control plane already running")
		return true
	}

	exe, err := b.cfg.Executable()
	if err != nil {
		b.logger.Error("cannot resolve current executable", "error", err)
		return false
	}

	pid, err := b.cfg.Launcher.Launch(process.Spec{
		Path:    exe,
		Args:    b.cfg.Args,
		Env:     []string{approle.ControlPlane.Env()},
		LogPath: b.cfg.LogPath,
	})
	if err != nil {
		b.logger.Error("failed to spawn control plane", "error", err)
		return false
	}
	b.logger.Info("spawned control plane", "pid", pid, "settle", b.cfg.SettleDelay)

	timer := time.NewTimer(b.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		b.logger.Warn("wait for control plane cancelled", "error", ctx.Err())
	}

	running := b.cfg.Registry.IsRunning()
	if !running {
		b.logger.Warn("control plane did not take its lock in time", "pid", pid)
	}
	return running
}
