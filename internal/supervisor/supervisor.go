// pattern: Imperative Shell

// Package supervisor keeps a long-running task alive, restarting it after it
// returns according to a restart policy.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"unigen/internal/logging"
)

// RestartPolicy controls when a task is restarted after it returns.
type RestartPolicy int

const (
	Never     RestartPolicy = iota // Never restart
	OnFailure                      // Restart only when the task returns an error
	Always                         // Always restart (unless Stop is called)
)

// Task is one attempt of the supervised work. It should return promptly once
// ctx is cancelled.
type Task func(ctx context.Context) error

// Config describes a task to supervise.
type Config struct {
	Name       string
	Run        Task
	RestartOn  RestartPolicy
	MaxRetries int           // 0 means unlimited
	RetryDelay time.Duration // defaults to 1s
}

// Supervisor manages the lifecycle of a task.
type Supervisor struct {
	cfg    Config
	logger *logging.ScopedLogger

	mu       sync.Mutex
	cancel   context.CancelFunc
	running  bool
	started  bool
	attempts int
	done     chan struct{}
}

// New creates a new task supervisor.
func New(cfg Config, logger *logging.ScopedLogger) *Supervisor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Supervisor{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start runs the task in a goroutine. Non-blocking. A supervisor can only be
// started once.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.cfg.Run == nil {
		return errors.New("supervisor: no task")
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("supervisor: already started")
	}
	s.started = true
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Stop cancels the task's context and waits for the supervisor to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-s.done
}

// Running returns whether the supervisor loop is still active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Attempts returns how many times the task has been started.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Done returns a channel that is closed when the supervisor exits
// (either the task finished without restart or Stop was called).
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	retries := 0
	for {
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		s.attempts++
		s.mu.Unlock()

		err := s.runOnce(ctx)

		if ctx.Err() != nil {
			return
		}

		shouldRestart := false
		switch s.cfg.RestartOn {
		case Always:
			shouldRestart = true
		case OnFailure:
			shouldRestart = err != nil
		case Never:
			shouldRestart = false
		}

		if !shouldRestart {
			return
		}

		retries++
		if s.cfg.MaxRetries > 0 && retries > s.cfg.MaxRetries {
			s.logger.Error("max retries exceeded", "retries", retries-1, "task", s.cfg.Name)
			return
		}

		delay := s.cfg.RetryDelay
		if delay == 0 {
			delay = time.Second
		}

		s.logger.Info("restarting task", "task", s.cfg.Name, "attempt", retries, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", "task", s.cfg.Name, "panic", r)
			err = errors.New("supervisor: task panicked")
		}
	}()

	s.logger.Debug("starting task", "task", s.cfg.Name)

	err = s.cfg.Run(ctx)
	switch {
	case err == nil:
		s.logger.Info("task finished", "task", s.cfg.Name)
	case ctx.Err() != nil:
		s.logger.Info("task stopped", "task", s.cfg.Name, "error", err)
	default:
		s.logger.Warn("task failed", "task", s.cfg.Name, "error", err)
	}
	return err
}
