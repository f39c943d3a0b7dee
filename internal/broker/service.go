// pattern: Imperative Shell

// Package broker hosts the machine-wide control plane: a loopback MQTT broker
// that only binds after winning the singleton lock, and stops when a
// shutdown command addressed to its PID arrives.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"unigen/internal/filelock"
	"unigen/internal/instance"
	"unigen/internal/logging"
	"unigen/internal/shutdown"
	"unigen/internal/supervisor"
)

// ErrAlreadyRunning is returned by Run when another control plane holds the
// lock. Nothing has been bound when it is returned.
var ErrAlreadyRunning = instance.ErrAlreadyRunning

const DefaultGracePeriod = 500 * time.Millisecond

// Locker takes the control-plane singleton lock.
type Locker interface {
	Acquire() (*filelock.Handle, error)
}

// HeldLock wraps a lock the caller already won. The first Acquire hands the
// handle over; later calls report ErrAlreadyRunning.
func HeldLock(h *filelock.Handle) Locker {
	return &heldLock{h: h}
}

type heldLock struct {
	mu sync.Mutex
	h  *filelock.Handle
}

func (l *heldLock) Acquire() (*filelock.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.h == nil {
		return nil, ErrAlreadyRunning
	}
	h := l.h
	l.h = nil
	return h, nil
}

// Config wires a Service.
type Config struct {
	Registry     Locker
	StaticYAML   []byte        // defaults to the embedded configuration
	GracePeriod  time.Duration // in-flight delivery window before close
	StartupDelay time.Duration // before the shutdown monitor first connects
	RetryDelay   time.Duration // between shutdown monitor sessions
	Trigger      *shutdown.Trigger
	Ready        func(StaticConfig) // called once all listeners are bound
}

// Service is the control-plane process body.
type Service struct {
	cfg         Config
	logProvider logging.LoggerProvider
	logger      *logging.ScopedLogger
}

// NewService returns a Service with defaults filled in.
func NewService(cfg Config, logProvider logging.LoggerProvider) *Service {
	if cfg.StaticYAML == nil {
		cfg.StaticYAML = StaticYAML()
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Trigger == nil {
		cfg.Trigger = shutdown.NewTrigger()
	}
	return &Service{
		cfg:         cfg,
		logProvider: logProvider,
		logger:      logProvider.For("broker"),
	}
}

// Run parses the static configuration, takes the singleton lock, binds the
// listeners, starts the shutdown monitor and blocks until a shutdown command
// arrives or ctx is done. The lock is held for the whole time anything is
// bound.
func (s *Service) Run(ctx context.Context) error {
	static, err := ParseStaticConfig(s.cfg.StaticYAML)
	if err != nil {
		s.logger.Error("static configuration rejected", "error", err)
		return err
	}

	lock, err := s.cfg.Registry.Acquire()
	if err != nil {
		if errors.Is(err, instance.ErrAlreadyRunning) {
			s.logger.Info("control plane already running, exiting")
			return ErrAlreadyRunning
		}
		return fmt.Errorf("acquire control-plane lock: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			s.logger.Warn("failed to release control-plane lock", "error", err)
		}
	}()

	server, gate, err := s.bind(static)
	if err != nil {
		return err
	}

	if err := server.Serve(); err != nil {
		_ = server.Close()
		return fmt.Errorf("start broker: %w", err)
	}
	for _, l := range static.Listeners {
		s.logger.Info("serving", "listener", l.Name, "url", l.URL(), "protocol", l.Protocol)
	}
	if s.cfg.Ready != nil {
		s.cfg.Ready(static)
	}

	monitor := supervisor.New(supervisor.Config{
		Name: "shutdown-monitor",
		Run: shutdown.NewSubscriber(shutdown.SubscriberConfig{
			BrokerURL:    static.URL(ListenerV4),
			StartupDelay: s.cfg.StartupDelay,
		}, s.cfg.Trigger, s.logProvider.For("shutdown.monitor")).Run,
		RestartOn:  supervisor.Always,
		RetryDelay: s.cfg.RetryDelay,
	}, s.logProvider.For("supervisor"))
	if err := monitor.Start(ctx); err != nil {
		_ = server.Close()
		return fmt.Errorf("start shutdown monitor: %w", err)
	}

	select {
	case <-s.cfg.Trigger.C():
		s.logger.Info("shutdown requested, stopping broker")
	case <-ctx.Done():
		s.logger.Info("context done, stopping broker", "reason", ctx.Err())
	}
	gate.Store(false)
	// The monitor must be gone before detaching: a detached Fire exits the
	// process.
	monitor.Stop()
	s.cfg.Trigger.Detach()
	s.logger.Debug("trigger detached")

	time.Sleep(s.cfg.GracePeriod)

	if err := server.Close(); err != nil {
		s.logger.Warn("broker close failed", "error", err)
	}
	s.logger.Info("control plane stopped")
	return nil
}

// Trigger is the stop signal the service waits on.
func (s *Service) Trigger() *shutdown.Trigger {
	return s.cfg.Trigger
}

// bind creates the broker and binds every listener. On failure anything
// already bound is closed again.
func (s *Service) bind(static StaticConfig) (*mqtt.Server, *atomic.Bool, error) {
	caps := mqtt.NewDefaultServerCapabilities()
	// Room for the fixed header on top of the largest payload.
	caps.MaximumPacketSize = static.Connections.MaxPayloadSize + 5

	server := mqtt.New(&mqtt.Options{
		Logger:       s.logProvider.For("broker.mochi").Slog(),
		Capabilities: caps,
	})

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, nil, fmt.Errorf("add auth hook: %w", err)
	}
	if err := server.AddHook(newConnectGuard(static), nil); err != nil {
		return nil, nil, fmt.Errorf("add connect guard: %w", err)
	}

	gate := new(atomic.Bool)
	gate.Store(true)
	timeout := static.Connections.ConnectionTimeout.Std()

	for _, lc := range static.Listeners {
		var l listeners.Listener
		switch lc.Transport {
		case "ws":
			l = newWSListener(lc.Name, lc.Address, int64(caps.MaximumPacketSize))
		default:
			l = listeners.NewTCP(listeners.Config{ID: lc.Name, Address: lc.Address})
		}

		if err := server.AddListener(&gatedListener{Listener: l, connectTimeout: timeout, open: gate}); err != nil {
			_ = server.Close()
			return nil, nil, fmt.Errorf("bind %s on %s: %w", lc.Name, lc.Address, err)
		}
	}
	return server, gate, nil
}
