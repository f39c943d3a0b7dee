// pattern: Imperative Shell

package shutdown

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"unigen/internal/logging"
	"unigen/internal/mqttclient"
)

const subscribeTimeout = 5 * time.Second

// SubscriberConfig wires a Subscriber.
type SubscriberConfig struct {
	BrokerURL      string
	PID            uint32        // PID commands must carry to be acted on
	StartupDelay   time.Duration // wait before the first connection
	ConnectTimeout time.Duration
}

// Subscriber listens on Topic for commands addressed to its PID and fires a
// Trigger on the first shutdown.
type Subscriber struct {
	cfg        SubscriberConfig
	trigger    *Trigger
	logger     *logging.ScopedLogger
	subscribed atomic.Bool
	started    atomic.Bool
}

// NewSubscriber returns a Subscriber. A zero PID means the current process.
func NewSubscriber(cfg SubscriberConfig, trigger *Trigger, logger *logging.ScopedLogger) *Subscriber {
	if cfg.PID == 0 {
		cfg.PID = currentPID()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Subscriber{cfg: cfg, trigger: trigger, logger: logger}
}

// ClientID is shutdown_monitor_<pid>.
func (s *Subscriber) ClientID() string {
	return "shutdown_monitor_" + strconv.FormatUint(uint64(s.cfg.PID), 10)
}

// Subscribed reports whether the current session holds the subscription.
func (s *Subscriber) Subscribed() bool {
	return s.subscribed.Load()
}

// Run is one broker session: connect, subscribe on acknowledgement, and
// block until the connection drops or ctx is done. It always returns an
// error; run it under a supervisor to get the reconnect loop.
func (s *Subscriber) Run(ctx context.Context) error {
	if s.started.CompareAndSwap(false, true) && s.cfg.StartupDelay > 0 {
		s.logger.Debug("waiting for broker startup", "delay", s.cfg.StartupDelay)
		timer := time.NewTimer(s.cfg.StartupDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	lost := make(chan error, 1)
	drop := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}

	opts := mqttclient.NewOptions(mqttclient.Config{
		BrokerURL:      s.cfg.BrokerURL,
		ClientID:       s.ClientID(),
		ConnectTimeout: s.cfg.ConnectTimeout,
	})
	opts.SetOnConnectHandler(func(c paho.Client) {
		s.onConnect(ctx, c, drop)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		drop(err)
	})

	client := paho.NewClient(opts)
	defer s.subscribed.Store(false)

	if err := mqttclient.Wait(ctx, client.Connect(), 0); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("connection error", "broker", s.cfg.BrokerURL, "error", err)
		return fmt.Errorf("connect %s: %w", s.cfg.BrokerURL, err)
	}
	s.logger.Info("connected to broker", "broker", s.cfg.BrokerURL, "client_id", s.ClientID())

	select {
	case <-ctx.Done():
		client.Disconnect(250)
		return ctx.Err()
	case err := <-lost:
		client.Disconnect(0)
		s.logger.Warn("connection error", "broker", s.cfg.BrokerURL, "error", err)
		return fmt.Errorf("session ended: %w", err)
	}
}

func (s *Subscriber) onConnect(ctx context.Context, c paho.Client, drop func(error)) {
	if !s.subscribed.CompareAndSwap(false, true) {
		return
	}

	tok := c.Subscribe(Topic, 1, func(_ paho.Client, m paho.Message) {
		s.Handle(m.Topic(), m.Payload())
	})
	if err := mqttclient.Wait(ctx, tok, subscribeTimeout); err != nil {
		s.subscribed.Store(false)
		s.logger.Error("subscribe failed", "topic", Topic, "error", err)
		drop(fmt.Errorf("subscribe %s: %w", Topic, err))
		return
	}
	s.logger.Info("subscribed", "topic", Topic)
}

// Handle acts on one received message. Anything other than a well-formed
// shutdown addressed to this PID is logged and ignored.
func (s *Subscriber) Handle(topic string, payload []byte) {
	if topic != Topic {
		s.logger.Debug("ignoring message on foreign topic", "topic", topic)
		return
	}

	cmd, err := Parse(payload)
	if err != nil {
		s.logger.Warn("ignoring command", "error", err, "payload", string(payload))
		return
	}

	if cmd.PID != s.cfg.PID {
		s.logger.Info("command for another process", "target_pid", cmd.PID, "pid", s.cfg.PID)
		return
	}

	switch cmd.Kind() {
	case Shutdown:
		s.logger.Info("shutdown command received", "pid", s.cfg.PID)
		if !s.trigger.Fire() {
			s.logger.Debug("shutdown already in progress")
		}
	default:
		s.logger.Warn("unrecognized command action", "action", cmd.Action)
	}
}
