// pattern: Imperative Shell

package evtbus

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"unigen/internal/logging"
	"unigen/internal/mqttclient"
)

const (
	reconnectInterval = 3 * time.Second
	publishTimeout    = 2 * time.Second
)

// Focuser brings the window forward if dir is the project this instance has
// open.
type Focuser interface {
	FocusIfProject(dir string) bool
}

// Config wires a Bus.
type Config struct {
	BrokerURL      string
	PID            uint32 // sender id; zero means the current process
	ClientID       string // zero means "unigen-<uuid>"
	ConnectTimeout time.Duration
}

// Bus is one instance's connection to the event bus.
type Bus struct {
	cfg    Config
	focus  Focuser
	logger *logging.ScopedLogger

	mu       sync.RWMutex
	client   paho.Client
	handlers map[string][]func(ConfigData)
}

// New returns an unconnected Bus.
func New(cfg Config, focus Focuser, logger *logging.ScopedLogger) *Bus {
	if cfg.PID == 0 {
		cfg.PID = uint32(os.Getpid())
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "unigen-" + uuid.NewString()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bus{
		cfg:      cfg,
		focus:    focus,
		logger:   logger,
		handlers: make(map[string][]func(ConfigData)),
	}
}

// OnConfig registers fn for config notices about key.
func (b *Bus) OnConfig(key string, fn func(ConfigData)) {
	b.mu.Lock()
	b.handlers[key] = append(b.handlers[key], fn)
	b.mu.Unlock()
}

// Connect dials the broker and subscribes. The connection reconnects on its
// own afterwards and resubscribes on every reconnect.
func (b *Bus) Connect(ctx context.Context) error {
	opts := mqttclient.NewOptions(mqttclient.Config{
		BrokerURL:      b.cfg.BrokerURL,
		ClientID:       b.cfg.ClientID,
		ConnectTimeout: b.cfg.ConnectTimeout,
	}).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(reconnectInterval)

	subscribed := make(chan error, 1)
	opts.SetOnConnectHandler(func(c paho.Client) {
		tok := c.Subscribe(Topic, 0, func(_ paho.Client, m paho.Message) {
			b.Dispatch(m.Topic(), m.Payload())
		})
		err := mqttclient.Wait(context.Background(), tok, publishTimeout)
		if err != nil {
			b.logger.Error("subscribe failed", "topic", Topic, "error", err)
		} else {
			b.logger.Info("subscribed", "topic", Topic)
		}
		select {
		case subscribed <- err:
		default:
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		b.logger.Warn("event bus connection lost", "error", err)
	})

	client := paho.NewClient(opts)
	if err := mqttclient.Wait(ctx, client.Connect(), 0); err != nil {
		return fmt.Errorf("connect event bus %s: %w", b.cfg.BrokerURL, err)
	}

	select {
	case err := <-subscribed:
		if err != nil {
			client.Disconnect(0)
			return fmt.Errorf("subscribe %s: %w", Topic, err)
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return ctx.Err()
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()
	return nil
}

// Close disconnects from the broker.
func (b *Bus) Close() {
	b.mu.Lock()
	client := b.client
	b.client = nil
	b.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
	}
}

// EmitConfig tells other instances that config key changed.
func (b *Bus) EmitConfig(key string, cfgID *string) error {
	return b.publish(TypeConfig, ConfigData{Key: key, CfgID: cfgID})
}

// EmitFocus asks whichever instance has path open to come to the front.
func (b *Bus) EmitFocus(path string) error {
	return b.publish(TypeFocus, FocusData{Path: path})
}

func (b *Bus) publish(typ string, data any) error {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return fmt.Errorf("publish %s: %w", typ, paho.ErrNotConnected)
	}

	payload, err := newMessage(typ, b.cfg.PID, data)
	if err != nil {
		return err
	}
	if err := mqttclient.Wait(context.Background(), client.Publish(Topic, 0, false, payload), publishTimeout); err != nil {
		return fmt.Errorf("publish %s: %w", typ, err)
	}
	b.logger.Debug("event published", "type", typ)
	return nil
}

// Dispatch handles one received message.
func (b *Bus) Dispatch(topic string, payload []byte) {
	if topic != Topic {
		return
	}

	msg, err := ParseMessage(payload)
	if err != nil {
		b.logger.Warn("ignoring event", "error", err, "payload", string(payload))
		return
	}
	if msg.Sender == b.cfg.PID {
		return
	}

	switch msg.Type {
	case TypeConfig:
		var data ConfigData
		if err := msg.Decode(&data); err != nil {
			b.logger.Warn("ignoring config event", "error", err)
			return
		}
		b.mu.RLock()
		handlers := append([]func(ConfigData){}, b.handlers[data.Key]...)
		b.mu.RUnlock()
		for _, fn := range handlers {
			fn(data)
		}

	case TypeFocus:
		var data FocusData
		if err := msg.Decode(&data); err != nil {
			b.logger.Warn("ignoring focus event", "error", err)
			return
		}
		if b.focus != nil && b.focus.FocusIfProject(data.Path) {
			b.logger.Debug("focused project", "path", data.Path, "from", msg.Sender)
		}

	default:
		b.logger.Warn("unhandled event", "type", msg.Type, "from", msg.Sender)
	}
}
