// pattern: Imperative Shell

package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"unigen/internal/logging"
	"unigen/internal/mqttclient"
)

var (
	// ErrNoInstance means no control-plane PID could be read.
	ErrNoInstance = errors.New("no running instance")
	// ErrDeliveryUnconfirmed means the broker never acknowledged the command.
	ErrDeliveryUnconfirmed = errors.New("shutdown delivery unconfirmed")
)

const (
	DefaultPollInterval = 10 * time.Millisecond
	DefaultMaxPolls     = 200
)

// PublisherConfig wires a Publisher.
type PublisherConfig struct {
	BrokerURL      string
	PollInterval   time.Duration // defaults to DefaultPollInterval
	MaxPolls       int           // defaults to DefaultMaxPolls
	ConnectTimeout time.Duration
	Now            func() time.Time
}

// Publisher sends one shutdown command per call and waits, for a bounded
// time, for the broker to acknowledge it.
type Publisher struct {
	cfg    PublisherConfig
	logger *logging.ScopedLogger
}

// NewPublisher returns a Publisher with defaults filled in.
func NewPublisher(cfg PublisherConfig, logger *logging.ScopedLogger) *Publisher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultMaxPolls
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Publisher{cfg: cfg, logger: logger}
}

// Timeout is the overall acknowledgement window.
func (p *Publisher) Timeout() time.Duration {
	return time.Duration(p.cfg.MaxPolls) * p.cfg.PollInterval
}

// ClientID is shutdown_sender_<pid>_<unix-millis>, unique per call.
func (p *Publisher) ClientID() string {
	return "shutdown_sender_" + strconv.FormatUint(uint64(currentPID()), 10) +
		"_" + strconv.FormatInt(p.cfg.Now().UnixMilli(), 10)
}

// Send publishes {"action":"shutdown","pid":target} at QoS 1 and polls for
// the acknowledgement. Any failure wraps ErrDeliveryUnconfirmed.
func (p *Publisher) Send(ctx context.Context, target uint32) error {
	opts := mqttclient.NewOptions(mqttclient.Config{
		BrokerURL:      p.cfg.BrokerURL,
		ClientID:       p.ClientID(),
		ConnectTimeout: p.cfg.ConnectTimeout,
	})
	client := paho.NewClient(opts)

	if err := mqttclient.Wait(ctx, client.Connect(), p.Timeout()); err != nil {
		return fmt.Errorf("%w: connect %s: %v", ErrDeliveryUnconfirmed, p.cfg.BrokerURL, err)
	}
	defer client.Disconnect(250)

	cmd := NewShutdown(target)
	p.logger.Info("publishing shutdown", "target_pid", target, "topic", Topic)
	tok := client.Publish(Topic, 1, false, cmd.Encode())

	for i := 0; i < p.cfg.MaxPolls; i++ {
		select {
		case <-tok.Done():
			if err := tok.Error(); err != nil {
				return fmt.Errorf("%w: %v", ErrDeliveryUnconfirmed, err)
			}
			p.logger.Info("shutdown acknowledged", "target_pid", target)
			return nil
		default:
		}

		if !client.IsConnected() {
			return fmt.Errorf("%w: connection lost", ErrDeliveryUnconfirmed)
		}

		select {
		case <-time.After(p.cfg.PollInterval):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrDeliveryUnconfirmed, ctx.Err())
		}
	}

	return fmt.Errorf("%w: no acknowledgement within %s", ErrDeliveryUnconfirmed, p.Timeout())
}

func currentPID() uint32 {
	return uint32(os.Getpid())
}
