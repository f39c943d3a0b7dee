// pattern: Imperative Shell

// Package mqttclient holds the connection settings shared by every client of
// the local broker.
package mqttclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"unigen/internal/logging"
)

const (
	DefaultKeepAlive      = 10 * time.Second
	DefaultConnectTimeout = 5 * time.Second
)

// ErrTimeout is returned by Wait when a token does not complete in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// Config describes one client connection.
type Config struct {
	BrokerURL      string // tcp://host:port or ws://host:port
	ClientID       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

// NewOptions returns paho options for a clean, non-reconnecting MQTT 3.1.1
// session. Reconnection is left to the caller.
func NewOptions(cfg Config) *paho.ClientOptions {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	return paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetProtocolVersion(4).
		SetCleanSession(true).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false)
}

// Wait blocks until tok completes, ctx is done or timeout elapses (zero means
// no timeout), and returns the token's error.
func Wait(ctx context.Context, tok paho.Token, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

// InstallLogger routes paho's package-level diagnostics into logger. paho only
// offers global hooks, so this affects every client in the process.
func InstallLogger(logger *logging.ScopedLogger) {
	if logger == nil {
		return
	}
	paho.CRITICAL = printer{log: logger.Error}
	paho.ERROR = printer{log: logger.Error}
	paho.WARN = printer{log: logger.Warn}
}

// printer adapts a ScopedLogger method to paho.Logger.
type printer struct {
	log func(msg string, args ...any)
}

func (p printer) Println(v ...any) {
	p.log(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (p printer) Printf(format string, v ...any) {
	p.log(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
