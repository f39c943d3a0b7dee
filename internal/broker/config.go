// pattern: Functional Core

package broker

import (
	_ "embed"
	"errors"
	"fmt"
	"net"
	"strconv"

	"gopkg.in/yaml.v3"

	"unigen/internal/config"
)

// Listener names in the static configuration.
const (
	ListenerV4 = "mqtt-v4-server"
	ListenerV5 = "mqtt-tcp-server"
	ListenerWS = "mqtt-ws-server"
)

// ErrInvalidConfig is returned when the static broker configuration does not
// parse or validate. Nothing has been bound when it is returned.
var ErrInvalidConfig = errors.New("invalid broker configuration")

//go:embed static.yaml
var staticYAML []byte

// StaticYAML returns the embedded broker configuration document.
func StaticYAML() []byte {
	return staticYAML
}

// StaticConfig is the broker's fixed configuration.
type StaticConfig struct {
	Listeners   []ListenerConfig `yaml:"listeners"`
	Connections ConnectionLimits `yaml:"connections"`
}

// ListenerConfig is one loopback endpoint.
type ListenerConfig struct {
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"` // tcp | ws
	Address   string `yaml:"address"`
	Protocol  string `yaml:"protocol"` // v4 | v5 | any
}

// ConnectionLimits apply to every listener.
type ConnectionLimits struct {
	ConnectionTimeout config.Duration `yaml:"connection_timeout"`
	MaxClientIDLen    int             `yaml:"max_client_id_len"`
	MaxPayloadSize    uint32          `yaml:"max_payload_size"`
}

// maxRemainingLength is the largest packet body MQTT can encode.
const maxRemainingLength = 268435455

// ParseStaticConfig decodes and validates a broker configuration document.
func ParseStaticConfig(data []byte) (StaticConfig, error) {
	var cfg StaticConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return StaticConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return StaticConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// LoadStaticConfig parses the embedded configuration.
func LoadStaticConfig() (StaticConfig, error) {
	return ParseStaticConfig(staticYAML)
}

func (c StaticConfig) validate() error {
	if len(c.Listeners) == 0 {
		return errors.New("no listeners")
	}

	seen := make(map[string]bool, len(c.Listeners))
	for i, l := range c.Listeners {
		if l.Name == "" {
			return fmt.Errorf("listener %d: missing name", i)
		}
		if seen[l.Name] {
			return fmt.Errorf("listener %q: duplicate name", l.Name)
		}
		seen[l.Name] = true

		switch l.Transport {
		case "tcp", "ws":
		default:
			return fmt.Errorf("listener %q: unknown transport %q", l.Name, l.Transport)
		}
		switch l.Protocol {
		case "v4", "v5", "any":
		default:
			return fmt.Errorf("listener %q: unknown protocol %q", l.Name, l.Protocol)
		}
		if err := checkLoopback(l.Address); err != nil {
			return fmt.Errorf("listener %q: %w", l.Name, err)
		}
	}

	if c.Connections.ConnectionTimeout <= 0 {
		return errors.New("connection_timeout must be positive")
	}
	if c.Connections.MaxClientIDLen <= 0 {
		return errors.New("max_client_id_len must be positive")
	}
	if c.Connections.MaxPayloadSize == 0 || c.Connections.MaxPayloadSize > maxRemainingLength {
		return fmt.Errorf("max_payload_size must be in 1..%d", maxRemainingLength)
	}
	return nil
}

// checkLoopback accepts only host:port pairs on a loopback IP with a fixed
// port. Loopback binding is the only access control the broker has.
func checkLoopback(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("address %q: %w", addr, err)
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("address %q is not a loopback IP", addr)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("address %q: invalid port", addr)
	}
	return nil
}

// Listener returns the listener named name.
func (c StaticConfig) Listener(name string) (ListenerConfig, bool) {
	for _, l := range c.Listeners {
		if l.Name == name {
			return l, true
		}
	}
	return ListenerConfig{}, false
}

// URL returns the client URL of the listener named name, or "" if absent.
func (c StaticConfig) URL(name string) string {
	l, ok := c.Listener(name)
	if !ok {
		return ""
	}
	return l.URL()
}

// URL is the address clients dial: tcp://host:port or ws://host:port.
func (l ListenerConfig) URL() string {
	return l.Transport + "://" + l.Address
}

// accepts reports whether MQTT protocol version v may connect to l.
// Versions 3 and 4 are MQTT 3.1 and 3.1.1; 5 is MQTT 5.
func (l ListenerConfig) accepts(v byte) bool {
	switch l.Protocol {
	case "v4":
		return v == 3 || v == 4
	case "v5":
		return v == 5
	default:
		return true
	}
}

// Endpoints holds the client URLs of the default broker.
type Endpoints struct {
	Command  string // MQTT 3.1.1 TCP endpoint used for system commands
	EventBus string // WebSocket endpoint used by the event bus
}

// DefaultEndpoints resolves client URLs from the embedded configuration.
func DefaultEndpoints() (Endpoints, error) {
	cfg, err := LoadStaticConfig()
	if err != nil {
		return Endpoints{}, err
	}
	return EndpointsOf(cfg), nil
}

// EndpointsOf resolves client URLs from cfg.
func EndpointsOf(cfg StaticConfig) Endpoints {
	return Endpoints{
		Command:  cfg.URL(ListenerV4),
		EventBus: cfg.URL(ListenerWS),
	}
}
