// pattern: Imperative Shell

package broker

import (
	"bytes"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
)

// connectGuard enforces per-listener protocol versions and the client
// identifier length limit at CONNECT time.
type connectGuard struct {
	mqtt.HookBase
	listeners      map[string]ListenerConfig
	maxClientIDLen int
}

func newConnectGuard(cfg StaticConfig) *connectGuard {
	byName := make(map[string]ListenerConfig, len(cfg.Listeners))
	for _, l := range cfg.Listeners {
		byName[l.Name] = l
	}
	return &connectGuard{
		listeners:      byName,
		maxClientIDLen: cfg.Connections.MaxClientIDLen,
	}
}

func (h *connectGuard) ID() string {
	return "connect-guard"
}

func (h *connectGuard) Provides(b byte) bool {
	return bytes.Contains([]byte{mqtt.OnConnect}, []byte{b})
}

func (h *connectGuard) OnConnect(cl *mqtt.Client, pk packets.Packet) error {
	l, ok := h.listeners[cl.Net.Listener]
	if ok && !l.accepts(pk.ProtocolVersion) {
		h.Log.Warn("rejecting client protocol version",
			"listener", l.Name, "client", pk.Connect.ClientIdentifier, "version", pk.ProtocolVersion)
		return packets.ErrUnsupportedProtocolVersion
	}

	if len(pk.Connect.ClientIdentifier) > h.maxClientIDLen {
		h.Log.Warn("rejecting oversized client identifier",
			"listener", cl.Net.Listener, "length", len(pk.Connect.ClientIdentifier), "max", h.maxClientIDLen)
		return packets.ErrClientIdentifierNotValid
	}
	return nil
}
