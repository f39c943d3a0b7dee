// pattern: Functional Core

// Package evtbus is the broadcast channel between primary instances: config
// change notices and focus hand-offs, published on one topic that every
// instance subscribes to.
package evtbus

import (
	"encoding/json"
	"fmt"
)

// Topic is the broker topic of the event bus.
const Topic = "evtbus"

// Message types.
const (
	TypeConfig = "config"
	TypeFocus  = "focus"
)

// Message is the wire envelope. Sender is the publishing process's PID.
type Message struct {
	Type   string          `json:"type"`
	Sender uint32          `json:"sender"`
	Data   json.RawMessage `json:"data"`
}

// ConfigData announces that the config entry Key changed.
type ConfigData struct {
	Key   string  `json:"key"`
	CfgID *string `json:"cfgid"`
}

// FocusData asks the instance that has Path open to come to the front.
type FocusData struct {
	Path string `json:"path"`
}

func newMessage(typ string, sender uint32, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", typ, err)
	}
	return json.Marshal(Message{Type: typ, Sender: sender, Data: raw})
}

// ParseMessage decodes an envelope.
func ParseMessage(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, fmt.Errorf("decode event: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("decode event: missing type")
	}
	return m, nil
}

// Decode unmarshals the message data into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s event has no data", m.Type)
	}
	return json.Unmarshal(m.Data, v)
}
