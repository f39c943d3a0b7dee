// pattern: Functional Core

// Package shutdown carries the "stop" command from any local process to the
// control plane over the broker, addressed by PID.
package shutdown

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// Topic is the broker topic carrying system commands.
	Topic = "syscommand"
	// ActionShutdown asks the addressed process to stop.
	ActionShutdown = "shutdown"
)

// ErrMalformed is returned by Parse for payloads that do not match the
// command schema.
var ErrMalformed = errors.New("malformed command")

// Command is the wire form of a system command.
type Command struct {
	Action string `json:"action"`
	PID    uint32 `json:"pid"`
}

// Kind classifies a command's action.
type Kind int

const (
	Unrecognized Kind = iota
	Shutdown
)

// Kind compares the action case-insensitively.
func (c Command) Kind() Kind {
	if strings.EqualFold(c.Action, ActionShutdown) {
		return Shutdown
	}
	return Unrecognized
}

// NewShutdown returns the shutdown command addressed to pid.
func NewShutdown(pid uint32) Command {
	return Command{Action: ActionShutdown, PID: pid}
}

// Encode renders c as JSON.
func (c Command) Encode() []byte {
	// A struct of a string and an integer always marshals.
	data, _ := json.Marshal(c)
	return data
}

// Parse decodes a payload. Both fields are required and pid must fit an
// unsigned 32-bit integer.
func Parse(payload []byte) (Command, error) {
	var raw struct {
		Action *string `json:"action"`
		PID    *uint32 `json:"pid"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Action == nil {
		return Command{}, fmt.Errorf("%w: missing action", ErrMalformed)
	}
	if raw.PID == nil {
		return Command{}, fmt.Errorf("%w: missing pid", ErrMalformed)
	}
	return Command{Action: *raw.Action, PID: *raw.PID}, nil
}
