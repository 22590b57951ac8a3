// Package protocol defines the JSON wire frames exchanged over a terminal
// link and the WebSocket close codes the relay uses for lifecycle signaling.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame types. The protocol is deliberately small: two client operations,
// one liveness signal, and one server event.
const (
	TypeInput     = "input"
	TypeResize    = "resize"
	TypeHeartbeat = "heartbeat"
	TypeOutput    = "output"
)

// Close codes in the registered private-use range (4000-4999).
const (
	// CloseAuthRequired is a policy violation: the link carried no valid
	// credential. Clients must not reconnect; they redirect to login.
	CloseAuthRequired = 4401
	// CloseSpawnFailed means the server could not start a shell process.
	CloseSpawnFailed = 4500
)

// Frame is one JSON-framed message. Unused fields are omitted on the wire.
type Frame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

// Input builds a client→server input frame carrying raw keystroke bytes.
func Input(data string) Frame {
	return Frame{Type: TypeInput, Data: data}
}

// Resize builds a client→server resize frame.
func Resize(cols, rows uint16) Frame {
	return Frame{Type: TypeResize, Cols: cols, Rows: rows}
}

// Heartbeat builds the application-level liveness frame.
func Heartbeat() Frame {
	return Frame{Type: TypeHeartbeat}
}

// Output builds a server→client output frame carrying raw shell output.
func Output(data string) Frame {
	return Frame{Type: TypeOutput, Data: data}
}

// Encode marshals a frame for the wire.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Decode parses a wire message into a Frame. Unknown or missing types are
// rejected so the relay can drop malformed frames without acting on them.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("parse frame: %w", err)
	}
	switch f.Type {
	case TypeInput, TypeResize, TypeHeartbeat, TypeOutput:
		return f, nil
	default:
		return Frame{}, fmt.Errorf("unknown frame type %q", f.Type)
	}
}
