package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies the type of a relay message.
type Kind string

const (
	// Client -> hub
	KindSubscribe Kind = "subscribe"

	// Client -> device passthrough
	KindInput  Kind = "input"
	KindResize Kind = "resize"
	KindAction Kind = "action"

	// Device -> subscribers passthrough
	KindOutput Kind = "output"

	// Device <-> hub keep-alive
	KindPing Kind = "ping"
	KindPong Kind = "pong"

	// Hub -> subscribers
	KindStatus          Kind = "status"
	KindScreenshotSaved Kind = "screenshot_saved"

	// Device -> hub
	KindScreenshot Kind = "screenshot"
)

// ErrUnknownKind is returned when a frame carries a type outside the
// closed message set.
var ErrUnknownKind = errors.New("unknown message kind")

// Message is one decoded relay frame. Fields are kind-specific; passthrough
// kinds are forwarded as their original raw frame so extra fields survive.
type Message struct {
	Type     Kind   `json:"type"`
	DeviceID string `json:"deviceId,omitempty"`
	Data     string `json:"data,omitempty"`
	Cols     uint16 `json:"cols,omitempty"`
	Rows     uint16 `json:"rows,omitempty"`
	Output   string `json:"output,omitempty"`
	Status   string `json:"status,omitempty"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Valid reports whether the kind belongs to the closed message set.
func (k Kind) Valid() bool {
	switch k {
	case KindSubscribe, KindInput, KindResize, KindAction, KindOutput,
		KindPing, KindPong, KindStatus, KindScreenshot, KindScreenshotSaved:
		return true
	}
	return false
}

// Decode parses a raw frame into a Message. Structurally invalid JSON and
// kinds outside the closed set produce an error; the caller drops the frame
// without failing the connection.
func Decode(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, msg.Type)
	}
	return &msg, nil
}
