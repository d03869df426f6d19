package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the protocol version this server speaks. Clients must declare
// exactly this version in their subscribe message.
const Version = "1.0.0"

// MessageType identifies a message.
type MessageType string

// Client to server.
const (
	TypeSubscribe   MessageType = "subscribe"
	TypeMotion      MessageType = "motion"
	TypeUnsubscribe MessageType = "unsubscribe"
)

// Server to client.
const (
	TypeConfirm MessageType = "confirm"
	TypeReject  MessageType = "reject"
	TypeRender  MessageType = "render"
)

// String returns the type name.
func (t MessageType) String() string {
	return string(t)
}

// FromClient reports whether clients may send t.
func (t MessageType) FromClient() bool {
	switch t {
	case TypeSubscribe, TypeMotion, TypeUnsubscribe:
		return true
	}
	return false
}

func (t MessageType) known() bool {
	switch t {
	case TypeSubscribe, TypeMotion, TypeUnsubscribe, TypeConfirm, TypeReject, TypeRender:
		return true
	}
	return false
}

// Protocol errors.
var (
	ErrInvalidMessage   = errors.New("protocol: invalid message")
	ErrUnknownType      = errors.New("protocol: unknown message type")
	ErrMissingField     = errors.New("protocol: missing required field")
	ErrMessageTooLarge  = errors.New("protocol: message too large")
	ErrMaxDepthExceeded = errors.New("protocol: maximum nesting depth exceeded")
	ErrUnknownStatus    = errors.New("protocol: unknown handshake status")
)

// Message is the JSON envelope for every frame in either direction.
// Fields not used by a type are omitted.
type Message struct {
	Type MessageType `json:"type"`

	// subscribe: client protocol version and serialized component state.
	// confirm, reject: server protocol version.
	Version string `json:"version,omitempty"`
	State   string `json:"state,omitempty"`

	// motion
	Name  string         `json:"name,omitempty"`
	Event map[string]any `json:"event,omitempty"`

	// render
	HTML string `json:"html,omitempty"`

	// confirm, reject
	Status  HandshakeStatus `json:"status,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Session string          `json:"session,omitempty"`
}

// Decode parses and validates a frame.
func Decode(data []byte) (*Message, error) {
	if len(data) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data))
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that m has the fields its type requires.
func (m *Message) Validate() error {
	if m.Type == "" {
		return fmt.Errorf("%w: type", ErrMissingField)
	}
	if !m.Type.known() {
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	switch m.Type {
	case TypeSubscribe:
		if m.Version == "" {
			return fmt.Errorf("%w: version", ErrMissingField)
		}
	case TypeMotion:
		if m.Name == "" {
			return fmt.Errorf("%w: name", ErrMissingField)
		}
		if m.Event != nil {
			if err := checkDepth(m.Event, 0, MaxEventDepth); err != nil {
				return err
			}
		}
	}
	return nil
}

// Encode serializes m.
func Encode(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

// NewSubscribe creates a client subscribe message.
func NewSubscribe(version, state string) *Message {
	return &Message{Type: TypeSubscribe, Version: version, State: state}
}

// NewMotion creates a client motion message.
func NewMotion(name string, event map[string]any) *Message {
	return &Message{Type: TypeMotion, Name: name, Event: event}
}

// NewConfirm creates the server's acceptance of a subscription.
func NewConfirm(session string) *Message {
	return &Message{Type: TypeConfirm, Version: Version, Status: HandshakeOK, Session: session}
}

// NewReject creates the server's refusal of a subscription.
func NewReject(status HandshakeStatus, reason string) *Message {
	return &Message{Type: TypeReject, Version: Version, Status: status, Reason: reason}
}

// NewRender creates a render push.
func NewRender(html string) *Message {
	return &Message{Type: TypeRender, HTML: html}
}
