package component

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/vango-dev/motion/pkg/event"
)

// Fingerprint is a content-derived key for a component's render output.
// Two components that would render identical markup must produce equal
// fingerprints, regardless of whether they are the same instance.
type Fingerprint string

// Output is rendered markup ready to be transmitted to the client.
type Output = string

// Component is the capability set the session core depends on.
//
// A Component is owned by exactly one session and is never invoked
// concurrently with itself; implementations need no internal locking.
type Component interface {
	// Connected is called once after the component is deserialized.
	Connected() error

	// Disconnected is called once when the session terminates.
	Disconnected() error

	// ProcessMotion runs the client operation with the given name.
	// ev may be nil.
	ProcessMotion(name string, ev *event.Event) error

	// ProcessBroadcast handles a message published to a declared topic.
	ProcessBroadcast(topic string, msg any) error

	// Broadcasts returns the topics the component currently wants to receive.
	Broadcasts() []string

	// RenderFingerprint returns a cheap, deterministic fingerprint of the
	// component's render-relevant state.
	RenderFingerprint() (Fingerprint, error)

	// AwaitingForcedRerender reports whether the next reconciliation must
	// render even if the fingerprint is unchanged.
	AwaitingForcedRerender() bool
}

// Serializer turns the opaque state blob from the handshake into a component.
type Serializer interface {
	Deserialize(state string) (Component, error)
}

// SerializerFunc adapts a function to the Serializer interface.
type SerializerFunc func(state string) (Component, error)

// Deserialize calls f(state).
func (f SerializerFunc) Deserialize(state string) (Component, error) {
	return f(state)
}

// Renderer produces markup for a component.
// Renderers are shared by every session on a connection and must be safe
// for concurrent use.
type Renderer interface {
	Render(c Component) (Output, error)
}

// Refresher is implemented by renderers that may reuse earlier output.
// Sessions call Refresh instead of Render when the component asked for a
// forced rerender.
type Refresher interface {
	Refresh(c Component) (Output, error)
}

// HashFingerprint returns a sha256 fingerprint over the given parts.
// Each part is length-prefixed so ("ab", "c") and ("a", "bc") differ.
func HashFingerprint(parts ...[]byte) Fingerprint {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		l := uint64(len(p))
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:])
		h.Write(p)
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
