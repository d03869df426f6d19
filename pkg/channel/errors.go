package channel

import (
	"errors"
	"fmt"

	merrors "github.com/vango-dev/motion/internal/errors"
)

// Sentinel errors for the session error taxonomy. Routing delivery failures
// are reported by the streams package as streams.ErrRoutingDeliveryFailure.
var (
	// ErrProtocolIncompatible is returned when the client's protocol version
	// does not exactly match the server's.
	ErrProtocolIncompatible = errors.New("channel: protocol incompatible")

	// ErrConnectFailure is returned when deserializing, connecting or routing
	// a component fails during Connect.
	ErrConnectFailure = errors.New("channel: connect failure")

	// ErrDispatchFailure is returned when a motion or broadcast handler fails,
	// or when the render that follows it fails.
	ErrDispatchFailure = errors.New("channel: dispatch failure")

	// ErrDisconnectFailure is returned when the component's disconnect hook
	// fails. Teardown has completed regardless.
	ErrDisconnectFailure = errors.New("channel: disconnect failure")

	// ErrRenderFailure marks a dispatch failure that happened while
	// fingerprinting, rendering or transmitting.
	ErrRenderFailure = errors.New("channel: render failure")

	// ErrNotConnected is returned when a client event arrives for a session
	// without a component.
	ErrNotConnected = errors.New("channel: not connected")

	// ErrMissingMotion is returned when a client event carries no name.
	ErrMissingMotion = errors.New("channel: missing motion name")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("channel: session already connected")
)

// Operations named in SessionError.Op.
const (
	OpConnect    = "connect"
	OpMotion     = "motion"
	OpBroadcast  = "broadcast"
	OpDisconnect = "disconnect"
)

// SessionError wraps an error with session context for debugging.
type SessionError struct {
	SessionID string
	Op        string // Operation that failed
	Err       error  // Underlying error
}

// Error returns the error message with session context.
func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("channel: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("channel: session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// Code returns the structured error code for the failure class.
func (e *SessionError) Code() string {
	code := codeOf(e.Err)
	if code == merrors.CodeMotionFailure && e.Op == OpBroadcast {
		return merrors.CodeBroadcastFailure
	}
	return code
}

// IncompatibleClientError reports a protocol version mismatch.
type IncompatibleClientError struct {
	Server string
	Client string
}

// Error returns the error message with both versions.
func (e *IncompatibleClientError) Error() string {
	return fmt.Sprintf("channel: client version %q does not match server version %q", e.Client, e.Server)
}

// Is reports ErrProtocolIncompatible as a match.
func (e *IncompatibleClientError) Is(target error) bool {
	return target == ErrProtocolIncompatible
}

func codeOf(err error) string {
	switch {
	case errors.Is(err, ErrProtocolIncompatible):
		return merrors.CodeProtocolIncompatible
	case errors.Is(err, ErrConnectFailure):
		return merrors.CodeConnectFailure
	case errors.Is(err, ErrRenderFailure):
		return merrors.CodeRenderFailure
	case errors.Is(err, ErrDispatchFailure):
		return merrors.CodeMotionFailure
	case errors.Is(err, ErrDisconnectFailure):
		return merrors.CodeDisconnectFailure
	}
	return ""
}

// AsMotionError converts a session error into a structured error carrying
// its code, the session id and the operation.
func AsMotionError(err error) *merrors.MotionError {
	if err == nil {
		return nil
	}
	var se *SessionError
	if !errors.As(err, &se) {
		return merrors.FromError(err, merrors.CodeMotionFailure)
	}
	code := se.Code()
	if code == "" {
		code = merrors.CodeMotionFailure
	}
	me := merrors.New(code).Wrap(se.Err).WithField("op", se.Op)
	if se.SessionID != "" {
		me.WithField("session_id", se.SessionID)
	}
	var ice *IncompatibleClientError
	if errors.As(err, &ice) {
		me.WithField("server", ice.Server).WithField("client", ice.Client)
	}
	return me
}
