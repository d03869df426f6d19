package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for common connection and server error conditions.
var (
	// ErrInvalidConfig is returned when the server configuration is invalid.
	ErrInvalidConfig = errors.New("server: invalid config")

	// ErrMissingDependency is returned when New is missing a substrate,
	// serializer or renderer factory.
	ErrMissingDependency = errors.New("server: missing dependency")

	// ErrMaxSessionsReached is returned when the maximum number of sessions is reached.
	ErrMaxSessionsReached = errors.New("server: max sessions reached")

	// ErrSessionNotFound is returned when a session ID does not exist.
	ErrSessionNotFound = errors.New("server: session not found")

	// ErrInvalidHandshake is returned when the first message is not a valid
	// subscribe message.
	ErrInvalidHandshake = errors.New("server: invalid handshake")

	// ErrConnectionClosed is returned when writing to a closed connection.
	ErrConnectionClosed = errors.New("server: connection closed")

	// ErrEventQueueFull is returned when a motion is dropped because the
	// connection's queue is full.
	ErrEventQueueFull = errors.New("server: event queue full")

	// ErrServerClosed is returned by Add after Shutdown.
	ErrServerClosed = errors.New("server: closed")
)

// ConnError wraps an error with connection context for debugging.
type ConnError struct {
	SessionID string
	Op        string // Operation that failed
	Err       error  // Underlying error
}

// Error returns the error message with session context.
func (e *ConnError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnError) Unwrap() error {
	return e.Err
}
