package streams

import (
	"errors"
	"fmt"
)

// ErrRoutingDeliveryFailure marks a handler failure contained by the
// delivery callback.
var ErrRoutingDeliveryFailure = errors.New("streams: routing delivery failure")

// DeliveryError describes a contained handler failure.
type DeliveryError struct {
	Topic string
	Owner string // Session that owns the router
	Err   error
}

// Error returns the error message with routing context.
func (e *DeliveryError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("streams: broadcast to %s: %v", e.Topic, e.Err)
	}
	return fmt.Sprintf("streams: session %s: broadcast to %s: %v", e.Owner, e.Topic, e.Err)
}

// Unwrap returns the handler error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is reports ErrRoutingDeliveryFailure as a match.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrRoutingDeliveryFailure
}

// Logged marks err as already logged by the handler that returns it. The
// router still counts the delivery as failed but does not log it again.
func Logged(err error) error {
	if err == nil {
		return nil
	}
	return &loggedError{err: err}
}

type loggedError struct {
	err error
}

func (e *loggedError) Error() string { return e.err.Error() }
func (e *loggedError) Unwrap() error { return e.err }

// SubscribeError is returned when the substrate refuses a subscription.
type SubscribeError struct {
	Topic string
	Err   error
}

// Error returns the error message.
func (e *SubscribeError) Error() string {
	return fmt.Sprintf("streams: subscribe %s: %v", e.Topic, e.Err)
}

// Unwrap returns the substrate error.
func (e *SubscribeError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte // Stack of the panicking goroutine, if captured
}

// Error returns the error message.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
