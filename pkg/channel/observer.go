package channel

import "time"

// Dispatch kinds reported to Observer.Dispatched.
const (
	KindMotion    = "motion"
	KindBroadcast = "broadcast"
)

// Dispatch statuses reported to Observer.Dispatched.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Render results reported to Observer.Rendered.
const (
	RenderTransmitted = "transmitted"
	RenderSuppressed  = "suppressed"
	RenderFailed      = "failed"
)

// Rejection reasons reported to Observer.SessionRejected.
const (
	RejectIncompatible  = "incompatible"
	RejectConnectFailed = "connect_failure"
	RejectInvalidState  = "invalid_state"
)

// Observer is notified of session lifecycle and dispatch activity.
//
// If the observer also implements streams.Observer, the session's router
// reports to it as well. Methods may be called with the session lock held
// and must not call back into the session.
type Observer interface {
	SessionConnected()
	SessionRejected(reason string)
	SessionClosed()
	Dispatched(kind, status string, elapsed time.Duration)
	Rendered(result string)
}

type nopObserver struct{}

func (nopObserver) SessionConnected() {}
func (nopObserver) SessionRejected(string) {}
func (nopObserver) SessionClosed() {}
func (nopObserver) Dispatched(string, string, time.Duration) {}
func (nopObserver) Rendered(string) {}
