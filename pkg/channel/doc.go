// Package channel implements the server side of a component subscription.
//
// A Session moves through four states:
//
//	Unconnected --Connect--> Connected --Disconnect--> Terminated
//	     |
//	     +--Connect fails--> Rejected
//
// Connect checks the client's protocol version for exact equality, restores
// the component, runs its connect hook and installs its broadcast routing.
// ClientEvent dispatches a named motion. Broadcasts on the component's
// declared topics are dispatched through the session's router. After every
// successful dispatch the session reconciles: it transmits a new render only
// if the component's render fingerprint changed or the component asks for a
// forced rerender.
//
// # Concurrency
//
// All entry points and all broadcast deliveries for one session run under a
// single lock owned by the session's streams.Router. The lock is not
// reentrant. The substrate must therefore deliver broadcasts asynchronously,
// never from inside a Subscribe or Publish call made by component code.
// pubsub.Hub satisfies this.
//
// # Errors
//
// Failures are classified with sentinels usable with errors.Is:
// ErrProtocolIncompatible, ErrConnectFailure, ErrDispatchFailure and
// ErrDisconnectFailure. Only connect failures end the session. Dispatch and
// disconnect failures are logged and returned for information.
package channel
