// Package streams implements declarative broadcast routing for a session.
//
// A component declares, after every render, the set of topics it wants to
// hear about and the handler that should receive them:
//
//	router.Synchronize(func() {
//	    err = router.SetRouting([]string{"room:1", "user:7"}, "process_broadcast")
//	})
//
// The router keeps two layers. The declaration (topics and target) is
// replaced wholesale on every call. The physical subscriptions on the
// pub/sub substrate only ever grow, because the substrate has no way to drop
// a single topic mid-session. Every delivered message is therefore checked
// against the live declaration and discarded if its topic is no longer
// declared, which makes a logical unsubscribe take effect immediately.
//
// # Locking
//
// The router owns the session lock. Synchronize enters it; the substrate
// callback enters it before dispatching; SetRouting, Target, Declared,
// Subscribed and Teardown expect the caller to already be inside it. The
// lock is not reentrant, so the substrate must deliver asynchronously.
//
// # Failure containment
//
// A handler error or panic is logged with the topic, the owning session and
// a stack trace, reported to the Observer, and never propagated to the
// substrate.
package streams
