// Package vtest provides test doubles for motion sessions.
//
// The doubles replace every collaborator of a session so that lifecycle,
// routing and reconciliation can be asserted without a network:
//
//   - Substrate records Subscribe calls and delivers only when told to,
//     on the caller's goroutine.
//   - Component counts hook invocations, detects overlapping execution
//     and can be made to fail or panic in any hook.
//   - Renderer and Recorder stand in for markup production and the
//     client connection.
//
// # Quick Start
//
//	func TestIncrement(t *testing.T) {
//	    comp := vtest.NewComponent("room:1")
//	    rec := vtest.NewRecorder()
//	    s := channel.New(channel.Config{
//	        Substrate:   vtest.NewSubstrate(),
//	        Serializer:  vtest.Serializer(comp),
//	        Renderer:    vtest.NewRenderer(),
//	        Transmitter: rec,
//	    })
//	    _ = s.Connect(ctx, channel.Handshake{Version: protocol.Version})
//	    _ = s.ClientEvent(ctx, channel.ClientEvent{Name: "increment"})
//	    vtest.ExpectContains(t, rec.Last(), "<div>1</div>")
//	}
//
// Substrate delivers synchronously. Never call Deliver from inside a
// session entry point; the session lock is not reentrant.
package vtest
