// Package protocol defines the JSON wire format between a motion client and
// the server.
//
// Every WebSocket text frame carries one Message. A connection runs:
//
//	client                          server
//	  | subscribe {version, state}    |
//	  |------------------------------>|
//	  |      confirm {session} or     |
//	  |      reject {status, reason}  |
//	  |<------------------------------|
//	  | motion {name, event}          |
//	  |------------------------------>|
//	  |                render {html}  |
//	  |<------------------------------|
//	  | unsubscribe                   |
//	  |------------------------------>|
//
// Render frames may also arrive unprompted, after a broadcast changed the
// component. The client's declared version must equal Version exactly.
//
// Decode rejects frames over MaxMessageSize and motion payloads nested
// deeper than MaxEventDepth.
package protocol
