// Package component defines the contracts between the session core and the
// application: the Component capability set, the Serializer that rebuilds a
// component from handshake state, and the Renderer that turns it into markup.
//
// The session core never inspects component state directly. It only asks
// for a render fingerprint, compares it with the last transmitted one, and
// renders when they differ or when the component forces a re-render.
package component
