// Package render provides renderer adapters for motion components.
//
// A renderer turns a component into the markup transmitted to the client:
//
//	r := render.Template(template.Must(template.New("counter").Parse(
//	    `<span>{{.Count}}</span>`)))
//
// Wrap puts the output inside a keyed root element, and Cached memoizes
// output by render fingerprint:
//
//	cache, err := render.Cached(render.Wrap(r, sessionID), 32)
//
// The cache lives as long as one connection. Components that oscillate
// between a few states, such as a toggle, are rendered once per state.
package render
