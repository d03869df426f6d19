// Package event parses client interaction payloads.
//
// An Event is built once from the raw mapping the client sent alongside a
// motion. Derived values are computed lazily: the target element is
// resolved on first access and cached, and an element's form data is parsed
// on first access and cached.
//
//	ev := event.FromRaw(map[string]any{
//	    "type":   "submit",
//	    "target": map[string]any{"tagName": "FORM", "formData": "title=hi"},
//	})
//	ev.FormData().Get("title") // "hi"
//
// A nil raw payload yields a nil *Event; motions may legitimately arrive
// without one.
package event
