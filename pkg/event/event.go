package event

import (
	"sync"
	"sync/atomic"
)

// targetState records whether an event's target has been resolved.
// A resolved target may still be absent, which is distinct from unresolved.
type targetState uint32

const (
	targetUnresolved targetState = iota
	targetPresent
	targetAbsent
)

// resolveElement is swapped in tests to count target resolutions.
var resolveElement = ElementFromRaw

// Event is the parsed form of one client-originated interaction payload.
// Events are immutable after construction and safe to share.
type Event struct {
	raw map[string]any

	once   sync.Once
	state  atomic.Uint32
	target *Element
}

// FromRaw builds an Event from a raw payload. It returns nil when raw is nil;
// callers must treat a nil *Event as "no event".
func FromRaw(raw map[string]any) *Event {
	if raw == nil {
		return nil
	}
	cp := make(map[string]any, len(raw))
	for k, v := range raw {
		cp[k] = v
	}
	return &Event{raw: cp}
}

// Raw returns a copy of the payload the event was built from.
func (e *Event) Raw() map[string]any {
	cp := make(map[string]any, len(e.raw))
	for k, v := range e.raw {
		cp[k] = v
	}
	return cp
}

// Type returns the DOM event type, e.g. "click".
func (e *Event) Type() string {
	s, _ := e.raw["type"].(string)
	return s
}

// Name is an alias for Type.
func (e *Event) Name() string {
	return e.Type()
}

// Details returns a copy of the event details. It is never nil.
func (e *Event) Details() map[string]any {
	d := e.details()
	cp := make(map[string]any, len(d))
	for k, v := range d {
		cp[k] = v
	}
	return cp
}

func (e *Event) details() map[string]any {
	d, _ := e.raw["details"].(map[string]any)
	return d
}

// Detail returns a single detail value.
func (e *Event) Detail(key string) any {
	return e.details()[key]
}

// DetailString returns a detail value as a string, or "" if it is not one.
func (e *Event) DetailString(key string) string {
	if v, ok := e.details()[key].(string); ok {
		return v
	}
	return ""
}

// ExtraData returns the opaque extra data attached by the client, if any.
func (e *Event) ExtraData() any {
	return e.raw["extraData"]
}

// Target returns the element the event was dispatched on, or nil.
// The element is resolved on first call and cached, including a nil result.
func (e *Event) Target() *Element {
	e.once.Do(func() {
		e.target = resolveElement(e.raw["target"])
		if e.target != nil {
			e.state.Store(uint32(targetPresent))
		} else {
			e.state.Store(uint32(targetAbsent))
		}
	})
	return e.target
}

// TargetResolved reports whether Target has been computed yet.
func (e *Event) TargetResolved() bool {
	return targetState(e.state.Load()) != targetUnresolved
}

// FormData returns the target's form data, or nil if there is no target.
func (e *Event) FormData() *FormData {
	t := e.Target()
	if t == nil {
		return nil
	}
	return t.FormData()
}
