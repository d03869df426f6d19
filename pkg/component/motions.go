package component

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vango-dev/motion/pkg/event"
)

// ErrUnknownMotion is returned when a client names a motion that was never
// registered.
var ErrUnknownMotion = errors.New("component: unknown motion")

// MotionFunc handles one named client operation.
type MotionFunc func(ev *event.Event) error

// Motions maps client operation names to handlers. Components embed it to
// get name-based dispatch that fails closed on unknown names.
//
//	type Counter struct {
//	    component.Motions
//	    count int
//	}
//
//	func NewCounter() *Counter {
//	    c := &Counter{}
//	    c.Map("increment", func(*event.Event) error { c.count++; return nil })
//	    return c
//	}
type Motions struct {
	handlers map[string]MotionFunc
}

// Map registers fn under name, replacing any earlier registration.
func (m *Motions) Map(name string, fn MotionFunc) {
	if m.handlers == nil {
		m.handlers = make(map[string]MotionFunc)
	}
	m.handlers[name] = fn
}

// Unmap removes the handler for name.
func (m *Motions) Unmap(name string) {
	delete(m.handlers, name)
}

// ProcessMotion dispatches to the handler registered for name.
func (m *Motions) ProcessMotion(name string, ev *event.Event) error {
	fn, ok := m.handlers[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMotion, name)
	}
	return fn(ev)
}

// MotionNames returns the registered names, sorted.
func (m *Motions) MotionNames() []string {
	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
