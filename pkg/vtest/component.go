package vtest

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/motion/pkg/component"
	"github.com/vango-dev/motion/pkg/event"
)

// Hook names accepted by Component.Fail and Component.Panic.
const (
	HookConnected    = "connected"
	HookDisconnected = "disconnected"
	HookBroadcast    = "broadcast"
	HookFingerprint  = "fingerprint"
)

// MotionFunc is a motion handler on a test component.
type MotionFunc func(c *Component, ev *event.Event) error

// Component is an instrumented component. It counts calls, detects
// overlapping execution, and can be told to fail or panic in any hook.
//
// A fresh Component has one motion, "increment", which bumps the counter
// that its fingerprint is derived from.
type Component struct {
	mu      sync.Mutex
	topics  []string
	count   int
	forced  bool
	label   string
	calls   []string
	msgs    []any
	motions map[string]MotionFunc
	onConn  func(c *Component)
	fail    map[string]error
	panics  map[string]any

	// Hold makes every hook sleep, widening windows for overlap detection.
	Hold time.Duration

	active   atomic.Int32
	overlaps atomic.Int32
}

// NewComponent returns a component that declares topics.
func NewComponent(topics ...string) *Component {
	c := &Component{
		topics:  topics,
		motions: make(map[string]MotionFunc),
		fail:    make(map[string]error),
		panics:  make(map[string]any),
	}
	c.motions["increment"] = func(c *Component, _ *event.Event) error {
		c.Increment()
		return nil
	}
	return c
}

// Motion registers fn under name.
func (c *Component) Motion(name string, fn MotionFunc) *Component {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.motions[name] = fn
	return c
}

// OnConnected makes the connect hook run fn after it succeeds.
func (c *Component) OnConnected(fn func(c *Component)) *Component {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConn = fn
	return c
}

// Fail makes hook return err. A hook name may also be a motion name.
func (c *Component) Fail(hook string, err error) *Component {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fail, hook)
	} else {
		c.fail[hook] = err
	}
	return c
}

// Panic makes hook panic with v. A hook name may also be a motion name.
func (c *Component) Panic(hook string, v any) *Component {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v == nil {
		delete(c.panics, hook)
	} else {
		c.panics[hook] = v
	}
	return c
}

// SetBroadcasts replaces the declared topics.
func (c *Component) SetBroadcasts(topics ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = topics
}

// SetForced sets what AwaitingForcedRerender reports.
func (c *Component) SetForced(forced bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forced = forced
}

// SetLabel changes render-relevant state without touching the counter.
func (c *Component) SetLabel(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.label = label
}

// Increment bumps the counter.
func (c *Component) Increment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
}

// Count returns the counter.
func (c *Component) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Label returns the label.
func (c *Component) Label() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.label
}

// Calls returns every hook invocation in order, e.g. "connected",
// "motion:increment", "broadcast:room:1".
func (c *Component) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Messages returns every broadcast message received.
func (c *Component) Messages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.msgs...)
}

// Overlaps returns how many times a hook started while another was running.
func (c *Component) Overlaps() int {
	return int(c.overlaps.Load())
}

func (c *Component) enter(call, hook string) (func(), error) {
	if c.active.Add(1) > 1 {
		c.overlaps.Add(1)
	}
	c.mu.Lock()
	c.calls = append(c.calls, call)
	err := c.fail[hook]
	p, shouldPanic := c.panics[hook]
	hold := c.Hold
	c.mu.Unlock()

	exit := func() { c.active.Add(-1) }
	if hold > 0 {
		time.Sleep(hold)
	}
	if shouldPanic {
		exit()
		panic(p)
	}
	return exit, err
}

// Connected implements component.Component.
func (c *Component) Connected() error {
	exit, err := c.enter(HookConnected, HookConnected)
	defer exit()
	if err != nil {
		return err
	}

	c.mu.Lock()
	fn := c.onConn
	c.mu.Unlock()
	if fn != nil {
		fn(c)
	}
	return nil
}

// Disconnected implements component.Component.
func (c *Component) Disconnected() error {
	exit, err := c.enter(HookDisconnected, HookDisconnected)
	defer exit()
	return err
}

// ProcessMotion implements component.Component.
func (c *Component) ProcessMotion(name string, ev *event.Event) error {
	exit, err := c.enter("motion:"+name, name)
	defer exit()
	if err != nil {
		return err
	}

	c.mu.Lock()
	fn, ok := c.motions[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", component.ErrUnknownMotion, name)
	}
	return fn(c, ev)
}

// ProcessBroadcast implements component.Component. By default every
// broadcast bumps the counter.
func (c *Component) ProcessBroadcast(topic string, msg any) error {
	exit, err := c.enter("broadcast:"+topic, HookBroadcast)
	defer exit()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	c.count++
	return nil
}

// Broadcasts implements component.Component.
func (c *Component) Broadcasts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.topics...)
}

// RenderFingerprint implements component.Component.
func (c *Component) RenderFingerprint() (component.Fingerprint, error) {
	c.mu.Lock()
	err := c.fail[HookFingerprint]
	count, label := c.count, c.label
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	return component.HashFingerprint([]byte(strconv.Itoa(count)), []byte(label)), nil
}

// AwaitingForcedRerender implements component.Component.
func (c *Component) AwaitingForcedRerender() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forced
}
