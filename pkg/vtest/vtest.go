package vtest

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/motion/pkg/component"
)

// ErrTransmit is returned by a Recorder told to FailNext without an error.
var ErrTransmit = errors.New("vtest: transmit failed")

// Recorder is a transmitter that records every output it is asked to send.
type Recorder struct {
	mu      sync.Mutex
	outputs []string
	failN   int
	failErr error
	signal  chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{signal: make(chan struct{}, 1)}
}

// Transmit records out, or fails if FailNext was called.
func (r *Recorder) Transmit(out string) error {
	r.mu.Lock()
	if r.failN > 0 {
		r.failN--
		err := r.failErr
		r.mu.Unlock()
		return err
	}
	r.outputs = append(r.outputs, out)
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
	return nil
}

// FailNext makes the next n transmits fail with err (ErrTransmit if nil).
func (r *Recorder) FailNext(n int, err error) {
	if err == nil {
		err = ErrTransmit
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failN = n
	r.failErr = err
}

// Outputs returns the recorded outputs in order.
func (r *Recorder) Outputs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outputs...)
}

// Count returns the number of recorded outputs.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outputs)
}

// Last returns the most recent output, or "" if none.
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outputs) == 0 {
		return ""
	}
	return r.outputs[len(r.outputs)-1]
}

// WaitFor blocks until at least n outputs were recorded or timeout passes.
// It reports whether the count was reached.
func (r *Recorder) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if r.Count() >= n {
			return true
		}
		select {
		case <-r.signal:
		case <-deadline.C:
			return r.Count() >= n
		}
	}
}

// Renderer renders a *Component as "<div>count</div>" and counts its calls.
type Renderer struct {
	mu    sync.Mutex
	calls int
	err   error
}

// NewRenderer creates a renderer for *Component.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render implements component.Renderer.
func (r *Renderer) Render(c component.Component) (component.Output, error) {
	r.mu.Lock()
	r.calls++
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return "", err
	}

	tc, ok := c.(*Component)
	if !ok {
		return "<div></div>", nil
	}
	var b strings.Builder
	b.WriteString("<div")
	if label := tc.Label(); label != "" {
		b.WriteString(` class="` + label + `"`)
	}
	b.WriteString(">")
	b.WriteString(strconv.Itoa(tc.Count()))
	b.WriteString("</div>")
	return b.String(), nil
}

// Fail makes every following Render return err. Pass nil to recover.
func (r *Renderer) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Calls returns how many times Render was called.
func (r *Renderer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Serializer returns a serializer that always yields c, whatever the state.
func Serializer(c component.Component) component.Serializer {
	return component.SerializerFunc(func(string) (component.Component, error) {
		return c, nil
	})
}

// FailingSerializer returns a serializer that always fails with err.
func FailingSerializer(err error) component.Serializer {
	return component.SerializerFunc(func(string) (component.Component, error) {
		return nil, err
	})
}

// ExpectContains asserts that out contains expected.
func ExpectContains(t *testing.T, out, expected string) {
	t.Helper()
	if !strings.Contains(out, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, truncate(out, 500))
	}
}

// ExpectNotContains asserts that out does not contain unexpected.
func ExpectNotContains(t *testing.T, out, unexpected string) {
	t.Helper()
	if strings.Contains(out, unexpected) {
		t.Errorf("expected output to NOT contain %q, got:\n%s", unexpected, truncate(out, 500))
	}
}

// Eventually polls cond until it holds or timeout passes.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %v: %s", timeout, msg)
	}
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
