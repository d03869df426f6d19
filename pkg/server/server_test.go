package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/motion/pkg/component"
	"github.com/vango-dev/motion/pkg/event"
	"github.com/vango-dev/motion/pkg/metrics"
	"github.com/vango-dev/motion/pkg/protocol"
	"github.com/vango-dev/motion/pkg/pubsub"
	"github.com/vango-dev/motion/pkg/vtest"
)

// fixture is a running server whose components are vtest.Components
// subscribed to the topic named by their state.
type fixture struct {
	srv  *Server
	http *httptest.Server
	hub  *pubsub.Hub

	mu    sync.Mutex
	comps []*vtest.Component
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, config *ServerConfig, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{hub: pubsub.NewHub(pubsub.WithLogger(quietLogger()))}

	app := App{
		Substrate: f.hub,
		Serializer: component.SerializerFunc(func(state string) (component.Component, error) {
			var c *vtest.Component
			if state == "" {
				c = vtest.NewComponent()
			} else {
				c = vtest.NewComponent(state)
			}
			f.mu.Lock()
			f.comps = append(f.comps, c)
			f.mu.Unlock()
			return c, nil
		}),
		Renderer: func(string) (component.Renderer, error) {
			return vtest.NewRenderer(), nil
		},
	}

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	srv, err := New(config, app, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.srv = srv
	f.http = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		f.http.Close()
		f.hub.Close()
	})
	return f
}

func (f *fixture) component(t *testing.T, i int) *vtest.Component {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.comps) {
		t.Fatalf("component %d not created (have %d)", i, len(f.comps))
	}
	return f.comps[i]
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + f.srv.Config().Path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%q) failed: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// subscribe dials, subscribes with state and returns the connection and the
// server's answer.
func (f *fixture) subscribe(t *testing.T, version, state string) (*websocket.Conn, *protocol.Message) {
	t.Helper()
	conn := f.dial(t)
	send(t, conn, protocol.NewSubscribe(version, state))
	return conn, read(t, conn)
}

func send(t *testing.T, conn *websocket.Conn, m *protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(m)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write %s failed: %v", m.Type, err)
	}
}

func read(t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	m, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Decode(%s) error = %v", data, err)
	}
	return m
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection to close, got %s", data)
	}
}

func expectRender(t *testing.T, conn *websocket.Conn, html string) {
	t.Helper()
	m := read(t, conn)
	if m.Type != protocol.TypeRender {
		t.Fatalf("message type = %s, want render", m.Type)
	}
	if m.HTML != html {
		t.Errorf("HTML = %q, want %q", m.HTML, html)
	}
}

func TestServer_HandshakeConfirm(t *testing.T) {
	f := newFixture(t, nil)
	_, m := f.subscribe(t, protocol.Version, "room:1")

	if m.Type != protocol.TypeConfirm {
		t.Fatalf("message type = %s, want confirm", m.Type)
	}
	if m.Status != protocol.HandshakeOK {
		t.Errorf("Status = %v, want OK", m.Status)
	}
	if m.Session == "" {
		t.Error("confirm carries no session id")
	}
	if m.Version != protocol.Version {
		t.Errorf("Version = %q, want %q", m.Version, protocol.Version)
	}

	vtest.Eventually(t, time.Second, func() bool { return f.srv.Sessions().Count() == 1 }, "session registered")
	if c := f.srv.Sessions().Get(m.Session); c == nil || c.Session() == nil {
		t.Fatalf("Get(%q) returned no live session", m.Session)
	}
	if calls := f.component(t, 0).Calls(); len(calls) != 1 || calls[0] != "connected" {
		t.Errorf("calls = %v, want [connected]", calls)
	}
}

func TestServer_HandshakeRejected(t *testing.T) {
	tests := []struct {
		name  string
		first *protocol.Message
		want  protocol.HandshakeStatus
	}{
		{"version mismatch", protocol.NewSubscribe("0.9.0", "room:1"), protocol.HandshakeVersionMismatch},
		{"motion first", protocol.NewMotion("increment", nil), protocol.HandshakeInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			conn := f.dial(t)
			send(t, conn, tt.first)

			m := read(t, conn)
			if m.Type != protocol.TypeReject {
				t.Fatalf("message type = %s, want reject", m.Type)
			}
			if m.Status != tt.want {
				t.Errorf("Status = %v, want %v", m.Status, tt.want)
			}
			if m.Reason == "" {
				t.Error("reject carries no reason")
			}
			expectClosed(t, conn)

			if n := f.srv.Sessions().Count(); n != 0 {
				t.Errorf("Count() = %d, want 0", n)
			}
		})
	}
}

func TestServer_VersionMismatchNeverDeserializes(t *testing.T) {
	f := newFixture(t, nil)
	_, m := f.subscribe(t, "2.0.0", "room:1")
	if m.Status != protocol.HandshakeVersionMismatch {
		t.Fatalf("Status = %v, want VersionMismatch", m.Status)
	}

	f.mu.Lock()
	n := len(f.comps)
	f.mu.Unlock()
	if n != 0 {
		t.Errorf("%d components deserialized, want 0", n)
	}
	if subs := f.hub.SubscriberCount("room:1"); subs != 0 {
		t.Errorf("SubscriberCount = %d, want 0", subs)
	}
}

func TestServer_MotionRenders(t *testing.T) {
	f := newFixture(t, nil)
	conn, _ := f.subscribe(t, protocol.Version, "")

	send(t, conn, protocol.NewMotion("increment", map[string]any{"type": "click"}))
	expectRender(t, conn, "<div>1</div>")

	// A failing motion renders nothing and leaves the session connected.
	send(t, conn, protocol.NewMotion("missing", nil))
	send(t, conn, protocol.NewMotion("increment", nil))
	expectRender(t, conn, "<div>2</div>")

	want := []string{"connected", "motion:increment", "motion:missing", "motion:increment"}
	vtest.Eventually(t, time.Second, func() bool {
		return len(f.component(t, 0).Calls()) == len(want)
	}, "all motions dispatched")
	for i, call := range f.component(t, 0).Calls() {
		if call != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, call, want[i])
		}
	}
}

func TestServer_UnchangedMotionSuppressed(t *testing.T) {
	f := newFixture(t, nil)
	conn, _ := f.subscribe(t, protocol.Version, "")
	f.component(t, 0).Motion("noop", func(*vtest.Component, *event.Event) error { return nil })

	send(t, conn, protocol.NewMotion("noop", nil))
	send(t, conn, protocol.NewMotion("increment", nil))

	// The noop produced no frame, so the first frame is the increment.
	expectRender(t, conn, "<div>1</div>")
}

func TestServer_BroadcastRenders(t *testing.T) {
	f := newFixture(t, nil)
	conn, _ := f.subscribe(t, protocol.Version, "room:1")

	if _, err := f.hub.Publish(context.Background(), "room:1", "hello"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	expectRender(t, conn, "<div>1</div>")

	if msgs := f.component(t, 0).Messages(); len(msgs) != 1 || msgs[0] != "hello" {
		t.Errorf("messages = %v, want [hello]", msgs)
	}
}

func TestServer_MaxSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.New(metrics.WithRegistry(reg))
	f := newFixture(t, (&ServerConfig{}).WithMaxSessions(1), WithMetrics(collector, reg))

	_, first := f.subscribe(t, protocol.Version, "")
	if first.Type != protocol.TypeConfirm {
		t.Fatalf("first message type = %s, want confirm", first.Type)
	}

	conn, second := f.subscribe(t, protocol.Version, "")
	if second.Status != protocol.HandshakeServerBusy {
		t.Fatalf("second Status = %v, want ServerBusy", second.Status)
	}
	expectClosed(t, conn)

	body := get(t, f.http.URL+"/metrics")
	vtest.ExpectContains(t, body, `motion_sessions_rejected_total{reason="server_busy"} 1`)
}

func TestServer_DisconnectOnClientClose(t *testing.T) {
	f := newFixture(t, nil)
	conn, _ := f.subscribe(t, protocol.Version, "room:1")
	vtest.Eventually(t, time.Second, func() bool { return f.hub.SubscriberCount("room:1") == 1 }, "subscribed")

	send(t, conn, &protocol.Message{Type: protocol.TypeUnsubscribe})
	expectClosed(t, conn)

	vtest.Eventually(t, 2*time.Second, func() bool { return f.srv.Sessions().Count() == 0 }, "session removed")
	calls := f.component(t, 0).Calls()
	if last := calls[len(calls)-1]; last != "disconnected" {
		t.Errorf("last call = %q, want disconnected", last)
	}
	if subs := f.hub.SubscriberCount("room:1"); subs != 0 {
		t.Errorf("SubscriberCount = %d, want 0 after disconnect", subs)
	}

	stats := f.srv.Sessions().Stats()
	if stats.TotalCreated != 1 || stats.TotalClosed != 1 || stats.Peak != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestServer_Disconnect(t *testing.T) {
	f := newFixture(t, nil)
	conn, m := f.subscribe(t, protocol.Version, "")

	if err := f.srv.Disconnect("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Disconnect(unknown) error = %v, want ErrSessionNotFound", err)
	}
	if err := f.srv.Disconnect(m.Session); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	expectClosed(t, conn)
	vtest.Eventually(t, 2*time.Second, func() bool { return f.srv.Sessions().Count() == 0 }, "session removed")
}

func TestServer_Shutdown(t *testing.T) {
	f := newFixture(t, nil)
	conn, _ := f.subscribe(t, protocol.Version, "")

	if err := f.srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	expectClosed(t, conn)
	vtest.Eventually(t, 2*time.Second, func() bool { return f.srv.Sessions().Count() == 0 }, "sessions drained")

	_, m := f.subscribe(t, protocol.Version, "")
	if m.Status != protocol.HandshakeServerBusy {
		t.Errorf("Status after shutdown = %v, want ServerBusy", m.Status)
	}
}

func TestServer_Healthz(t *testing.T) {
	f := newFixture(t, nil)
	f.subscribe(t, protocol.Version, "")
	vtest.Eventually(t, time.Second, func() bool { return f.srv.Sessions().Count() == 1 }, "session registered")

	var health struct {
		Status   string       `json:"status"`
		Version  string       `json:"version"`
		Sessions ManagerStats `json:"sessions"`
	}
	if err := json.Unmarshal([]byte(get(t, f.http.URL+"/healthz")), &health); err != nil {
		t.Fatalf("healthz body: %v", err)
	}
	if health.Status != "ok" || health.Version != protocol.Version {
		t.Errorf("health = %+v", health)
	}
	if health.Sessions.Active != 1 {
		t.Errorf("Sessions.Active = %d, want 1", health.Sessions.Active)
	}
}

func TestServer_MetricsRoute(t *testing.T) {
	t.Run("absent without gatherer", func(t *testing.T) {
		f := newFixture(t, nil)
		resp, err := http.Get(f.http.URL + "/metrics")
		if err != nil {
			t.Fatalf("GET /metrics: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("records sessions", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		f := newFixture(t, nil, WithMetrics(metrics.New(metrics.WithRegistry(reg)), reg))
		conn, _ := f.subscribe(t, protocol.Version, "")
		send(t, conn, protocol.NewMotion("increment", nil))
		expectRender(t, conn, "<div>1</div>")

		body := get(t, f.http.URL+"/metrics")
		vtest.ExpectContains(t, body, "motion_sessions_active 1")
		vtest.ExpectContains(t, body, `motion_renders_total{result="transmitted"} 1`)
		vtest.ExpectContains(t, body, `motion_dispatch_total{kind="motion",status="ok"} 1`)
	})
}

func TestNew_MissingDependency(t *testing.T) {
	_, err := New(nil, App{})
	if !errors.Is(err, ErrMissingDependency) {
		t.Errorf("New() error = %v, want ErrMissingDependency", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	app := App{
		Substrate:  pubsub.NewHub(),
		Serializer: vtest.Serializer(vtest.NewComponent()),
		Renderer:   func(string) (component.Renderer, error) { return vtest.NewRenderer(), nil },
	}
	_, err := New(&ServerConfig{Path: "motion"}, app)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New() error = %v, want ErrInvalidConfig", err)
	}
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d: %s", url, resp.StatusCode, body)
	}
	return string(body)
}

func TestServer_WithRoutes(t *testing.T) {
	f := newFixture(t, nil, WithRoutes(func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "pong")
		})
	}))
	if body := get(t, f.http.URL+"/ping"); body != "pong" {
		t.Errorf("GET /ping = %q, want pong", body)
	}
}
