package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/motion/pkg/channel"
	"github.com/vango-dev/motion/pkg/streams"
	"github.com/vango-dev/motion/pkg/vtest"
)

var (
	_ channel.Observer = (*Collector)(nil)
	_ streams.Observer = (*Collector)(nil)
)

// value returns the counter or gauge value, or the histogram sample count,
// of the series matching name and labels.
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want == lp.GetValue() {
					matched++
				}
			}
			if matched != len(labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegistry(reg))

	c.SessionConnected()
	c.SessionConnected()
	c.SessionClosed()
	c.SessionRejected(channel.RejectIncompatible)
	c.Dispatched(channel.KindMotion, channel.StatusOK, 10*time.Millisecond)
	c.Dispatched(channel.KindMotion, channel.StatusError, time.Millisecond)
	c.Rendered(channel.RenderTransmitted)
	c.SubscriptionInstalled("room:1")
	c.BroadcastDelivered("room:1")
	c.BroadcastDropped("room:1", streams.DropUndeclared)
	c.BroadcastFailed("room:1", errors.New("x"))
	c.WebSocketError("read")

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"motion_sessions_active", nil, 1},
		{"motion_sessions_rejected_total", map[string]string{"reason": "incompatible"}, 1},
		{"motion_dispatch_total", map[string]string{"kind": "motion", "status": "ok"}, 1},
		{"motion_dispatch_total", map[string]string{"kind": "motion", "status": "error"}, 1},
		{"motion_dispatch_duration_seconds", map[string]string{"kind": "motion"}, 2},
		{"motion_renders_total", map[string]string{"result": "transmitted"}, 1},
		{"motion_subscriptions_total", nil, 1},
		{"motion_broadcast_deliveries_total", map[string]string{"result": "delivered"}, 1},
		{"motion_broadcast_deliveries_total", map[string]string{"result": "dropped_undeclared"}, 1},
		{"motion_broadcast_deliveries_total", map[string]string{"result": "failed"}, 1},
		{"motion_websocket_errors_total", map[string]string{"type": "read"}, 1},
	}
	for _, tt := range tests {
		if got := value(t, reg, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

func TestCollector_Options(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(
		WithRegistry(reg),
		WithNamespace("app"),
		WithSubsystem("live"),
		WithConstLabels(prometheus.Labels{"env": "test"}),
		WithBuckets([]float64{0.1, 1}),
	)
	c.SessionConnected()

	if got := value(t, reg, "app_live_sessions_active", map[string]string{"env": "test"}); got != 1 {
		t.Errorf("app_live_sessions_active = %v, want 1", got)
	}
}

func TestCollector_InstrumentsSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegistry(reg))

	sub := vtest.NewSubstrate()
	comp := vtest.NewComponent("room:1")
	s := channel.New(channel.Config{
		Substrate:   sub,
		Serializer:  vtest.Serializer(comp),
		Renderer:    vtest.NewRenderer(),
		Transmitter: vtest.NewRecorder(),
		Version:     "1.0.0",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observer:    c,
	})

	ctx := context.Background()
	if err := s.Connect(ctx, channel.Handshake{Version: "1.0.0"}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.ClientEvent(ctx, channel.ClientEvent{Name: "increment"}); err != nil {
		t.Fatalf("ClientEvent() error = %v", err)
	}
	sub.Deliver("room:1", "hi")
	if err := s.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"motion_sessions_active", nil, 0},
		{"motion_subscriptions_total", nil, 1},
		{"motion_dispatch_total", map[string]string{"kind": "motion", "status": "ok"}, 1},
		{"motion_dispatch_total", map[string]string{"kind": "broadcast", "status": "ok"}, 1},
		{"motion_renders_total", map[string]string{"result": "transmitted"}, 2},
		{"motion_broadcast_deliveries_total", map[string]string{"result": "delivered"}, 1},
	}
	for _, tt := range checks {
		if got := value(t, reg, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}
