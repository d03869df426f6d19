package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	merrors "github.com/vango-dev/motion/internal/errors"
	"github.com/vango-dev/motion/pkg/component"
	"github.com/vango-dev/motion/pkg/event"
	"github.com/vango-dev/motion/pkg/pubsub"
	"github.com/vango-dev/motion/pkg/streams"
)

// BroadcastTarget is the routing target that receives the component's
// broadcasts.
const BroadcastTarget = "process_broadcast"

// DefaultTracerName is the tracer used when Config.Tracer is nil.
const DefaultTracerName = "motion"

// State is the lifecycle state of a session.
type State int32

const (
	StateUnconnected State = iota
	StateConnected
	StateTerminated
	StateRejected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	case StateTerminated:
		return "terminated"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Transmitter sends rendered output to the client.
type Transmitter interface {
	Transmit(out component.Output) error
}

// TransmitterFunc adapts a function to the Transmitter interface.
type TransmitterFunc func(out component.Output) error

// Transmit calls f(out).
func (f TransmitterFunc) Transmit(out component.Output) error {
	return f(out)
}

// Handshake is the client's subscription request.
type Handshake struct {
	Version string // Client protocol version
	State   string // Serialized component state
}

// ClientEvent is a motion invoked by the client.
type ClientEvent struct {
	Name  string
	Event map[string]any
}

// Config configures a Session.
type Config struct {
	// ID identifies the session in logs. A random id is used if empty.
	ID string

	Substrate   pubsub.Substrate
	Serializer  component.Serializer
	Renderer    component.Renderer
	Transmitter Transmitter

	// Version is the server protocol version. Clients must match it exactly.
	Version string

	Logger   *slog.Logger
	Tracer   trace.Tracer
	Observer Observer
}

// Session is the server side of one client's subscription to one component.
//
// Every entry point and every broadcast delivery runs under the session
// lock, which the session's router owns. Component code therefore never
// runs concurrently with itself.
type Session struct {
	id          string
	version     string
	serializer  component.Serializer
	renderer    component.Renderer
	transmitter Transmitter
	router      *streams.Router
	logger      *slog.Logger
	tracer      trace.Tracer
	observer    Observer

	state atomic.Int32

	// Guarded by the router lock.
	comp            component.Component
	lastFingerprint component.Fingerprint
}

// New creates an unconnected session.
func New(cfg Config) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(DefaultTracerName)
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}

	s := &Session{
		id:          cfg.ID,
		version:     cfg.Version,
		serializer:  cfg.Serializer,
		renderer:    cfg.Renderer,
		transmitter: cfg.Transmitter,
		logger:      cfg.Logger.With("component", "channel", "session_id", cfg.ID),
		tracer:      cfg.Tracer,
		observer:    cfg.Observer,
	}

	opts := []streams.Option{
		streams.WithOwner(cfg.ID),
		streams.WithLogger(cfg.Logger),
	}
	if so, ok := cfg.Observer.(streams.Observer); ok {
		opts = append(opts, streams.WithObserver(so))
	}
	s.router = streams.New(cfg.Substrate, opts...)
	s.router.Handle(BroadcastTarget, s.processBroadcast)
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Router returns the session's broadcast router.
func (s *Session) Router() *streams.Router {
	return s.router
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Connect checks the client's protocol version, restores the component from
// h.State, runs its connect hook and installs its broadcast routing. The
// client already holds markup for the restored state, so a render is
// transmitted only if the connect hook changed it.
//
// On failure the session is Rejected, holds no component and no
// subscriptions, and the returned error wraps ErrProtocolIncompatible or
// ErrConnectFailure.
func (s *Session) Connect(ctx context.Context, h Handshake) (err error) {
	ctx, span := s.tracer.Start(ctx, "motion.connect",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("motion.session_id", s.id),
			attribute.String("motion.client_version", h.Version),
		))
	defer func() { endSpan(span, err) }()

	var reason string
	s.router.Synchronize(func() {
		reason, err = s.connect(ctx, h)
	})
	if err != nil {
		s.observer.SessionRejected(reason)
		return err
	}
	s.observer.SessionConnected()
	return nil
}

func (s *Session) connect(ctx context.Context, h Handshake) (reason string, err error) {
	if st := s.State(); st != StateUnconnected {
		return RejectInvalidState, &SessionError{
			SessionID: s.id,
			Op:        OpConnect,
			Err:       fmt.Errorf("%w: state %s", ErrAlreadyConnected, st),
		}
	}

	if h.Version != s.version {
		s.setState(StateRejected)
		ice := &IncompatibleClientError{Server: s.version, Client: h.Version}
		s.logger.Warn("rejected incompatible client",
			"code", merrors.CodeProtocolIncompatible,
			"server_version", s.version,
			"client_version", h.Version)
		return RejectIncompatible, &SessionError{SessionID: s.id, Op: OpConnect, Err: ice}
	}

	defer func() {
		if r := recover(); r != nil {
			reason, err = RejectConnectFailed, s.reject(&streams.PanicError{Value: r, Stack: debug.Stack()})
		}
	}()

	comp, derr := s.serializer.Deserialize(h.State)
	if derr != nil {
		return RejectConnectFailed, s.reject(fmt.Errorf("deserialize: %w", derr))
	}
	if comp == nil {
		return RejectConnectFailed, s.reject(errors.New("deserialize: no component"))
	}
	s.comp = comp

	// The client already holds markup for the deserialized state.
	fp, ferr := comp.RenderFingerprint()
	if ferr != nil {
		return RejectConnectFailed, s.reject(fmt.Errorf("fingerprint: %w", ferr))
	}
	s.lastFingerprint = fp

	if cerr := comp.Connected(); cerr != nil {
		return RejectConnectFailed, s.reject(fmt.Errorf("connected: %w", cerr))
	}
	if rerr := s.router.SetRouting(comp.Broadcasts(), BroadcastTarget); rerr != nil {
		return RejectConnectFailed, s.reject(fmt.Errorf("routing: %w", rerr))
	}
	if rerr := s.reconcile(ctx); rerr != nil {
		return RejectConnectFailed, s.reject(rerr)
	}
	s.setState(StateConnected)

	s.logger.Info("connected",
		"component_type", fmt.Sprintf("%T", comp),
		"broadcasts", len(s.router.Declared()))
	return "", nil
}

// reject discards any partial connect and returns the ConnectFailure.
// The router lock is held.
func (s *Session) reject(cause error) error {
	s.router.Teardown()
	s.comp = nil
	s.setState(StateRejected)
	s.logger.Error("connect failed", errorAttrs(merrors.CodeConnectFailure, cause)...)

	return &SessionError{
		SessionID: s.id,
		Op:        OpConnect,
		Err:       fmt.Errorf("%w: %w", ErrConnectFailure, cause),
	}
}

// ClientEvent dispatches a motion to the component and pushes a render if
// its output changed. Failures are logged and leave the session connected.
// The returned error is informational.
func (s *Session) ClientEvent(ctx context.Context, ce ClientEvent) (err error) {
	ctx, span := s.tracer.Start(ctx, "motion.motion",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("motion.session_id", s.id),
			attribute.String("motion.motion", ce.Name),
		))
	defer func() { endSpan(span, err) }()

	start := time.Now()
	s.router.Synchronize(func() {
		err = s.processMotion(ctx, ce)
	})
	s.observer.Dispatched(KindMotion, statusOf(err), time.Since(start))
	return err
}

func (s *Session) processMotion(ctx context.Context, ce ClientEvent) error {
	if ce.Name == "" {
		return s.dispatchFailed(OpMotion, ErrMissingMotion, "motion", ce.Name)
	}
	comp := s.comp
	if comp == nil {
		return s.dispatchFailed(OpMotion, ErrNotConnected, "motion", ce.Name)
	}

	start := time.Now()
	ev := event.FromRaw(ce.Event)
	if herr := guard(func() error { return comp.ProcessMotion(ce.Name, ev) }); herr != nil {
		return s.dispatchFailed(OpMotion, herr, "motion", ce.Name)
	}
	s.logger.Info("processed motion", "motion", ce.Name, "duration", time.Since(start))

	if rerr := s.reconcile(ctx); rerr != nil {
		return &SessionError{
			SessionID: s.id,
			Op:        OpMotion,
			Err:       fmt.Errorf("%w: %w", ErrDispatchFailure, rerr),
		}
	}
	return nil
}

// processBroadcast is the BroadcastTarget handler. It runs under the router
// lock. Failures are logged here and returned marked as logged, so the
// router counts them without logging them twice.
func (s *Session) processBroadcast(topic string, msg any) (err error) {
	ctx, span := s.tracer.Start(context.Background(), "motion.broadcast",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("motion.session_id", s.id),
			attribute.String("motion.topic", topic),
		))
	dispatchStart := time.Now()
	defer func() {
		s.observer.Dispatched(KindBroadcast, statusOf(err), time.Since(dispatchStart))
		endSpan(span, err)
		err = streams.Logged(err)
	}()

	comp := s.comp
	if comp == nil {
		s.logger.Debug("broadcast without component", "topic", topic)
		return nil
	}

	start := time.Now()
	if herr := guard(func() error { return comp.ProcessBroadcast(topic, msg) }); herr != nil {
		return s.dispatchFailed(OpBroadcast, herr, "topic", topic)
	}
	s.logger.Info("processed broadcast", "topic", topic, "duration", time.Since(start))

	if rerr := s.reconcile(ctx); rerr != nil {
		return &SessionError{
			SessionID: s.id,
			Op:        OpBroadcast,
			Err:       fmt.Errorf("%w: %w", ErrDispatchFailure, rerr),
		}
	}
	return nil
}

// dispatchFailed logs a failed motion or broadcast and returns the
// DispatchFailure. key/value name the motion or topic.
func (s *Session) dispatchFailed(op string, cause error, key, value string) error {
	code := merrors.CodeMotionFailure
	if op == OpBroadcast {
		code = merrors.CodeBroadcastFailure
	}
	s.logger.Error(op+" failed", errorAttrs(code, cause, key, value)...)

	return &SessionError{
		SessionID: s.id,
		Op:        op,
		Err:       fmt.Errorf("%w: %w", ErrDispatchFailure, cause),
	}
}

// reconcile pushes a render if the component's fingerprint changed since the
// last transmitted render, or if the component asks for one regardless.
// The fingerprint is only recorded once the render reached the client and
// routing was refreshed, so a failure is retried on the next dispatch.
// The router lock is held.
func (s *Session) reconcile(ctx context.Context) (err error) {
	comp := s.comp
	defer func() {
		if r := recover(); r != nil {
			err = s.renderFailed(&streams.PanicError{Value: r, Stack: debug.Stack()})
		}
	}()

	fp, ferr := comp.RenderFingerprint()
	if ferr != nil {
		return s.renderFailed(fmt.Errorf("fingerprint: %w", ferr))
	}
	forced := comp.AwaitingForcedRerender()
	if !forced && fp == s.lastFingerprint {
		s.observer.Rendered(RenderSuppressed)
		s.logger.Debug("render suppressed", "fingerprint", string(fp))
		return nil
	}

	_, span := s.tracer.Start(ctx, "motion.render",
		trace.WithAttributes(
			attribute.String("motion.session_id", s.id),
			attribute.Bool("motion.forced", forced),
		))
	defer span.End()

	start := time.Now()
	out, rerr := s.render(comp, forced)
	if rerr != nil {
		span.RecordError(rerr)
		return s.renderFailed(fmt.Errorf("render: %w", rerr))
	}
	if terr := s.transmitter.Transmit(out); terr != nil {
		span.RecordError(terr)
		return s.renderFailed(fmt.Errorf("transmit: %w", terr))
	}
	if rerr := s.router.SetRouting(comp.Broadcasts(), BroadcastTarget); rerr != nil {
		span.RecordError(rerr)
		return s.renderFailed(fmt.Errorf("routing: %w", rerr))
	}
	s.lastFingerprint = fp

	s.observer.Rendered(RenderTransmitted)
	s.logger.Info("rendered", "bytes", len(out), "forced", forced, "duration", time.Since(start))
	return nil
}

// render renders comp, skipping any reuse of earlier output when forced.
func (s *Session) render(comp component.Component, forced bool) (component.Output, error) {
	if r, ok := s.renderer.(component.Refresher); ok && forced {
		return r.Refresh(comp)
	}
	return s.renderer.Render(comp)
}

func (s *Session) renderFailed(cause error) error {
	s.observer.Rendered(RenderFailed)
	s.logger.Error("render failed", errorAttrs(merrors.CodeRenderFailure, cause)...)
	return fmt.Errorf("%w: %w", ErrRenderFailure, cause)
}

// Disconnect runs the component's disconnect hook, releases its broadcast
// routing and discards it. It is idempotent. A failing hook is logged and
// returned as ErrDisconnectFailure; teardown completes regardless.
func (s *Session) Disconnect(ctx context.Context) (err error) {
	_, span := s.tracer.Start(ctx, "motion.disconnect",
		trace.WithAttributes(attribute.String("motion.session_id", s.id)))
	defer func() { endSpan(span, err) }()

	var closed bool
	s.router.Synchronize(func() {
		closed, err = s.disconnect()
	})
	if closed {
		s.observer.SessionClosed()
	}
	return err
}

func (s *Session) disconnect() (closed bool, err error) {
	comp := s.comp
	if comp == nil {
		if s.State() == StateUnconnected {
			s.setState(StateTerminated)
		}
		return false, nil
	}

	if herr := guard(comp.Disconnected); herr != nil {
		s.logger.Error("disconnect failed", errorAttrs(merrors.CodeDisconnectFailure, herr)...)
		err = &SessionError{
			SessionID: s.id,
			Op:        OpDisconnect,
			Err:       fmt.Errorf("%w: %w", ErrDisconnectFailure, herr),
		}
	}

	s.router.Teardown()
	s.comp = nil
	s.setState(StateTerminated)
	s.logger.Info("disconnected")
	return true, err
}

// guard runs fn, converting a panic into a *streams.PanicError.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &streams.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// errorAttrs builds the log attributes for a failure, adding the stack when
// the failure was a panic.
func errorAttrs(code string, cause error, kv ...any) []any {
	attrs := append([]any{"code", code}, kv...)
	attrs = append(attrs,
		"error_type", fmt.Sprintf("%T", cause),
		"error", cause)
	var pe *streams.PanicError
	if errors.As(cause, &pe) && pe.Stack != nil {
		attrs = append(attrs, "stack", string(pe.Stack))
	}
	return attrs
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
