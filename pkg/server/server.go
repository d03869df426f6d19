package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/motion/pkg/channel"
	"github.com/vango-dev/motion/pkg/component"
	"github.com/vango-dev/motion/pkg/metrics"
	"github.com/vango-dev/motion/pkg/protocol"
	"github.com/vango-dev/motion/pkg/pubsub"
	"github.com/vango-dev/motion/pkg/render"
)

// RendererFactory builds the renderer for one connection. It is called once
// per connection, after the subscribe message has been read.
type RendererFactory func(sessionID string) (component.Renderer, error)

// App is what the server hosts: where components come from, how they are
// rendered, and the substrate their broadcasts arrive on.
type App struct {
	Substrate  pubsub.Substrate
	Serializer component.Serializer
	Renderer   RendererFactory
}

// Server is the HTTP/WebSocket host for motion sessions.
type Server struct {
	config   *ServerConfig
	app      App
	sessions *SessionManager
	upgrader websocket.Upgrader

	logger    *slog.Logger
	tracer    trace.Tracer
	collector *metrics.Collector
	gatherer  prometheus.Gatherer

	routes []func(chi.Router)

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the tracer handed to every session.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// WithMetrics instruments every session with collector and serves gatherer
// at /metrics. Either may be nil.
func WithMetrics(collector *metrics.Collector, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.collector = collector
		s.gatherer = gatherer
	}
}

// WithRoutes mounts extra routes on the router returned by Handler.
func WithRoutes(fn func(r chi.Router)) Option {
	return func(s *Server) {
		s.routes = append(s.routes, fn)
	}
}

// New creates a Server with the given configuration. Unset fields of config
// take their defaults.
func New(config *ServerConfig, app App, opts ...Option) (*Server, error) {
	if app.Substrate == nil || app.Serializer == nil || app.Renderer == nil {
		return nil, fmt.Errorf("%w: substrate, serializer and renderer factory are required", ErrMissingDependency)
	}
	config = config.withDefaults()
	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	s := &Server{
		config: config,
		app:    app,
		logger: slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	s.sessions = NewSessionManager(config.MaxSessions, s.logger)
	return s, nil
}

// Config returns the effective configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Handler returns the server's routes:
//   - GET {Path}: WebSocket endpoint
//   - GET /healthz: liveness and session statistics
//   - GET /metrics: Prometheus metrics, when a gatherer is configured
//   - anything mounted with WithRoutes
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(s.config.Path, s.HandleWebSocket)
	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	for _, fn := range s.routes {
		fn(r)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status   string       `json:"status"`
		Version  string       `json:"version"`
		Sessions ManagerStats `json:"sessions"`
	}{
		Status:   "ok",
		Version:  protocol.Version,
		Sessions: s.sessions.Stats(),
	})
}

// HandleWebSocket upgrades the request, reads the subscribe message, connects
// a session and serves it until the connection ends.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.wsError("upgrade")
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	ws.SetReadLimit(s.config.MaxMessageSize)
	ws.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout))

	_, data, err := ws.ReadMessage()
	if err != nil {
		s.logger.Warn("handshake read failed", "error", err)
		ws.Close()
		return
	}

	c := newConn(uuid.NewString(), ws, s)

	msg, err := protocol.Decode(data)
	if err == nil && msg.Type != protocol.TypeSubscribe {
		err = fmt.Errorf("%w: first message is %s", ErrInvalidHandshake, msg.Type)
	}
	if err != nil {
		s.logger.Warn("invalid handshake", "error", err)
		s.rejected("invalid_format")
		c.reject(protocol.HandshakeInvalidFormat, "expected subscribe message")
		return
	}

	if err := s.sessions.Add(c); err != nil {
		s.rejected("server_busy")
		c.reject(protocol.HandshakeServerBusy, "server busy")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	if err := s.attach(ctx, c, msg); err != nil {
		s.sessions.Remove(c.id)
		return
	}
	c.serve(ctx)
}

// attach builds the connection's session and answers the handshake.
//
// Renders produced during Connect, or by broadcasts that arrive before the
// confirm frame, are held by the Conn until confirm. No lock is held while
// the session runs, since session code takes the router lock and then
// writeMu.
func (s *Server) attach(ctx context.Context, c *Conn, msg *protocol.Message) error {
	renderer, err := s.app.Renderer(c.id)
	if err != nil {
		s.logger.Error("renderer factory failed", "session_id", c.id, "error", err)
		s.rejected("internal_error")
		c.reject(protocol.HandshakeInternalError, "renderer unavailable")
		return err
	}
	if s.config.RenderCacheSize > 0 {
		cache, err := render.Cached(renderer, s.config.RenderCacheSize)
		if err != nil {
			s.logger.Warn("render cache disabled", "error", err)
		} else {
			renderer = cache
		}
	}

	cfg := channel.Config{
		ID:          c.id,
		Substrate:   s.app.Substrate,
		Serializer:  s.app.Serializer,
		Renderer:    renderer,
		Transmitter: c,
		Version:     protocol.Version,
		Logger:      s.logger,
		Tracer:      s.tracer,
	}
	if s.collector != nil {
		cfg.Observer = s.collector
	}
	c.session = channel.New(cfg)

	if err := c.session.Connect(ctx, channel.Handshake{Version: msg.Version, State: msg.State}); err != nil {
		me := channel.AsMotionError(err)
		s.logger.Warn("handshake rejected", "session_id", c.id, "error", me.FormatCompact(), "cause", me.Wrapped)
		status, reason := protocol.HandshakeInternalError, "component failed to connect"
		if errors.Is(err, channel.ErrProtocolIncompatible) {
			status = protocol.HandshakeVersionMismatch
			reason = fmt.Sprintf("client version %q does not match server version %q", msg.Version, protocol.Version)
		}
		c.reject(status, reason)
		return err
	}

	if err := c.confirm(); err != nil {
		c.Close()
		_ = c.session.Disconnect(ctx)
		return err
	}
	return nil
}

// Disconnect closes the connection with id. Its session is disconnected by
// the connection's own goroutine.
func (s *Server) Disconnect(id string) error {
	c := s.sessions.Get(id)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	c.Close()
	return nil
}

func (s *Server) rejected(reason string) {
	if s.collector != nil {
		s.collector.SessionRejected(reason)
	}
}

func (s *Server) wsError(kind string) {
	if s.collector != nil {
		s.collector.WebSocketError(kind)
	}
}

// Run serves HTTP on the configured address until ctx is done, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server starting", "address", s.config.Address, "path", s.config.Path)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	})
	return g.Wait()
}

// Shutdown closes every connection and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.sessions.Shutdown()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}
