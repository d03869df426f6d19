package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	merrors "github.com/vango-dev/motion/internal/errors"
	"github.com/vango-dev/motion/pkg/channel"
	"github.com/vango-dev/motion/pkg/component"
	"github.com/vango-dev/motion/pkg/protocol"
)

// Conn is one client WebSocket connection and the session it hosts.
type Conn struct {
	id      string
	ws      *websocket.Conn
	server  *Server
	config  *ServerConfig
	logger  *slog.Logger
	session *channel.Session

	// writeMu serializes writes on ws. Close and WriteControl are safe
	// without it.
	writeMu sync.Mutex

	// Guarded by writeMu. Renders transmitted before the confirm frame
	// are held back, latest wins.
	confirmed  bool
	pending    component.Output
	hasPending bool

	events       chan *protocol.Message
	done         chan struct{}
	dispatchDone chan struct{}
	closed       atomic.Bool

	connectedAt   time.Time
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
	dropped       atomic.Uint64
}

func newConn(id string, ws *websocket.Conn, s *Server) *Conn {
	return &Conn{
		id:           id,
		ws:           ws,
		server:       s,
		config:       s.config,
		logger:       s.logger.With("session_id", id),
		events:       make(chan *protocol.Message, s.config.MaxEventQueue),
		done:         make(chan struct{}),
		dispatchDone: make(chan struct{}),
		connectedAt:  time.Now(),
	}
}

// ID returns the session id.
func (c *Conn) ID() string {
	return c.id
}

// Session returns the hosted session. It is nil until the handshake has
// been read.
func (c *Conn) Session() *channel.Session {
	return c.session
}

// Done is closed when the connection closes.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Transmit sends a render frame. It implements channel.Transmitter.
// Before the handshake is confirmed the render is held and written right
// after the confirm frame.
func (c *Conn) Transmit(out component.Output) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if !c.confirmed {
		c.pending, c.hasPending = out, true
		return nil
	}
	return c.writeLocked(protocol.NewRender(out))
}

// confirm writes the confirm frame followed by any held render.
func (c *Conn) confirm() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.writeLocked(protocol.NewConfirm(c.id)); err != nil {
		return err
	}
	c.confirmed = true
	if !c.hasPending {
		return nil
	}
	out := c.pending
	c.pending, c.hasPending = "", false
	return c.writeLocked(protocol.NewRender(out))
}

// writeLocked writes m. writeMu must be held.
func (c *Conn) writeLocked(m *protocol.Message) error {
	if c.closed.Load() {
		return &ConnError{SessionID: c.id, Op: "write " + m.Type.String(), Err: ErrConnectionClosed}
	}
	data, err := protocol.Encode(m)
	if err != nil {
		return &ConnError{SessionID: c.id, Op: "encode " + m.Type.String(), Err: err}
	}

	c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.server.wsError("write")
		c.logger.Error("write error", "type", m.Type, "error", err)
		return &ConnError{SessionID: c.id, Op: "write " + m.Type.String(), Err: err}
	}
	c.bytesSent.Add(uint64(len(data)))
	return nil
}

// Close closes the connection. It is safe to call more than once and from
// any goroutine.
func (c *Conn) Close() {
	c.closeWith(websocket.CloseGoingAway, "")
}

func (c *Conn) closeWith(code int, reason string) {
	if c.closed.Swap(true) {
		return
	}
	close(c.done)
	deadline := time.Now().Add(c.config.WriteTimeout)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.ws.Close()
}

// reject answers the handshake with a reject frame and closes.
func (c *Conn) reject(status protocol.HandshakeStatus, reason string) {
	c.writeMu.Lock()
	err := c.writeLocked(protocol.NewReject(status, reason))
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Debug("reject not delivered", "error", err)
	}
	c.closeWith(websocket.ClosePolicyViolation, status.String())
}

// serve runs the connection until the client leaves or the server closes
// it, then disconnects the session exactly once.
func (c *Conn) serve(ctx context.Context) {
	defer c.finish(ctx)

	c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	go c.heartbeat()
	go c.dispatchLoop(ctx)
	c.readLoop()
}

func (c *Conn) finish(ctx context.Context) {
	c.Close()
	<-c.dispatchDone

	if err := c.session.Disconnect(ctx); err != nil {
		c.logger.Debug("disconnect hook failed", "code", channel.AsMotionError(err).Code)
	}
	c.server.sessions.Remove(c.id)

	c.logger.Info("session closed",
		"duration", time.Since(c.connectedAt),
		"bytes_sent", c.bytesSent.Load(),
		"bytes_received", c.bytesReceived.Load(),
		"dropped_motions", c.dropped.Load())
}

// readLoop reads client messages until the connection fails or the client
// unsubscribes.
func (c *Conn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() && websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.server.wsError("read")
				c.logger.Error("read error", "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		c.bytesReceived.Add(uint64(len(data)))

		m, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("invalid message", "code", merrors.CodeInvalidMessage, "error", err)
			continue
		}

		switch m.Type {
		case protocol.TypeMotion:
			select {
			case c.events <- m:
			default:
				c.dropped.Add(1)
				c.logger.Warn("dropping motion", "motion", m.Name, "error", ErrEventQueueFull)
			}
		case protocol.TypeUnsubscribe:
			c.logger.Debug("client unsubscribed")
			return
		default:
			c.logger.Warn("unexpected message type", "code", merrors.CodeUnknownMessageType, "type", m.Type)
		}
	}
}

// dispatchLoop hands queued motions to the session in arrival order.
func (c *Conn) dispatchLoop(ctx context.Context) {
	defer close(c.dispatchDone)
	for {
		select {
		case <-c.done:
			return
		case m := <-c.events:
			// The session logs failures in full and stays connected.
			if err := c.session.ClientEvent(ctx, channel.ClientEvent{Name: m.Name, Event: m.Event}); err != nil {
				c.logger.Debug("motion not applied", "error", channel.AsMotionError(err).FormatCompact())
			}
		}
	}
}

// heartbeat pings the client until the connection closes.
func (c *Conn) heartbeat() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if !c.closed.Load() {
					c.server.wsError("ping")
					c.logger.Error("ping error", "error", err)
				}
				c.Close()
				return
			}
		}
	}
}
