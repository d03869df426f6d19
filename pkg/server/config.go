package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ServerConfig holds configuration for the HTTP/WebSocket server.
type ServerConfig struct {
	// Address is the address to listen on (e.g., ":8080" or "localhost:3000").
	// Default: ":8080".
	Address string

	// Path is the WebSocket endpoint.
	// Default: "/motion".
	Path string

	// WebSocket buffer sizes

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin is called to validate the request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// Timeouts

	// HandshakeTimeout is the maximum time to wait for the subscribe message.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// ReadTimeout is the maximum time to wait for a message or pong from
	// the client.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the time between heartbeat pings. It must be
	// shorter than ReadTimeout.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout bounds reading HTTP request headers.
	// Default: 5 seconds.
	ReadHeaderTimeout time.Duration

	// Limits

	// MaxMessageSize is the maximum size of an incoming WebSocket message.
	// Default: 64KB.
	MaxMessageSize int64

	// MaxSessions is the maximum number of concurrent sessions.
	// 0 means no limit.
	MaxSessions int

	// MaxEventQueue is the number of motions buffered per connection while
	// an earlier one is being processed. Motions beyond it are dropped.
	// Default: 256.
	MaxEventQueue int

	// RenderCacheSize is the number of renders cached per connection.
	// 0 disables the cache.
	// Default: 32.
	RenderCacheSize int
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
// SECURITY: CheckOrigin enforces same-origin by default to prevent CSWSH.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           ":8080",
		Path:              "/motion",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       SameOriginCheck,
		HandshakeTimeout:  10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxMessageSize:    64 * 1024, // 64KB
		MaxSessions:       0,         // No limit
		MaxEventQueue:     256,
		RenderCacheSize:   32,
	}
}

// withDefaults fills unset fields from DefaultServerConfig.
func (c *ServerConfig) withDefaults() *ServerConfig {
	defaults := DefaultServerConfig()
	if c == nil {
		return defaults
	}
	out := c.Clone()
	if out.Address == "" {
		out.Address = defaults.Address
	}
	if out.Path == "" {
		out.Path = defaults.Path
	}
	if out.ReadBufferSize == 0 {
		out.ReadBufferSize = defaults.ReadBufferSize
	}
	if out.WriteBufferSize == 0 {
		out.WriteBufferSize = defaults.WriteBufferSize
	}
	if out.CheckOrigin == nil {
		out.CheckOrigin = defaults.CheckOrigin
	}
	if out.HandshakeTimeout == 0 {
		out.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = defaults.ReadTimeout
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = defaults.WriteTimeout
	}
	if out.HeartbeatInterval == 0 {
		out.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if out.ReadHeaderTimeout == 0 {
		out.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if out.MaxMessageSize == 0 {
		out.MaxMessageSize = defaults.MaxMessageSize
	}
	if out.MaxEventQueue == 0 {
		out.MaxEventQueue = defaults.MaxEventQueue
	}
	return out
}

// SameOriginCheck validates that the WebSocket request origin matches the host.
// This is the secure default for CheckOrigin.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// No Origin header (e.g., same-origin request or curl)
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}
	return originURL.Host == host
}

// AllowAllOrigins accepts every origin. Use only in development.
func AllowAllOrigins(*http.Request) bool {
	return true
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// WithAddress returns c with Address set.
func (c *ServerConfig) WithAddress(addr string) *ServerConfig {
	c.Address = addr
	return c
}

// WithMaxSessions returns c with MaxSessions set.
func (c *ServerConfig) WithMaxSessions(max int) *ServerConfig {
	c.MaxSessions = max
	return c
}

// ValidateConfig reports configuration errors.
func (c *ServerConfig) ValidateConfig() error {
	var problems []string
	if !strings.HasPrefix(c.Path, "/") {
		problems = append(problems, fmt.Sprintf("path %q must start with /", c.Path))
	}
	if c.HeartbeatInterval >= c.ReadTimeout {
		problems = append(problems, fmt.Sprintf("heartbeat interval %v must be shorter than read timeout %v", c.HeartbeatInterval, c.ReadTimeout))
	}
	if c.MaxSessions < 0 {
		problems = append(problems, "max sessions must not be negative")
	}
	if c.MaxMessageSize < 0 {
		problems = append(problems, "max message size must not be negative")
	}
	if c.RenderCacheSize < 0 {
		problems = append(problems, "render cache size must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
