package server

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// SessionManager tracks the live connections of a server.
type SessionManager struct {
	// Connections map protected by RWMutex
	conns  map[string]*Conn
	mu     sync.RWMutex
	closed bool

	maxSessions int

	// Metrics
	totalCreated atomic.Uint64
	totalClosed  atomic.Uint64
	peakSessions int

	// Callbacks
	onSessionCreate func(*Conn)
	onSessionClose  func(*Conn)

	logger *slog.Logger
}

// NewSessionManager creates a manager admitting at most maxSessions
// connections. 0 means no limit.
func NewSessionManager(maxSessions int, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		conns:       make(map[string]*Conn),
		maxSessions: maxSessions,
		logger:      logger.With("component", "session_manager"),
	}
}

// Add registers c, or fails with ErrMaxSessionsReached.
func (sm *SessionManager) Add(c *Conn) error {
	sm.mu.Lock()
	if sm.closed {
		sm.mu.Unlock()
		return ErrServerClosed
	}
	if sm.maxSessions > 0 && len(sm.conns) >= sm.maxSessions {
		sm.mu.Unlock()
		sm.logger.Warn("session limit reached", "max", sm.maxSessions)
		return ErrMaxSessionsReached
	}
	sm.conns[c.ID()] = c
	if n := len(sm.conns); n > sm.peakSessions {
		sm.peakSessions = n
	}
	onCreate := sm.onSessionCreate
	sm.mu.Unlock()

	sm.totalCreated.Add(1)
	if onCreate != nil {
		onCreate(c)
	}
	return nil
}

// Remove unregisters the connection with id. Removing an unknown id is a
// no-op.
func (sm *SessionManager) Remove(id string) {
	sm.mu.Lock()
	c, ok := sm.conns[id]
	delete(sm.conns, id)
	onClose := sm.onSessionClose
	sm.mu.Unlock()

	if !ok {
		return
	}
	sm.totalClosed.Add(1)
	if onClose != nil {
		onClose(c)
	}
}

// Get returns the connection with id, or nil.
func (sm *SessionManager) Get(id string) *Conn {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.conns[id]
}

// Count returns the number of live connections.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.conns)
}

// IDs returns the live session ids, sorted.
func (sm *SessionManager) IDs() []string {
	sm.mu.RLock()
	ids := make([]string, 0, len(sm.conns))
	for id := range sm.conns {
		ids = append(ids, id)
	}
	sm.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// ForEach calls fn for each live connection until fn returns false.
func (sm *SessionManager) ForEach(fn func(*Conn) bool) {
	sm.mu.RLock()
	conns := make([]*Conn, 0, len(sm.conns))
	for _, c := range sm.conns {
		conns = append(conns, c)
	}
	sm.mu.RUnlock()

	for _, c := range conns {
		if !fn(c) {
			return
		}
	}
}

// SetOnSessionCreate sets a callback run after a connection is added.
func (sm *SessionManager) SetOnSessionCreate(fn func(*Conn)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onSessionCreate = fn
}

// SetOnSessionClose sets a callback run after a connection is removed.
func (sm *SessionManager) SetOnSessionClose(fn func(*Conn)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onSessionClose = fn
}

// Shutdown refuses new connections and closes every live one. Each
// connection's own goroutine disconnects its session and removes it.
func (sm *SessionManager) Shutdown() {
	sm.mu.Lock()
	sm.closed = true
	conns := make([]*Conn, 0, len(sm.conns))
	for _, c := range sm.conns {
		conns = append(conns, c)
	}
	sm.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	sm.logger.Info("session manager shutdown", "closed", len(conns))
}

// Stats returns aggregated statistics.
func (sm *SessionManager) Stats() ManagerStats {
	sm.mu.RLock()
	active := len(sm.conns)
	peak := sm.peakSessions
	sm.mu.RUnlock()

	return ManagerStats{
		Active:       active,
		TotalCreated: sm.totalCreated.Load(),
		TotalClosed:  sm.totalClosed.Load(),
		Peak:         peak,
	}
}

// ManagerStats contains aggregated session manager statistics.
type ManagerStats struct {
	Active       int    `json:"active"`
	TotalCreated uint64 `json:"total_created"`
	TotalClosed  uint64 `json:"total_closed"`
	Peak         int    `json:"peak"`
}
