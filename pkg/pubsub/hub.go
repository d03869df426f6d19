package pubsub

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscription queue length.
const DefaultBufferSize = 256

// ErrClosed is returned by Subscribe and Publish after Close.
var ErrClosed = errors.New("pubsub: hub closed")

// Callback receives messages published to a topic.
type Callback func(topic string, msg any)

// Subscription is a handle to an installed callback.
type Subscription interface {
	// Unsubscribe stops delivery. It is safe to call more than once.
	Unsubscribe()
}

// Substrate is the subscription side of a pub/sub system.
//
// Callbacks must be invoked asynchronously: never from inside the
// Subscribe call that installed them, and never from inside a Publish call.
// Callers hold non-reentrant locks across Subscribe.
type Substrate interface {
	Subscribe(topic string, cb Callback) (Subscription, error)
}

// Hub is an in-memory Substrate.
//
// Each subscription owns a buffered queue drained by its own goroutine, so
// messages for one subscription arrive in publish order while different
// subscriptions proceed independently.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]*subscriber
	closed bool

	nextID  atomic.Uint64
	bufSize int
	logger  *slog.Logger

	published atomic.Uint64
	delivered atomic.Uint64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBufferSize sets the per-subscription queue length.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufSize = n
		}
	}
}

// WithLogger sets the logger used for recovered callback panics.
func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		topics:  make(map[string]map[uint64]*subscriber),
		bufSize: DefaultBufferSize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "pubsub")
	return h
}

// Subscribe installs cb for topic and starts its delivery goroutine.
func (h *Hub) Subscribe(topic string, cb Callback) (Subscription, error) {
	if cb == nil {
		return nil, errors.New("pubsub: nil callback")
	}

	s := &subscriber{
		id:    h.nextID.Add(1),
		topic: topic,
		cb:    cb,
		queue: make(chan any, h.bufSize),
		done:  make(chan struct{}),
		hub:   h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[uint64]*subscriber)
		h.topics[topic] = subs
	}
	subs[s.id] = s
	h.mu.Unlock()

	go s.run()
	return s, nil
}

// Publish enqueues msg for every subscriber of topic and returns how many
// subscribers accepted it. It blocks while a subscriber's queue is full,
// until ctx is done.
func (h *Hub) Publish(ctx context.Context, topic string, msg any) (int, error) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0, ErrClosed
	}
	subs := make([]*subscriber, 0, len(h.topics[topic]))
	for _, s := range h.topics[topic] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	h.published.Add(1)

	n := 0
	for _, s := range subs {
		select {
		case s.queue <- msg:
			n++
		case <-s.done:
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
	return n, nil
}

// Topics returns the topics with at least one subscriber, sorted.
func (h *Hub) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	topics := make([]string, 0, len(h.topics))
	for t, subs := range h.topics {
		if len(subs) > 0 {
			topics = append(topics, t)
		}
	}
	sort.Strings(topics)
	return topics
}

// SubscriberCount returns the number of live subscriptions for topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Stats returns the number of publish calls and callback invocations.
func (h *Hub) Stats() (published, delivered uint64) {
	return h.published.Load(), h.delivered.Load()
}

// Close stops every subscription. Queued messages are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*subscriber
	for _, subs := range h.topics {
		for _, s := range subs {
			all = append(all, s)
		}
	}
	h.topics = make(map[string]map[uint64]*subscriber)
	h.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.topics[s.topic]
	delete(subs, s.id)
	if len(subs) == 0 {
		delete(h.topics, s.topic)
	}
}

type subscriber struct {
	id    uint64
	topic string
	cb    Callback
	queue chan any
	done  chan struct{}
	once  sync.Once
	hub   *Hub
}

func (s *subscriber) Unsubscribe() {
	s.hub.remove(s)
	s.stop()
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	for {
		select {
		case msg := <-s.queue:
			// Prefer shutdown over draining a backlog.
			select {
			case <-s.done:
				return
			default:
			}
			s.deliver(msg)
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) deliver(msg any) {
	defer func() {
		if r := recover(); r != nil {
			s.hub.logger.Error("subscriber panic",
				"topic", s.topic,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	s.hub.delivered.Add(1)
	s.cb(s.topic, msg)
}
