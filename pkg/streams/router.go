package streams

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	merrors "github.com/vango-dev/motion/internal/errors"
	"github.com/vango-dev/motion/pkg/pubsub"
)

// Handler receives a broadcast routed to it.
type Handler func(topic string, msg any) error

// Drop reasons reported to Observer.BroadcastDropped.
const (
	DropUndeclared    = "undeclared"
	DropNoTarget      = "no_target"
	DropUnknownTarget = "unknown_target"
)

// Observer is notified of routing activity. Methods are called with the
// router lock held and must not call back into the router.
type Observer interface {
	SubscriptionInstalled(topic string)
	BroadcastDelivered(topic string)
	BroadcastDropped(topic, reason string)
	BroadcastFailed(topic string, err error)
}

// Router routes broadcasts from a dynamic set of declared topics to a single
// named handler, on top of a substrate that only ever gains subscriptions.
//
// Router also owns the session lock. Every entry point of the owning session
// runs inside Synchronize, and so does every delivery, so at most one of them
// executes at a time.
type Router struct {
	mu sync.Mutex

	substrate pubsub.Substrate
	handlers  map[string]Handler

	// Topics the owner currently wants and where they go.
	declared map[string]struct{}
	target   string

	// Topics with an installed substrate subscription. Only grows until
	// Teardown.
	subscribed map[string]pubsub.Subscription

	owner    string
	logger   *slog.Logger
	observer Observer
}

// Option configures a Router.
type Option func(*Router)

// WithOwner names the session that owns the router, for log context.
func WithOwner(id string) Option {
	return func(r *Router) {
		r.owner = id
	}
}

// WithLogger sets the router's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver sets an observer for routing activity.
func WithObserver(o Observer) Option {
	return func(r *Router) {
		r.observer = o
	}
}

// New creates a router with no declared topics, no target and no
// subscriptions.
func New(substrate pubsub.Substrate, opts ...Option) *Router {
	r := &Router{
		substrate:  substrate,
		handlers:   make(map[string]Handler),
		declared:   make(map[string]struct{}),
		subscribed: make(map[string]pubsub.Subscription),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "streams")
	if r.owner != "" {
		r.logger = r.logger.With("session_id", r.owner)
	}
	return r
}

// Handle registers h as the routing target named id. It must not be called
// inside Synchronize.
func (r *Router) Handle(id string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = h
}

// Synchronize runs fn inside the router's critical section.
// fn must not call Synchronize.
func (r *Router) Synchronize(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// SetRouting replaces the declared topics and routing target, then ensures a
// substrate subscription exists for every declared topic. It must be called
// inside Synchronize.
//
// Calling it again with the same topics installs nothing. Topics dropped from
// the declaration keep their subscription; their messages are discarded at
// delivery time. If the substrate refuses some topics, the others are still
// installed and the joined error is returned; refused topics are retried on
// the next call.
func (r *Router) SetRouting(topics []string, target string) error {
	declared := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		declared[t] = struct{}{}
	}
	r.declared = declared
	r.target = target

	var errs []error
	for _, t := range sortedKeys(declared) {
		if err := r.ensureSubscription(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Router) ensureSubscription(topic string) error {
	if _, ok := r.subscribed[topic]; ok {
		return nil
	}
	sub, err := r.substrate.Subscribe(topic, func(t string, msg any) {
		r.deliver(topic, msg)
	})
	if err != nil {
		r.logger.Warn("subscribe failed",
			"code", merrors.CodeSubscribeFailure,
			"topic", topic,
			"error", err)
		return &SubscribeError{Topic: topic, Err: err}
	}
	r.subscribed[topic] = sub
	if r.observer != nil {
		r.observer.SubscriptionInstalled(topic)
	}
	r.logger.Debug("subscribed", "topic", topic)
	return nil
}

// Target returns the current routing target. It must be called inside
// Synchronize.
func (r *Router) Target() string {
	return r.target
}

// Declared returns the declared topics, sorted. It must be called inside
// Synchronize.
func (r *Router) Declared() []string {
	return sortedKeys(r.declared)
}

// Subscribed returns the topics with an installed subscription, sorted.
// It must be called inside Synchronize.
func (r *Router) Subscribed() []string {
	topics := make([]string, 0, len(r.subscribed))
	for t := range r.subscribed {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Teardown forgets every declaration and subscription and releases the
// substrate subscriptions. It must be called inside Synchronize.
//
// Messages already queued by the substrate may still arrive afterwards; they
// are dropped because nothing is declared.
func (r *Router) Teardown() {
	for _, sub := range r.subscribed {
		sub.Unsubscribe()
	}
	r.declared = make(map[string]struct{})
	r.target = ""
	r.subscribed = make(map[string]pubsub.Subscription)
}

// deliver is the substrate callback. Nothing raised by the handler may
// escape: a panic here would take down the substrate's delivery goroutine,
// which other sessions share.
func (r *Router) deliver(topic string, msg any) {
	defer func() {
		if rec := recover(); rec != nil {
			stack := debug.Stack()
			r.contain(topic, &PanicError{Value: rec, Stack: stack}, stack)
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.declared[topic]; !ok {
		r.drop(topic, DropUndeclared)
		return
	}
	if r.target == "" {
		r.drop(topic, DropNoTarget)
		return
	}
	h, ok := r.handlers[r.target]
	if !ok {
		r.drop(topic, DropUnknownTarget)
		return
	}

	if err := h(topic, msg); err != nil {
		r.failed(topic, err, debug.Stack())
		return
	}
	if r.observer != nil {
		r.observer.BroadcastDelivered(topic)
	}
}

func (r *Router) drop(topic, reason string) {
	r.logger.Debug("dropped broadcast", "topic", topic, "reason", reason, "target", r.target)
	if r.observer != nil {
		r.observer.BroadcastDropped(topic, reason)
	}
}

// failed records a handler error. The router lock is held.
func (r *Router) failed(topic string, err error, stack []byte) {
	derr := &DeliveryError{Topic: topic, Owner: r.owner, Err: err}
	var logged *loggedError
	if !errors.As(err, &logged) {
		r.logger.Error("broadcast delivery failed",
			"code", merrors.CodeRoutingDeliveryFailure,
			"topic", topic,
			"error_type", fmt.Sprintf("%T", err),
			"error", err,
			"stack", string(stack))
	}
	if r.observer != nil {
		r.observer.BroadcastFailed(topic, derr)
	}
}

// contain records a panic. The router lock has already been released.
func (r *Router) contain(topic string, err error, stack []byte) {
	derr := &DeliveryError{Topic: topic, Owner: r.owner, Err: err}
	r.logger.Error("broadcast delivery panic",
		"code", merrors.CodeRoutingDeliveryFailure,
		"topic", topic,
		"error_type", fmt.Sprintf("%T", err),
		"error", err,
		"stack", string(stack))
	if r.observer != nil {
		r.mu.Lock()
		r.observer.BroadcastFailed(topic, derr)
		r.mu.Unlock()
	}
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
