package vtest

import (
	"sync"

	"github.com/vango-dev/motion/pkg/pubsub"
)

// Substrate is a pub/sub substrate for tests. It records every Subscribe
// call and delivers only when the test calls Deliver, on the test's own
// goroutine.
type Substrate struct {
	mu     sync.Mutex
	subs   map[string][]*testSub
	calls  []string
	failOn map[string]error
}

// NewSubstrate creates an empty recording substrate.
func NewSubstrate() *Substrate {
	return &Substrate{
		subs:   make(map[string][]*testSub),
		failOn: make(map[string]error),
	}
}

// Subscribe records the call and installs cb.
func (s *Substrate) Subscribe(topic string, cb pubsub.Callback) (pubsub.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, topic)
	if err, ok := s.failOn[topic]; ok {
		delete(s.failOn, topic)
		return nil, err
	}
	sub := &testSub{topic: topic, cb: cb, owner: s}
	s.subs[topic] = append(s.subs[topic], sub)
	return sub, nil
}

// FailNext makes the next Subscribe for topic return err.
func (s *Substrate) FailNext(topic string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[topic] = err
}

// Deliver invokes every live callback for topic with msg and returns how
// many ran.
func (s *Substrate) Deliver(topic string, msg any) int {
	s.mu.Lock()
	subs := append([]*testSub(nil), s.subs[topic]...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.cb(topic, msg)
	}
	return len(subs)
}

// Calls returns the topic of every Subscribe call, in order.
func (s *Substrate) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallCount returns how many times Subscribe was called for topic.
func (s *Substrate) CallCount(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		if c == topic {
			n++
		}
	}
	return n
}

// Live returns the number of installed, not unsubscribed, callbacks for topic.
func (s *Substrate) Live(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[topic])
}

type testSub struct {
	topic string
	cb    pubsub.Callback
	owner *Substrate
}

func (t *testSub) Unsubscribe() {
	s := t.owner
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subs[t.topic]
	for i, sub := range subs {
		if sub == t {
			s.subs[t.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(s.subs[t.topic]) == 0 {
		delete(s.subs, t.topic)
	}
}
