package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestHub_PublishDeliversInOrder(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	got := make(chan any, 10)
	if _, err := hub.Subscribe("room:1", func(topic string, msg any) {
		if topic != "room:1" {
			t.Errorf("topic = %q, want %q", topic, "room:1")
		}
		got <- msg
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for i := 0; i < 5; i++ {
		n, err := hub.Publish(context.Background(), "room:1", i)
		if err != nil || n != 1 {
			t.Fatalf("Publish = %d, %v, want 1, nil", n, err)
		}
	}

	for i := 0; i < 5; i++ {
		select {
		case msg := <-got:
			if msg != i {
				t.Errorf("message %d = %v, want %d", i, msg, i)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for message %d", i)
		}
	}
}

func TestHub_PublishToOtherTopicNotDelivered(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	got := make(chan any, 1)
	hub.Subscribe("room:1", func(_ string, msg any) { got <- msg })

	n, err := hub.Publish(context.Background(), "room:2", "x")
	if err != nil || n != 0 {
		t.Fatalf("Publish = %d, %v, want 0, nil", n, err)
	}

	select {
	case msg := <-got:
		t.Errorf("unexpected delivery %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_CallbackIsAsynchronous(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	var mu sync.Mutex
	delivered := make(chan struct{})
	hub.Subscribe("t", func(string, any) {
		mu.Lock()
		defer mu.Unlock()
		close(delivered)
	})

	// Publishing while holding the lock the callback needs must not deadlock.
	mu.Lock()
	if _, err := hub.Publish(context.Background(), "t", nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	mu.Unlock()

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	sub, _ := hub.Subscribe("t", func(string, any) {})
	if hub.SubscriberCount("t") != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", hub.SubscriberCount("t"))
	}

	sub.Unsubscribe()
	sub.Unsubscribe()

	if hub.SubscriberCount("t") != 0 {
		t.Errorf("SubscriberCount = %d, want 0", hub.SubscriberCount("t"))
	}
	if len(hub.Topics()) != 0 {
		t.Errorf("Topics() = %v, want empty", hub.Topics())
	}
}

func TestHub_PanickingCallbackKeepsDelivering(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	got := make(chan any, 2)
	hub.Subscribe("t", func(_ string, msg any) {
		if msg == "boom" {
			panic("boom")
		}
		got <- msg
	})

	hub.Publish(context.Background(), "t", "boom")
	hub.Publish(context.Background(), "t", "ok")

	select {
	case msg := <-got:
		if msg != "ok" {
			t.Errorf("message = %v, want ok", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber stopped after panic")
	}
}

func TestHub_PublishBlocksUntilContextDone(t *testing.T) {
	hub := NewHub(WithBufferSize(1))
	defer hub.Close()

	release := make(chan struct{})
	hub.Subscribe("t", func(string, any) { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var err error
	for i := 0; i < 5 && err == nil; i++ {
		_, err = hub.Publish(ctx, "t", i)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Publish error = %v, want deadline exceeded", err)
	}
}

func TestHub_Closed(t *testing.T) {
	hub := NewHub()
	hub.Subscribe("t", func(string, any) {})
	hub.Close()
	hub.Close()

	if _, err := hub.Subscribe("t", func(string, any) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}
	if _, err := hub.Publish(context.Background(), "t", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
}

func TestHub_ConcurrentSubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := hub.Subscribe("shared", func(string, any) {}); err != nil {
				t.Errorf("Subscribe: %v", err)
			}
		}()
	}
	wg.Wait()

	if hub.SubscriberCount("shared") != n {
		t.Errorf("SubscriberCount = %d, want %d", hub.SubscriberCount("shared"), n)
	}
}
