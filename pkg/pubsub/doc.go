// Package pubsub defines the substrate that carries broadcasts between
// sessions and provides Hub, an in-memory implementation.
//
// A substrate delivers messages published to a named topic to every callback
// subscribed to that topic. Topic names are opaque strings. Delivery is
// asynchronous: a callback never runs on the goroutine that called Subscribe
// or Publish, which lets subscribers take locks they may already hold while
// subscribing.
//
//	hub := pubsub.NewHub()
//	sub, _ := hub.Subscribe("room:1", func(topic string, msg any) {
//	    fmt.Println(topic, msg)
//	})
//	defer sub.Unsubscribe()
//
//	hub.Publish(ctx, "room:1", "hello")
package pubsub
