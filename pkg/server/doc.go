// Package server hosts motion sessions over WebSocket.
//
// Each connection starts with a subscribe message carrying the client's
// protocol version and the serialized component state. The server builds a
// channel.Session for it, connects it, and answers with a confirm or reject
// message. Once confirmed, the connection runs three goroutines:
//
//   - readLoop: decodes client frames and queues motions
//   - dispatchLoop: hands queued motions to the session in arrival order
//   - heartbeat: pings the client and closes dead connections
//
// Renders triggered by motions or broadcasts are pushed as render messages.
// When the connection ends, for any reason, the session is disconnected
// exactly once and removed from the SessionManager.
//
// # Routes
//
// Handler serves the WebSocket endpoint at ServerConfig.Path, a JSON health
// report at /healthz, and Prometheus metrics at /metrics when WithMetrics
// was given a gatherer.
//
// # Example
//
//	hub := pubsub.NewHub()
//	srv, err := server.New(&server.ServerConfig{Address: ":8080"}, server.App{
//	    Substrate:  hub,
//	    Serializer: serializer,
//	    Renderer: func(string) (component.Renderer, error) {
//	        return render.Template(tmpl), nil
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(srv.Run(ctx))
package server
