// Package metrics exports motion session activity to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	collector := metrics.New(metrics.WithRegistry(reg))
//	session := channel.New(channel.Config{..., Observer: collector})
//
// The server exposes the registry at /metrics.
package metrics
