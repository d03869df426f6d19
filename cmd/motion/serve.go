package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/motion/internal/config"
	merrors "github.com/vango-dev/motion/internal/errors"
	"github.com/vango-dev/motion/pkg/metrics"
	"github.com/vango-dev/motion/pkg/pubsub"
	"github.com/vango-dev/motion/pkg/server"
)

// maxPublishBody caps POST /publish/{topic} bodies.
const maxPublishBody = 64 * 1024

type serveOptions struct {
	configPath      string
	port            int
	host            string
	path            string
	maxSessions     int
	metrics         bool
	logLevel        string
	logFormat       string
	allowAllOrigins bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo room component",
		Long: `Serve the demo chat room over WebSocket.

Configuration is read from motion.json in the working directory or
a parent, or from --config. Flags override the file.

Routes:
  GET  /motion            WebSocket endpoint (see --path)
  GET  /healthz           health and session statistics
  GET  /metrics           Prometheus metrics (with --metrics)
  POST /publish/{topic}   publish the request body to a topic

Examples:
  motion serve
  motion serve --port=9000 --metrics
  motion serve --config=deploy/motion.json --log-format=json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, os.Stderr)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to motion.json")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Port to listen on (default from motion.json)")
	cmd.Flags().StringVarP(&opts.host, "host", "H", "", "Host to bind to (default from motion.json)")
	cmd.Flags().StringVar(&opts.path, "path", "", "WebSocket endpoint path")
	cmd.Flags().IntVar(&opts.maxSessions, "max-sessions", 0, "Maximum concurrent sessions (0 = no limit)")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Serve Prometheus metrics at /metrics")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	cmd.Flags().BoolVar(&opts.allowAllOrigins, "allow-all-origins", false, "Disable the same-origin check (development only)")

	return cmd
}

// loadServeConfig loads motion.json if there is one and applies flags that
// were set explicitly.
func loadServeConfig(cmd *cobra.Command, opts serveOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	default:
		cfg, err = config.LoadFromWorkingDir()
		if merrors.CodeOf(err) == merrors.CodeMissingConfig {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if flags.Changed("host") {
		cfg.Server.Host = opts.host
	}
	if flags.Changed("path") {
		cfg.Server.Path = opts.path
	}
	if flags.Changed("max-sessions") {
		cfg.Server.MaxSessions = opts.maxSessions
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled = opts.metrics
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if flags.Changed("allow-all-origins") {
		cfg.Server.AllowAllOrigins = opts.allowAllOrigins
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newDemoServer wires the room component to a server. The hub is returned
// so the caller can close it.
func newDemoServer(cfg *config.Config, logger *slog.Logger) (*server.Server, *pubsub.Hub, error) {
	sc, err := cfg.ToServerConfig()
	if err != nil {
		return nil, nil, err
	}

	hub := pubsub.NewHub(pubsub.WithLogger(logger))
	app := server.App{
		Substrate:  hub,
		Serializer: roomSerializer(hub, logger),
		Renderer:   roomRenderer,
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithRoutes(func(r chi.Router) {
			r.Post("/publish/{topic}", publishHandler(hub, logger))
		}),
	}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector := metrics.New(
			metrics.WithRegistry(reg),
			metrics.WithNamespace(cfg.Metrics.Namespace),
		)
		opts = append(opts, server.WithMetrics(collector, reg))
	}

	srv, err := server.New(sc, app, opts...)
	if err != nil {
		hub.Close()
		return nil, nil, err
	}
	return srv, hub, nil
}

func runServe(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	logger := newLogger(logOut, level, cfg.Log.Format)

	srv, hub, err := newDemoServer(cfg, logger)
	if err != nil {
		return err
	}
	defer hub.Close()

	printBanner()
	success("Serving on %s%s", cfg.Address(), cfg.Server.Path)
	if cfg.Path() != "" {
		info("Config: %s", cfg.Path())
	}
	if cfg.Metrics.Enabled {
		info("Metrics: %s/metrics", cfg.Address())
	}
	info("Press Ctrl+C to stop")
	info("")

	if err := srv.Run(ctx); err != nil {
		errorMsg("Server stopped: %v", err)
		return err
	}
	return nil
}

type publishResponse struct {
	Topic     string `json:"topic"`
	Delivered int    `json:"delivered"`
}

// publishHandler publishes the request body, as a string, to {topic}.
func publishHandler(hub *pubsub.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topic := chi.URLParam(r, "topic")
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPublishBody))
		if err != nil {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		if len(body) == 0 {
			http.Error(w, "empty message", http.StatusBadRequest)
			return
		}

		n, err := hub.Publish(r.Context(), topic, string(body))
		if err != nil {
			logger.Error("publish failed", "topic", topic, "error", err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(publishResponse{Topic: topic, Delivered: n})
	}
}
