package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vango-dev/motion/internal/errors"
	"github.com/vango-dev/motion/pkg/server"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "motion.json"

	// DefaultPort is the default server port.
	DefaultPort = 8080

	// DefaultPath is the default WebSocket endpoint.
	DefaultPath = "/motion"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default log format.
	DefaultLogFormat = "text"

	// DefaultMetricsNamespace is the default Prometheus namespace.
	DefaultMetricsNamespace = "motion"
)

// Config represents the complete motion.json configuration.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty"`

	// Server contains listener and limit configuration.
	Server ServerSection `json:"server,omitempty"`

	// Timeouts contains connection timeouts as duration strings.
	Timeouts TimeoutsConfig `json:"timeouts,omitempty"`

	// Metrics contains Prometheus configuration.
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// Log contains logging configuration.
	Log LogConfig `json:"log,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerSection contains listener and limit settings.
type ServerSection struct {
	// Host is the host to bind to. Empty binds every interface.
	Host string `json:"host,omitempty"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty"`

	// Path is the WebSocket endpoint.
	Path string `json:"path,omitempty"`

	// AllowAllOrigins disables the same-origin check. Development only.
	AllowAllOrigins bool `json:"allowAllOrigins,omitempty"`

	// MaxSessions caps concurrent sessions. 0 means no limit.
	MaxSessions int `json:"maxSessions,omitempty"`

	// MaxMessageSize caps incoming frames, in bytes.
	MaxMessageSize int64 `json:"maxMessageSize,omitempty"`

	// MaxEventQueue is the per-connection motion queue length.
	MaxEventQueue int `json:"maxEventQueue,omitempty"`

	// RenderCacheSize is the per-connection render cache size.
	RenderCacheSize int `json:"renderCacheSize,omitempty"`
}

// TimeoutsConfig contains timeouts such as "10s" or "1m".
type TimeoutsConfig struct {
	Handshake string `json:"handshake,omitempty"`
	Read      string `json:"read,omitempty"`
	Write     string `json:"write,omitempty"`
	Heartbeat string `json:"heartbeat,omitempty"`
	Shutdown  string `json:"shutdown,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled serves /metrics and instruments every session.
	Enabled bool `json:"enabled,omitempty"`

	// Namespace prefixes every metric name.
	Namespace string `json:"namespace,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerSection{
			Port: DefaultPort,
			Path: DefaultPath,
		},
		Timeouts: TimeoutsConfig{
			Handshake: "10s",
			Read:      "60s",
			Write:     "10s",
			Heartbeat: "30s",
			Shutdown:  "30s",
		},
		Metrics: MetricsConfig{
			Namespace: DefaultMetricsNamespace,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for motion.json in the directory.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	return LoadFile(configPath)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeMissingConfig).
				WithDetail("No motion.json found in " + filepath.Dir(path)).
				WithSuggestion("Create motion.json or pass flags to 'motion serve'").
				Wrap(err)
		}
		return nil, errors.New(errors.CodeInvalidConfig).Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New(errors.CodeInvalidConfig).
			WithDetail("Failed to parse motion.json: " + err.Error()).
			WithSuggestion("Check that motion.json is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New(errors.CodeInvalidConfig).Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New(errors.CodeInvalidConfig).Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()

	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.Path == "" {
		c.Server.Path = d.Server.Path
	}

	// Timeouts
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&c.Timeouts.Handshake, d.Timeouts.Handshake)
	fill(&c.Timeouts.Read, d.Timeouts.Read)
	fill(&c.Timeouts.Write, d.Timeouts.Write)
	fill(&c.Timeouts.Heartbeat, d.Timeouts.Heartbeat)
	fill(&c.Timeouts.Shutdown, d.Timeouts.Shutdown)

	fill(&c.Metrics.Namespace, d.Metrics.Namespace)
	fill(&c.Log.Level, d.Log.Level)
	fill(&c.Log.Format, d.Log.Format)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New(errors.CodeInvalidPort).
			WithDetail("Port must be between 1 and 65535, got " + strconv.Itoa(c.Server.Port)).
			WithField("field", "server.port")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return errors.New(errors.CodeInvalidConfig).
			WithDetail("server.path must start with /, got " + strconv.Quote(c.Server.Path)).
			WithField("field", "server.path")
	}
	if c.Server.MaxSessions < 0 || c.Server.MaxEventQueue < 0 || c.Server.RenderCacheSize < 0 || c.Server.MaxMessageSize < 0 {
		return errors.New(errors.CodeInvalidConfig).
			WithDetail("server limits must not be negative")
	}
	if _, err := c.timeouts(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		return errors.New(errors.CodeInvalidConfig).
			WithDetail("log.format must be text or json, got " + strconv.Quote(f)).
			WithField("field", "log.format")
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, errors.New(errors.CodeInvalidConfig).
			WithDetail("log.level must be debug, info, warn or error").
			WithField("field", "log.level").
			Wrap(err)
	}
	return level, nil
}

type timeouts struct {
	handshake, read, write, heartbeat, shutdown time.Duration
}

func (c *Config) timeouts() (timeouts, error) {
	var t timeouts
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeouts.handshake", c.Timeouts.Handshake, &t.handshake},
		{"timeouts.read", c.Timeouts.Read, &t.read},
		{"timeouts.write", c.Timeouts.Write, &t.write},
		{"timeouts.heartbeat", c.Timeouts.Heartbeat, &t.heartbeat},
		{"timeouts.shutdown", c.Timeouts.Shutdown, &t.shutdown},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil || d <= 0 {
			me := errors.New(errors.CodeInvalidDuration).
				WithDetail(f.name + " is not a positive duration: " + strconv.Quote(f.raw)).
				WithField("field", f.name)
			if err != nil {
				me = me.Wrap(err)
			}
			return t, me
		}
		*f.dst = d
	}
	return t, nil
}

// ToServerConfig converts c into a server configuration. Unset values keep
// the server's defaults.
func (c *Config) ToServerConfig() (*server.ServerConfig, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	t, err := c.timeouts()
	if err != nil {
		return nil, err
	}

	sc := server.DefaultServerConfig()
	sc.Address = c.Address()
	sc.Path = c.Server.Path
	sc.MaxSessions = c.Server.MaxSessions
	if c.Server.AllowAllOrigins {
		sc.CheckOrigin = server.AllowAllOrigins
	}
	if c.Server.MaxMessageSize > 0 {
		sc.MaxMessageSize = c.Server.MaxMessageSize
	}
	if c.Server.MaxEventQueue > 0 {
		sc.MaxEventQueue = c.Server.MaxEventQueue
	}
	if c.Server.RenderCacheSize > 0 {
		sc.RenderCacheSize = c.Server.RenderCacheSize
	}
	if t.handshake > 0 {
		sc.HandshakeTimeout = t.handshake
	}
	if t.read > 0 {
		sc.ReadTimeout = t.read
	}
	if t.write > 0 {
		sc.WriteTimeout = t.write
	}
	if t.heartbeat > 0 {
		sc.HeartbeatInterval = t.heartbeat
	}
	if t.shutdown > 0 {
		sc.ShutdownTimeout = t.shutdown
	}

	if err := sc.ValidateConfig(); err != nil {
		return nil, errors.New(errors.CodeInvalidConfig).Wrap(err)
	}
	return sc, nil
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing motion.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New(errors.CodeMissingConfig).
				WithDetail("No motion.json found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory
// or its nearest parent holding motion.json.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
