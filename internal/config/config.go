// Package config manages the sockd demo daemon's configuration using
// koanf/v2: a layered load of defaults, an optional YAML file, and
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete sockd configuration.
type Config struct {
	Name      string           `koanf:"name"`
	Listeners []ListenerConfig `koanf:"listeners"`
	PidFile   string           `koanf:"pid_file"`
	PidWatch  int              `koanf:"pid_watch"`
	Log       LogConfig        `koanf:"log"`
	Metrics   MetricsConfig    `koanf:"metrics"`
}

// ListenerConfig describes one Unix-domain socket the daemon listens on.
type ListenerConfig struct {
	// Path is the filesystem path of the socket.
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults: one
// listener at /var/run/sockd/sockd.sock, pid watching disabled, info-level
// JSON logging, and metrics on :9100.
func DefaultConfig() *Config {
	return &Config{
		Name: "sockd",
		Listeners: []ListenerConfig{
			{Path: "/var/run/sockd/sockd.sock"},
		},
		PidFile:  "/var/run/sockd/sockd.pid",
		PidWatch: 0,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for sockd configuration.
// Variables are named SOCKD_<section>_<key>, e.g., SOCKD_LOG_LEVEL.
const envPrefix = "SOCKD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (SOCKD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	SOCKD_PID_FILE      -> pid_file
//	SOCKD_PID_WATCH     -> pid_watch
//	SOCKD_LOG_LEVEL     -> log.level
//	SOCKD_LOG_FORMAT    -> log.format
//	SOCKD_METRICS_ADDR  -> metrics.addr
//	SOCKD_METRICS_PATH  -> metrics.path
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms SOCKD_LOG_LEVEL -> log.level. Strips the
// SOCKD_ prefix, lowercases, and replaces _ with . except in the
// top-level keys pid_file and pid_watch, which keep their underscore.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	if s == "pid_file" || s == "pid_watch" {
		return s
	}
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"name":         defaults.Name,
		"pid_file":     defaults.PidFile,
		"pid_watch":    defaults.PidWatch,
		"log.level":    defaults.Log.Level,
		"log.format":   defaults.Log.Format,
		"metrics.addr": defaults.Metrics.Addr,
		"metrics.path": defaults.Metrics.Path,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	listeners := make([]map[string]any, len(defaults.Listeners))
	for i, l := range defaults.Listeners {
		listeners[i] = map[string]any{"path": l.Path}
	}
	if err := k.Set("listeners", listeners); err != nil {
		return fmt.Errorf("set default listeners: %w", err)
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrNoListeners indicates the configuration declares zero listeners.
	ErrNoListeners = errors.New("at least one listener must be configured")

	// ErrEmptyListenerPath indicates a listener entry has an empty path.
	ErrEmptyListenerPath = errors.New("listener path must not be empty")

	// ErrDuplicateListenerPath indicates two listeners share the same path.
	ErrDuplicateListenerPath = errors.New("duplicate listener path")

	// ErrInvalidPidWatch indicates a negative pid_watch value.
	ErrInvalidPidWatch = errors.New("pid_watch must be >= 0")

	// ErrInvalidLogFormat indicates an unrecognized log format.
	ErrInvalidLogFormat = errors.New("log.format must be json or text")
)

// ValidLogFormats lists the recognized log format strings.
var ValidLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Validate checks the configuration for logical errors. Returns the first
// validation error encountered.
func Validate(cfg *Config) error {
	if len(cfg.Listeners) == 0 {
		return ErrNoListeners
	}

	seen := make(map[string]struct{}, len(cfg.Listeners))
	for i, l := range cfg.Listeners {
		if l.Path == "" {
			return fmt.Errorf("listeners[%d]: %w", i, ErrEmptyListenerPath)
		}
		if _, dup := seen[l.Path]; dup {
			return fmt.Errorf("listeners[%d] path %q: %w", i, l.Path, ErrDuplicateListenerPath)
		}
		seen[l.Path] = struct{}{}
	}

	if cfg.PidWatch < 0 {
		return ErrInvalidPidWatch
	}

	if cfg.Log.Format != "" && !ValidLogFormats[cfg.Log.Format] {
		return fmt.Errorf("log.format %q: %w", cfg.Log.Format, ErrInvalidLogFormat)
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
