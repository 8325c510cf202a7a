package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/sockd/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Name != "sockd" {
		t.Errorf("Name = %q, want %q", cfg.Name, "sockd")
	}

	if len(cfg.Listeners) != 1 || cfg.Listeners[0].Path != "/var/run/sockd/sockd.sock" {
		t.Errorf("Listeners = %+v, want one listener at /var/run/sockd/sockd.sock", cfg.Listeners)
	}

	if cfg.PidFile != "/var/run/sockd/sockd.pid" {
		t.Errorf("PidFile = %q, want %q", cfg.PidFile, "/var/run/sockd/sockd.pid")
	}

	if cfg.PidWatch != 0 {
		t.Errorf("PidWatch = %d, want 0", cfg.PidWatch)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
name: custom-sockd
listeners:
  - path: /tmp/custom.sock
pid_file: /tmp/custom.pid
pid_watch: 42
log:
  level: debug
  format: text
metrics:
  addr: ":9200"
  path: "/custom-metrics"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Name != "custom-sockd" {
		t.Errorf("Name = %q, want %q", cfg.Name, "custom-sockd")
	}

	if len(cfg.Listeners) != 1 || cfg.Listeners[0].Path != "/tmp/custom.sock" {
		t.Errorf("Listeners = %+v, want one listener at /tmp/custom.sock", cfg.Listeners)
	}

	if cfg.PidFile != "/tmp/custom.pid" {
		t.Errorf("PidFile = %q, want %q", cfg.PidFile, "/tmp/custom.pid")
	}

	if cfg.PidWatch != 42 {
		t.Errorf("PidWatch = %d, want 42", cfg.PidWatch)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override name and log.level. Everything else
	// should inherit from DefaultConfig.
	yamlContent := `
name: partial
log:
  level: warn
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Name != "partial" {
		t.Errorf("Name = %q, want %q", cfg.Name, "partial")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	if len(cfg.Listeners) != 1 || cfg.Listeners[0].Path != "/var/run/sockd/sockd.sock" {
		t.Errorf("Listeners = %+v, want default listener preserved", cfg.Listeners)
	}

	if cfg.PidFile != "/var/run/sockd/sockd.pid" {
		t.Errorf("PidFile = %q, want default %q", cfg.PidFile, "/var/run/sockd/sockd.pid")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "no listeners",
			modify: func(cfg *config.Config) {
				cfg.Listeners = nil
			},
			wantErr: config.ErrNoListeners,
		},
		{
			name: "empty listener path",
			modify: func(cfg *config.Config) {
				cfg.Listeners = []config.ListenerConfig{{Path: ""}}
			},
			wantErr: config.ErrEmptyListenerPath,
		},
		{
			name: "duplicate listener path",
			modify: func(cfg *config.Config) {
				cfg.Listeners = []config.ListenerConfig{
					{Path: "/tmp/a.sock"},
					{Path: "/tmp/a.sock"},
				}
			},
			wantErr: config.ErrDuplicateListenerPath,
		},
		{
			name: "negative pid watch",
			modify: func(cfg *config.Config) {
				cfg.PidWatch = -1
			},
			wantErr: config.ErrInvalidPidWatch,
		},
		{
			name: "invalid log format",
			modify: func(cfg *config.Config) {
				cfg.Log.Format = "xml"
			},
			wantErr: config.ErrInvalidLogFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel: they modify
	// process-wide state via os.Setenv.

	yamlContent := `
name: from-yaml
log:
  level: info
`
	path := writeTemp(t, yamlContent)

	t.Setenv("SOCKD_NAME", "from-env")
	t.Setenv("SOCKD_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Name != "from-env" {
		t.Errorf("Name = %q, want %q (from env)", cfg.Name, "from-env")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("SOCKD_METRICS_ADDR", ":9200")
	t.Setenv("SOCKD_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "sockd.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
