package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/gordp/internal/config"
	"github.com/dantte-lp/gordp/internal/rdp"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Security.EncryptionMethod != "128bit" {
		t.Errorf("Security.EncryptionMethod = %q, want %q", cfg.Security.EncryptionMethod, "128bit")
	}

	if cfg.Security.AllowInsecureLegacyMAC {
		t.Error("Security.AllowInsecureLegacyMAC should default to false")
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
security:
  encryption_method: "fips"
  secure_checksum: false
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.Security.EncryptionMethod != "fips" {
		t.Errorf("Security.EncryptionMethod = %q, want %q", cfg.Security.EncryptionMethod, "fips")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override log.level and metrics.addr.
	// Everything else should inherit from defaults.
	yamlContent := `
metrics:
  addr: ":55555"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.Metrics.Addr != ":55555" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":55555")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.Security.EncryptionMethod != "128bit" {
		t.Errorf("Security.EncryptionMethod = %q, want default %q", cfg.Security.EncryptionMethod, "128bit")
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
			name: "invalid encryption method",
			modify: func(cfg *config.Config) {
				cfg.Security.EncryptionMethod = "bogus"
			},
			wantErr: config.ErrInvalidEncryptionMethod,
		},
		{
			name: "empty connection addr",
			modify: func(cfg *config.Config) {
				cfg.Connections = []config.ConnectionConfig{{Name: "a"}}
			},
			wantErr: config.ErrEmptyConnectionAddr,
		},
		{
			name: "invalid connection encryption method",
			modify: func(cfg *config.Config) {
				cfg.Connections = []config.ConnectionConfig{
					{Name: "a", Addr: "10.0.0.1:3389", EncryptionMethod: "bogus"},
				}
			},
			wantErr: config.ErrInvalidEncryptionMethod,
		},
		{
			name: "duplicate connection names",
			modify: func(cfg *config.Config) {
				cfg.Connections = []config.ConnectionConfig{
					{Name: "a", Addr: "10.0.0.1:3389"},
					{Name: "a", Addr: "10.0.0.2:3389"},
				}
			},
			wantErr: config.ErrDuplicateConnectionName,
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

func TestEncryptionMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  rdp.EncryptionMethod
	}{
		{input: "none", want: rdp.EncryptionMethodNone},
		{input: "40bit", want: rdp.EncryptionMethod40Bit},
		{input: "56bit", want: rdp.EncryptionMethod56Bit},
		{input: "128bit", want: rdp.EncryptionMethod128Bit},
		{input: "fips", want: rdp.EncryptionMethodFIPS},
		{input: "bogus", want: rdp.EncryptionMethodNone},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := config.EncryptionMethod(tt.input); got != tt.want {
				t.Errorf("EncryptionMethod(%q) = %v, want %v", tt.input, got, tt.want)
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

func TestLoadWithConnections(t *testing.T) {
	t.Parallel()

	yamlContent := `
connections:
  - name: "office"
    addr: "10.0.0.1:3389"
    encryption_method: "fips"
    connect_timeout: "5s"
  - name: "lab"
    addr: "10.0.1.1:3389"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if len(cfg.Connections) != 2 {
		t.Fatalf("Connections count = %d, want 2", len(cfg.Connections))
	}

	c1 := cfg.Connections[0]
	if c1.Name != "office" {
		t.Errorf("Connections[0].Name = %q, want %q", c1.Name, "office")
	}
	if c1.Addr != "10.0.0.1:3389" {
		t.Errorf("Connections[0].Addr = %q, want %q", c1.Addr, "10.0.0.1:3389")
	}
	if c1.EncryptionMethod != "fips" {
		t.Errorf("Connections[0].EncryptionMethod = %q, want %q", c1.EncryptionMethod, "fips")
	}

	c2 := cfg.Connections[1]
	if c2.Name != "lab" {
		t.Errorf("Connections[1].Name = %q, want %q", c2.Name, "lab")
	}
}

// -------------------------------------------------------------------------
// Environment Variable Override Tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GORDP_LOG_LEVEL", "debug")
	t.Setenv("GORDP_SECURITY_ENCRYPTION_METHOD", "fips")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}

	if cfg.Security.EncryptionMethod != "fips" {
		t.Errorf("Security.EncryptionMethod = %q, want %q (from env)", cfg.Security.EncryptionMethod, "fips")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("GORDP_METRICS_ADDR", ":9200")
	t.Setenv("GORDP_METRICS_PATH", "/custom")

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
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "gordp.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
