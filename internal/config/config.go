// Package config manages gordp client configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dantte-lp/gordp/internal/rdp"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete gordp client configuration.
type Config struct {
	Metrics     MetricsConfig      `koanf:"metrics"`
	Log         LogConfig          `koanf:"log"`
	Security    SecurityConfig     `koanf:"security"`
	Connections []ConnectionConfig `koanf:"connections"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// SecurityConfig holds default security-layer selection (spec.md §3, §4.3)
// applied to a connection unless the connection entry overrides it.
type SecurityConfig struct {
	// EncryptionMethod selects the cipher suite: "none", "40bit", "56bit",
	// "128bit", or "fips".
	EncryptionMethod string `koanf:"encryption_method"`

	// AllowInsecureLegacyMAC opts into tolerating a legacy MAC mismatch
	// instead of treating it as fatal (spec.md §9 Security note). Off by
	// default; operators must opt in explicitly per deployment.
	AllowInsecureLegacyMAC bool `koanf:"allow_insecure_legacy_mac"`

	// SecureChecksum selects the salted MAC variant for legacy mode
	// (spec.md §4.3), mirroring the sticky SEC_SECURE_CHECKSUM flag.
	SecureChecksum bool `koanf:"secure_checksum"`
}

// ConnectionConfig describes one declarative RDP target from the
// configuration file. Each entry drives one daemon-managed session.
type ConnectionConfig struct {
	// Name identifies this connection for logging.
	Name string `koanf:"name"`

	// Addr is the server's "host:port" address; no default port is applied.
	Addr string `koanf:"addr"`

	// EncryptionMethod overrides the Security default for this connection
	// ("none", "40bit", "56bit", "128bit", "fips"). Empty inherits the
	// default.
	EncryptionMethod string `koanf:"encryption_method"`

	// ConnectTimeout bounds the TCP dial.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			EncryptionMethod:       "128bit",
			AllowInsecureLegacyMAC: false,
			SecureChecksum:         true,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for gordp configuration.
// Variables are named GORDP_<section>_<key>, e.g., GORDP_METRICS_ADDR.
const envPrefix = "GORDP_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GORDP_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GORDP_METRICS_ADDR              -> metrics.addr
//	GORDP_METRICS_PATH              -> metrics.path
//	GORDP_LOG_LEVEL                 -> log.level
//	GORDP_LOG_FORMAT                -> log.format
//	GORDP_SECURITY_ENCRYPTION_METHOD -> security.encryption_method
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
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

// envKeyMapper transforms GORDP_SECURITY_ENCRYPTION_METHOD ->
// security.encryption_method. Strips the GORDP_ prefix, lowercases, and
// replaces the first _ (the section separator) with .; later underscores
// stay part of the key name.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"metrics.addr":                      defaults.Metrics.Addr,
		"metrics.path":                      defaults.Metrics.Path,
		"log.level":                         defaults.Log.Level,
		"log.format":                        defaults.Log.Format,
		"security.encryption_method":        defaults.Security.EncryptionMethod,
		"security.allow_insecure_legacy_mac": defaults.Security.AllowInsecureLegacyMAC,
		"security.secure_checksum":          defaults.Security.SecureChecksum,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidEncryptionMethod indicates an unrecognized encryption
	// method string.
	ErrInvalidEncryptionMethod = errors.New("security.encryption_method is invalid")

	// ErrEmptyConnectionAddr indicates a connection entry has no address.
	ErrEmptyConnectionAddr = errors.New("connection addr must not be empty")

	// ErrDuplicateConnectionName indicates two connections share a name.
	ErrDuplicateConnectionName = errors.New("duplicate connection name")
)

// ValidEncryptionMethods lists the recognized encryption_method strings,
// matching rdp.EncryptionMethod's variants (spec.md §3).
var ValidEncryptionMethods = map[string]bool{
	"none":   true,
	"40bit":  true,
	"56bit":  true,
	"128bit": true,
	"fips":   true,
}

// EncryptionMethod maps an encryption_method string to rdp.EncryptionMethod.
// Unrecognized strings map to rdp.EncryptionMethodNone; callers validate the
// string with Validate beforehand.
func EncryptionMethod(s string) rdp.EncryptionMethod {
	switch s {
	case "40bit":
		return rdp.EncryptionMethod40Bit
	case "56bit":
		return rdp.EncryptionMethod56Bit
	case "128bit":
		return rdp.EncryptionMethod128Bit
	case "fips":
		return rdp.EncryptionMethodFIPS
	default:
		return rdp.EncryptionMethodNone
	}
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Security.EncryptionMethod != "" && !ValidEncryptionMethods[cfg.Security.EncryptionMethod] {
		return fmt.Errorf("%q: %w", cfg.Security.EncryptionMethod, ErrInvalidEncryptionMethod)
	}

	return validateConnections(cfg.Connections)
}

func validateConnections(conns []ConnectionConfig) error {
	seen := make(map[string]struct{}, len(conns))

	for i, c := range conns {
		if c.Addr == "" {
			return fmt.Errorf("connections[%d]: %w", i, ErrEmptyConnectionAddr)
		}
		if c.EncryptionMethod != "" && !ValidEncryptionMethods[c.EncryptionMethod] {
			return fmt.Errorf("connections[%d] encryption_method %q: %w", i, c.EncryptionMethod, ErrInvalidEncryptionMethod)
		}
		name := c.Name
		if name == "" {
			name = c.Addr
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("connections[%d] name %q: %w", i, name, ErrDuplicateConnectionName)
		}
		seen[name] = struct{}{}
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
