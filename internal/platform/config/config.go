// Package config loads service configuration with koanf and validates it.
package config

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigDirEnv overrides the directory holding base.yaml and the profile files.
const ConfigDirEnv = "APP_CONFIG_DIR"

// Defaults shared with callers that build a config by hand.
const (
	DefaultServerPort     = 8080
	DefaultMaxRequestSize = 1 << 20

	DefaultClientRetryMaxAttempts     = 3
	DefaultClientRetryMultiplier      = 2.0
	DefaultClientCircuitMaxFailures   = 5
	DefaultClientCircuitHalfOpenLimit = 3

	DefaultLogFileMaxSizeMB  = 100
	DefaultLogFileMaxBackups = 3
	DefaultLogFileMaxAgeDays = 28

	DefaultSyncMaxRetries = 2
	DefaultRemoteLimit    = 5
)

// Config is the merged service configuration. Every key is addressable as
// YAML (sync.fetch_timeout) or environment (APP_SYNC_FETCH__TIMEOUT).
type Config struct {
	App       AppConfig       `koanf:"app"       validate:"required"`
	Server    ServerConfig    `koanf:"server"    validate:"required"`
	Log       LogConfig       `koanf:"log"       validate:"required"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Auth      AuthConfig      `koanf:"auth"`
	Client    ClientConfig    `koanf:"client"    validate:"required"`
	Services  ServicesConfig  `koanf:"services"  validate:"required"`
	Sync      SyncConfig      `koanf:"sync"      validate:"required"`
	Storage   StorageConfig   `koanf:"storage"   validate:"required"`
	Remote    RemoteConfig    `koanf:"remote"    validate:"required"`
}

type AppConfig struct {
	Name        string `koanf:"name"        validate:"required"`
	Version     string `koanf:"version"     validate:"required"`
	Environment string `koanf:"environment" validate:"required,oneof=local dev qa prod test"`
}

// ServerConfig tunes the gin HTTP server.
type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"required,min=1,max=65535"`
	Host            string        `koanf:"host"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"required,min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"required,min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"required,min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,min=1s"`
	MaxRequestSize  int64         `koanf:"max_request_size" validate:"required,min=1"`
}

type LogConfig struct {
	Level  string        `koanf:"level"  validate:"required,oneof=trace debug info warn error"`
	Format string        `koanf:"format" validate:"required,oneof=json text pretty"`
	File   LogFileConfig `koanf:"file"`
}

// LogFileConfig adds a lumberjack-rotated JSON file next to the console output.
type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"       validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"   validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"    validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig enables OTLP export of traces and metrics.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"      validate:"required_if=Enabled true,omitempty,url"`
	ServiceName  string  `koanf:"service_name"  validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`
	// Insecure sends OTLP over plaintext gRPC, which is what a local collector sidecar expects.
	Insecure bool `koanf:"insecure"`
}

// AuthConfig describes the identity headers set by the gateway in front of the service.
// When Enabled, destructive routes require EditorRole.
type AuthConfig struct {
	Enabled       bool   `koanf:"enabled"`
	EditorRole    string `koanf:"editor_role"    validate:"required_if=Enabled true"`
	RolesHeader   string `koanf:"roles_header"   validate:"required_if=Enabled true"`
	SubjectHeader string `koanf:"subject_header" validate:"required_if=Enabled true"`
}

// ClientConfig is shared by every outbound client: the posts API and feed peers.
type ClientConfig struct {
	Timeout        time.Duration        `koanf:"timeout"         validate:"required,min=100ms"`
	Retry          RetryConfig          `koanf:"retry"           validate:"required"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker" validate:"required"`
	Transport      TransportConfig      `koanf:"transport"       validate:"required"`
}

// RetryConfig is the per-call backoff of one HTTP request.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"     validate:"required,min=1,max=10"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"required,min=10ms"`
	MaxInterval     time.Duration `koanf:"max_interval"     validate:"required,min=100ms"`
	Multiplier      float64       `koanf:"multiplier"       validate:"required,min=1.1,max=10"`
	JitterFactor    float64       `koanf:"jitter_factor"    validate:"min=0,max=1"`
}

// CircuitBreakerConfig trips after MaxFailures consecutive failed calls and
// admits HalfOpenLimit probes once Timeout has passed.
type CircuitBreakerConfig struct {
	MaxFailures   int           `koanf:"max_failures"    validate:"required,min=1"`
	Timeout       time.Duration `koanf:"timeout"         validate:"required,min=1s"`
	HalfOpenLimit int           `koanf:"half_open_limit" validate:"required,min=1"`
}

type TransportConfig struct {
	MaxIdleConns        int           `koanf:"max_idle_conns"         validate:"required,min=1"`
	MaxIdleConnsPerHost int           `koanf:"max_idle_conns_per_host" validate:"required,min=1"`
	IdleConnTimeout     time.Duration `koanf:"idle_conn_timeout"      validate:"required,min=1s"`
}

type ServicesConfig struct {
	Quote ServiceEndpointConfig `koanf:"quote" validate:"required"`
}

// ServiceEndpointConfig names a remote and where to reach it.
type ServiceEndpointConfig struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`
	Name    string `koanf:"name"     validate:"required"`
}

// SyncConfig controls reconciliation runs against the remote source.
type SyncConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Interval     time.Duration `koanf:"interval"      validate:"required,min=1s,gtfield=FetchTimeout"`
	FetchTimeout time.Duration `koanf:"fetch_timeout" validate:"required,min=100ms"`
	MaxRetries   uint64        `koanf:"max_retries"   validate:"max=10"`
	RetryBase    time.Duration `koanf:"retry_base"    validate:"required,min=10ms"`
	Identity     string        `koanf:"identity"      validate:"required,oneof=stable_id text"`
}

// StorageConfig selects and configures the blob store backend.
type StorageConfig struct {
	Backend string             `koanf:"backend" validate:"required,oneof=memory file redis"`
	File    FileStorageConfig  `koanf:"file"`
	Redis   RedisStorageConfig `koanf:"redis"`
}

// FileStorageConfig contains settings for the file backend.
type FileStorageConfig struct {
	Dir string `koanf:"dir" validate:"required"`
}

// RedisStorageConfig contains settings for the redis backend.
type RedisStorageConfig struct {
	Address  string `koanf:"address"  validate:"required,hostname_port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"       validate:"min=0,max=15"`
	Prefix   string `koanf:"prefix"`
}

// RemoteConfig describes how remote records map onto quotes.
type RemoteConfig struct {
	// Kind is "posts" for a jsonplaceholder-style posts API or "feed" for another instance's export.
	Kind           string `koanf:"kind"            validate:"required,oneof=posts feed"`
	Limit          int    `koanf:"limit"           validate:"min=0,max=1000"`
	IDPrefix       string `koanf:"id_prefix"`
	CategoryPrefix string `koanf:"category_prefix"`
	// Peers are base URLs of other instances fetched concurrently when Kind is "feed".
	// An empty list falls back to services.quote.base_url.
	Peers []string `koanf:"peers" validate:"omitempty,dive,url"`
}

func defaults() map[string]any {
	return map[string]any{
		"app.name":        "quote-sync",
		"app.version":     "dev",
		"app.environment": "local",

		"server.port":             DefaultServerPort,
		"server.host":             "0.0.0.0",
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",
		"server.max_request_size": DefaultMaxRequestSize,

		"log.level":            "info",
		"log.format":           "json",
		"log.file.enabled":     false,
		"log.file.path":        "./logs/app.log",
		"log.file.max_size":    DefaultLogFileMaxSizeMB,
		"log.file.max_backups": DefaultLogFileMaxBackups,
		"log.file.max_age":     DefaultLogFileMaxAgeDays,
		"log.file.compress":    true,

		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.service_name":  "quote-sync",
		"telemetry.sampling_rate": 1.0,
		"telemetry.insecure":      true,

		"auth.enabled":        false,
		"auth.editor_role":    "editor",
		"auth.roles_header":   "X-User-Roles",
		"auth.subject_header": "X-User-ID",

		"client.timeout":                           "30s",
		"client.retry.max_attempts":                DefaultClientRetryMaxAttempts,
		"client.retry.initial_interval":            "100ms",
		"client.retry.max_interval":                "5s",
		"client.retry.multiplier":                  DefaultClientRetryMultiplier,
		"client.retry.jitter_factor":               0.25,
		"client.circuit_breaker.max_failures":      DefaultClientCircuitMaxFailures,
		"client.circuit_breaker.timeout":           "30s",
		"client.circuit_breaker.half_open_limit":   DefaultClientCircuitHalfOpenLimit,
		"client.transport.max_idle_conns":          100,
		"client.transport.max_idle_conns_per_host": 10,
		"client.transport.idle_conn_timeout":       "90s",

		"services.quote.base_url": "https://jsonplaceholder.typicode.com",
		"services.quote.name":     "quote-source",

		"sync.enabled":       true,
		"sync.interval":      "30s",
		"sync.fetch_timeout": "10s",
		"sync.max_retries":   DefaultSyncMaxRetries,
		"sync.retry_base":    "200ms",
		"sync.identity":      "stable_id",

		"storage.backend":        "file",
		"storage.file.dir":       "./data",
		"storage.redis.address":  "localhost:6379",
		"storage.redis.password": "",
		"storage.redis.db":       0,
		"storage.redis.prefix":   "quotesync:",

		"remote.kind":            "posts",
		"remote.limit":           DefaultRemoteLimit,
		"remote.id_prefix":       "server_",
		"remote.category_prefix": "category_",
	}
}

type layer struct {
	name string
	load func(k *koanf.Koanf) error
}

func yamlLayer(name, path string) layer {
	return layer{name: name, load: func(k *koanf.Koanf) error {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return k.Load(file.Provider(path), yaml.Parser())
	}}
}

// Load merges, lowest precedence first: built-in defaults, <dir>/base.yaml,
// <dir>/<profile>.yaml and APP_ environment variables. dir is ./configs unless
// APP_CONFIG_DIR says otherwise. Missing files are skipped.
func Load(profile string) (*Config, error) {
	dir := cmp.Or(os.Getenv(ConfigDirEnv), "configs")

	layers := []layer{
		{name: "defaults", load: func(k *koanf.Koanf) error {
			return k.Load(confmap.Provider(defaults(), "."), nil)
		}},
		yamlLayer("base config", filepath.Join(dir, "base.yaml")),
	}

	if profile != "" {
		layers = append(layers, yamlLayer(fmt.Sprintf("profile %q", profile), filepath.Join(dir, profile+".yaml")))
	}

	layers = append(layers, layer{name: "environment", load: func(k *koanf.Koanf) error {
		return k.Load(env.Provider("APP_", ".", envKey), nil)
	}})

	k := koanf.New(".")
	for _, l := range layers {
		if err := l.load(k); err != nil {
			return nil, fmt.Errorf("loading %s: %w", l.name, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// envKey maps APP_SYNC_FETCH__TIMEOUT to sync.fetch_timeout.
// A single underscore separates levels; a double underscore is a literal one.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, "APP_"))
	key = strings.ReplaceAll(key, "__", "\x00")
	key = strings.ReplaceAll(key, "_", ".")

	return strings.ReplaceAll(key, "\x00", "_")
}
