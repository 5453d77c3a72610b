// Package config загружает конфигурацию клиента и узла swarm из viper.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const (
	envPrefix = "CONFSYNC"

	defaultSwarmURL        = "http://127.0.0.1:8080"
	defaultStoragePath     = "confsync.db"
	defaultProjectionPath  = "confsync-view.db"
	defaultLogLevel        = "info"
	defaultMinInterval     = 3 * time.Second
	defaultBackoffInitial  = time.Second
	defaultBackoffMax      = 5 * time.Minute
	defaultSwarmRate       = 10.0
	defaultSwarmBurst      = 5
	defaultSwarmTimeout    = 30 * time.Second
	defaultHTTPAddress     = "127.0.0.1:8080"
	defaultDatabasePath    = "swarm.db"
	defaultRequestsPerMin  = 600
	defaultMaxTokenAge     = 5 * time.Minute
	defaultShutdownTimeout = 10 * time.Second
)

var homeDir = os.UserHomeDir

// ErrInvalidConfig возвращается при некорректной конфигурации.
var ErrInvalidConfig = errors.New("invalid configuration")

// ClientConfig - конфигурация клиента синхронизации.
type ClientConfig struct {
	SwarmURL       string
	StoragePath    string
	ProjectionPath string
	LogLevel       string
	SwarmRate      float64
	SwarmBurst     int
	SwarmTimeout   time.Duration
	MinInterval    time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// ServerConfig - конфигурация узла swarm.
type ServerConfig struct {
	HTTPAddress       string
	DatabasePath      string
	LogLevel          string
	RequestsPerMinute int
	MaxTokenAge       time.Duration
	ShutdownTimeout   time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", defaultLogLevel)

	v.SetDefault("swarm.url", defaultSwarmURL)
	v.SetDefault("swarm.rate_per_second", defaultSwarmRate)
	v.SetDefault("swarm.burst", defaultSwarmBurst)
	v.SetDefault("swarm.timeout", defaultSwarmTimeout)
	v.SetDefault("storage.path", defaultStoragePath)
	v.SetDefault("projection.path", defaultProjectionPath)
	v.SetDefault("sync.min_interval", defaultMinInterval)
	v.SetDefault("sync.backoff_initial", defaultBackoffInitial)
	v.SetDefault("sync.backoff_max", defaultBackoffMax)

	v.SetDefault("http.address", defaultHTTPAddress)
	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("ratelimit.requests_per_minute", defaultRequestsPerMin)
	v.SetDefault("auth.max_token_age", defaultMaxTokenAge)
	v.SetDefault("http.shutdown_timeout", defaultShutdownTimeout)
}

// LoadClient parses client configuration from viper.
func LoadClient(v *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		SwarmURL:       strings.TrimRight(v.GetString("swarm.url"), "/"),
		StoragePath:    expandHome(v.GetString("storage.path")),
		ProjectionPath: expandHome(v.GetString("projection.path")),
		LogLevel:       v.GetString("log.level"),
		SwarmRate:      v.GetFloat64("swarm.rate_per_second"),
		SwarmBurst:     v.GetInt("swarm.burst"),
		SwarmTimeout:   v.GetDuration("swarm.timeout"),
		MinInterval:    v.GetDuration("sync.min_interval"),
		BackoffInitial: v.GetDuration("sync.backoff_initial"),
		BackoffMax:     v.GetDuration("sync.backoff_max"),
	}

	if err := cfg.validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func (c ClientConfig) validate() error {
	if !strings.HasPrefix(c.SwarmURL, "http://") && !strings.HasPrefix(c.SwarmURL, "https://") {
		return errors.Wrapf(ErrInvalidConfig, "swarm.url must be an http(s) URL, got %q", c.SwarmURL)
	}
	if strings.TrimSpace(c.StoragePath) == "" {
		return errors.Wrap(ErrInvalidConfig, "storage.path is required")
	}
	if c.MinInterval <= 0 {
		return errors.Wrap(ErrInvalidConfig, "sync.min_interval must be positive")
	}
	if c.BackoffInitial <= 0 || c.BackoffMax < c.BackoffInitial {
		return errors.Wrap(ErrInvalidConfig, "sync.backoff_max must not be less than sync.backoff_initial")
	}
	if c.SwarmRate < 0 {
		return errors.Wrap(ErrInvalidConfig, "swarm.rate_per_second must not be negative")
	}
	return nil
}

// LoadServer parses swarm node configuration from viper.
func LoadServer(v *viper.Viper) (ServerConfig, error) {
	cfg := ServerConfig{
		HTTPAddress:       v.GetString("http.address"),
		DatabasePath:      expandHome(v.GetString("database.path")),
		LogLevel:          v.GetString("log.level"),
		RequestsPerMinute: v.GetInt("ratelimit.requests_per_minute"),
		MaxTokenAge:       v.GetDuration("auth.max_token_age"),
		ShutdownTimeout:   v.GetDuration("http.shutdown_timeout"),
	}

	if err := cfg.validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func (c ServerConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return errors.Wrap(ErrInvalidConfig, "http.address is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return errors.Wrap(ErrInvalidConfig, "database.path is required")
	}
	if c.MaxTokenAge <= 0 {
		return errors.Wrap(ErrInvalidConfig, "auth.max_token_age must be positive")
	}
	return nil
}

// expandHome раскрывает ~ в начале пути
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := homeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
