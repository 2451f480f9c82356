// Package config provides configuration types, defaults and the alternative
// seed file for tagmesh.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rmacdonaldsmith/tagmesh/internal/tracing"
	"github.com/spf13/viper"
)

var (
	// ErrInvalidPort is returned when the HTTP port is out of range
	ErrInvalidPort = errors.New("http port must be between 1 and 65535")
	// ErrMissingSecret is returned when auth is enabled without a secret key
	ErrMissingSecret = errors.New("http secret key is required unless no_auth is set")
	// ErrInvalidLogFormat is returned for an unknown log format
	ErrInvalidLogFormat = errors.New("log format must be text or json")
	// ErrMissingGRPCListen is returned when gRPC is enabled without an address
	ErrMissingGRPCListen = errors.New("grpc listen address cannot be empty")
)

// Config holds all configuration options for the tagmesh daemon.
type Config struct {
	Log     LogConfig      `mapstructure:"log"`
	Bus     BusConfig      `mapstructure:"bus"`
	Journal JournalConfig  `mapstructure:"journal"`
	HTTP    HTTPConfig     `mapstructure:"http"`
	GRPC    GRPCConfig     `mapstructure:"grpc"`
	Plugins PluginsConfig  `mapstructure:"plugins"`
	Seed    SeedConfig     `mapstructure:"seed"`
	Tracing tracing.Config `mapstructure:"tracing"`
}

// LogConfig holds logging options.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn or error
	Format string `mapstructure:"format"` // text or json
}

// BusConfig holds message bus options.
type BusConfig struct {
	Synchronous bool `mapstructure:"synchronous"`
	Workers     int  `mapstructure:"workers"`
	QueueSize   int  `mapstructure:"queue_size"`
}

// JournalConfig holds message journal options.
type JournalConfig struct {
	MaxPerTag int `mapstructure:"max_per_tag"`
}

// HTTPConfig holds admin API options.
type HTTPConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Port      int    `mapstructure:"port"`
	SecretKey string `mapstructure:"secret_key"`
	NoAuth    bool   `mapstructure:"no_auth"`
}

// GRPCConfig holds diagnostics server options.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// PluginsConfig lists the plugins loaded after the core plugin.
type PluginsConfig struct {
	Enabled []string `mapstructure:"enabled"`
}

// SeedConfig points at a YAML file of alternatives registered at startup.
type SeedConfig struct {
	File     string        `mapstructure:"file"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// Defaults returns a Config with all default values set.
func Defaults() Config {
	return Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		Bus:     BusConfig{Workers: 4, QueueSize: 1024},
		Journal: JournalConfig{MaxPerTag: 256},
		HTTP:    HTTPConfig{Enabled: true, Port: 8081},
		GRPC:    GRPCConfig{Enabled: false, Listen: "localhost:9091"},
		Plugins: PluginsConfig{Enabled: []string{"core-utils"}},
		Seed:    SeedConfig{Debounce: 500 * time.Millisecond},
		Tracing: tracing.DefaultConfig(),
	}
}

// SetDefaults registers the defaults on v.
func SetDefaults(v *viper.Viper) {
	defaults := Defaults()
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("bus.synchronous", defaults.Bus.Synchronous)
	v.SetDefault("bus.workers", defaults.Bus.Workers)
	v.SetDefault("bus.queue_size", defaults.Bus.QueueSize)
	v.SetDefault("journal.max_per_tag", defaults.Journal.MaxPerTag)
	v.SetDefault("http.enabled", defaults.HTTP.Enabled)
	v.SetDefault("http.port", defaults.HTTP.Port)
	v.SetDefault("http.secret_key", defaults.HTTP.SecretKey)
	v.SetDefault("http.no_auth", defaults.HTTP.NoAuth)
	v.SetDefault("grpc.enabled", defaults.GRPC.Enabled)
	v.SetDefault("grpc.listen", defaults.GRPC.Listen)
	v.SetDefault("plugins.enabled", defaults.Plugins.Enabled)
	v.SetDefault("seed.file", defaults.Seed.File)
	v.SetDefault("seed.watch", defaults.Seed.Watch)
	v.SetDefault("seed.debounce", defaults.Seed.Debounce)
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.Log.Format != "" && c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}
	if c.Bus.Workers < 0 || c.Bus.QueueSize < 0 {
		return fmt.Errorf("bus workers and queue size cannot be negative")
	}
	if c.Journal.MaxPerTag < 0 {
		return fmt.Errorf("journal max_per_tag cannot be negative")
	}
	if c.HTTP.Enabled {
		if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidPort, c.HTTP.Port)
		}
		if !c.HTTP.NoAuth && c.HTTP.SecretKey == "" {
			return ErrMissingSecret
		}
	}
	if c.GRPC.Enabled && c.GRPC.Listen == "" {
		return ErrMissingGRPCListen
	}
	return nil
}
