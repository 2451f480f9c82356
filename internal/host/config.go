package host

import (
	"errors"
	"fmt"
	"log/slog"

	inprocess "github.com/rmacdonaldsmith/tagmesh/internal/bus"
	"github.com/rmacdonaldsmith/tagmesh/internal/messagelog"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"github.com/rmacdonaldsmith/tagmesh/pkg/plugin"
)

var (
	// ErrNilCoreFactory is returned when no core plugin factory is configured
	ErrNilCoreFactory = errors.New("core plugin factory cannot be nil")
	// ErrInvalidJournalSize is returned when the journal size is negative
	ErrInvalidJournalSize = errors.New("journal size cannot be negative")
)

// CoreFactory builds the core plugin on the host's bus. The core plugin is
// the only plugin with direct bus access.
type CoreFactory func(b bus.Bus) (plugin.Plugin, error)

// Config represents configuration for a Host
type Config struct {
	// Core builds the privileged core plugin, loaded first on Start
	Core CoreFactory

	// Bus configuration passed to the in-process bus
	Bus inprocess.Config

	// JournalMaxPerTag bounds the per-tag message history (0 means default)
	JournalMaxPerTag int

	Logger *slog.Logger
}

// NewConfig creates a new Host configuration with safe defaults
func NewConfig(core CoreFactory) *Config {
	return &Config{
		Core:             core,
		JournalMaxPerTag: messagelog.DefaultMaxPerTag,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.Core == nil {
		return ErrNilCoreFactory
	}
	if c.JournalMaxPerTag < 0 {
		return ErrInvalidJournalSize
	}
	if err := c.Bus.Validate(); err != nil {
		return fmt.Errorf("invalid bus config: %w", err)
	}
	return nil
}

// WithBusConfig sets the bus configuration
func (c *Config) WithBusConfig(config inprocess.Config) *Config {
	c.Bus = config
	return c
}

// WithJournalMaxPerTag sets the journal bound
func (c *Config) WithJournalMaxPerTag(n int) *Config {
	c.JournalMaxPerTag = n
	return c
}

// WithLogger sets the logger shared by the host and its plugins
func (c *Config) WithLogger(logger *slog.Logger) *Config {
	c.Logger = logger
	return c
}
