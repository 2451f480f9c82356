package plugin

import (
	"context"
	"log/slog"
	"time"

	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
)

// Plugin is a unit of functionality loaded by the host.
type Plugin interface {
	// Name returns the unique identity of the plugin. It is used as the
	// sender of every message the plugin sends.
	Name() string

	// Initialize is called once when the plugin is loaded.
	// Returning an error aborts the load and removes the plugin's listeners.
	Initialize(ctx context.Context, proxy Proxy) error

	// Unload is called once when the plugin is removed from the host.
	Unload(ctx context.Context) error
}

// Proxy is a plugin's handle on the host.
type Proxy interface {
	// Name returns the name of the plugin owning this proxy.
	Name() string

	// SendMessage publishes payload on tag with the plugin as sender.
	SendMessage(tag string, payload any) error

	// Reply sends payload to the plugin named to.
	Reply(to string, payload any) error

	// AddMessageListener subscribes handler to tag for the plugin's lifetime.
	AddMessageListener(tag string, handler bus.Handler) error

	// RemoveMessageListener removes every listener the plugin holds on tag.
	RemoveMessageListener(tag string) error

	// Logger returns a logger annotated with the plugin name.
	Logger() *slog.Logger
}

// Factory creates a fresh plugin instance.
type Factory func() Plugin

// Info describes a loaded plugin.
type Info struct {
	Name      string
	Listeners int
	Core      bool
	LoadedAt  time.Time
}

// HealthStatus represents the overall health of a plugin host
type HealthStatus struct {
	// Healthy indicates if the host is functioning properly
	Healthy bool

	// Started indicates if the core plugin is loaded and the host accepts plugins
	Started bool

	// LoadedPlugins is the number of plugins currently loaded, core included
	LoadedPlugins int

	// Subscriptions is the number of active bus subscriptions
	Subscriptions int

	// Message provides additional health information
	Message string
}
