package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/rmacdonaldsmith/tagmesh/internal/alternatives"
	inprocess "github.com/rmacdonaldsmith/tagmesh/internal/bus"
	"github.com/rmacdonaldsmith/tagmesh/internal/logging"
	"github.com/rmacdonaldsmith/tagmesh/internal/messagelog"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"github.com/rmacdonaldsmith/tagmesh/pkg/plugin"
)

var (
	// ErrPluginExists is returned when loading a plugin whose name is taken
	ErrPluginExists = errors.New("plugin already loaded")
	// ErrPluginNotFound is returned when unloading an unknown plugin
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrCorePluginUnload is returned when unloading the core plugin directly
	ErrCorePluginUnload = errors.New("core plugin cannot be unloaded")
	// ErrHostNotStarted is returned when loading plugins before Start
	ErrHostNotStarted = errors.New("host is not started")
	// ErrHostClosed is returned when using a closed host
	ErrHostClosed = errors.New("host is closed")
	// ErrEmptyPluginName is returned when a plugin reports an empty name
	ErrEmptyPluginName = errors.New("plugin name cannot be empty")
)

type loadedPlugin struct {
	plugin plugin.Plugin
	proxy  *pluginProxy
}

// Host owns the bus and journal and manages the lifetime of plugins.
//
// The core plugin is loaded first on Start and unloaded last on Stop. Every
// other plugin is announced on the plugin-unload tag exactly once when it
// leaves, so services keyed by owner can drop its state.
type Host struct {
	mu     sync.RWMutex
	config *Config

	journal *messagelog.InMemoryMessageLog
	bus     *inprocess.InProcessBus
	logger  *slog.Logger

	plugins  map[string]*loadedPlugin
	order    []string // load order, core first
	coreName string

	started bool
	closed  bool
}

// NewHost creates a host with its bus and journal. Call Start to load the core plugin.
func NewHost(config *Config) (*Host, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.OrDiscard(config.Logger)
	journal := messagelog.NewInMemoryMessageLog(config.JournalMaxPerTag)
	b, err := inprocess.NewInProcessBus(config.Bus, journal, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create bus: %w", err)
	}

	return &Host{
		config:  config,
		journal: journal,
		bus:     b,
		logger:  logger.With("component", "host"),
		plugins: make(map[string]*loadedPlugin),
	}, nil
}

// Start builds and loads the core plugin. It is idempotent.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHostClosed
	}
	if h.started {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	core, err := h.config.Core(h.bus)
	if err != nil {
		return fmt.Errorf("failed to create core plugin: %w", err)
	}
	if err := h.load(ctx, core, true); err != nil {
		return fmt.Errorf("failed to load core plugin: %w", err)
	}

	h.mu.Lock()
	h.started = true
	h.coreName = core.Name()
	h.mu.Unlock()

	h.logger.Info("host started", "core", core.Name())
	return nil
}

// Load initializes p and adds it to the host. If initialization fails the
// plugin's listeners are removed and its unload is announced.
func (h *Host) Load(ctx context.Context, p plugin.Plugin) error {
	if p == nil {
		return fmt.Errorf("plugin cannot be nil")
	}

	h.mu.RLock()
	closed, started := h.closed, h.started
	h.mu.RUnlock()
	if closed {
		return ErrHostClosed
	}
	if !started {
		return ErrHostNotStarted
	}

	return h.load(ctx, p, false)
}

func (h *Host) load(ctx context.Context, p plugin.Plugin, core bool) error {
	name := p.Name()
	if name == "" {
		return ErrEmptyPluginName
	}

	h.mu.Lock()
	if _, exists := h.plugins[name]; exists {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPluginExists, name)
	}
	proxy := newPluginProxy(name, h.bus, h.logger)
	h.plugins[name] = &loadedPlugin{plugin: p, proxy: proxy}
	h.order = append(h.order, name)
	h.mu.Unlock()

	if err := p.Initialize(ctx, proxy); err != nil {
		h.forget(name)
		proxy.close()
		if !core {
			h.announceUnload(name)
		}
		return fmt.Errorf("failed to initialize plugin %s: %w", name, err)
	}

	h.logger.Info("plugin loaded", "plugin", name, "listeners", proxy.listenerCount())
	return nil
}

// Unload removes the plugin named name. Its listeners are dropped, its Unload
// hook runs and the plugin-unload event is published once.
//
// Unload waits for the bus to drain before announcing, so it must not be
// called from a bus handler.
func (h *Host) Unload(ctx context.Context, name string) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHostClosed
	}
	if h.started && name == h.coreName {
		h.mu.RUnlock()
		return ErrCorePluginUnload
	}
	h.mu.RUnlock()

	loaded, ok := h.forget(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}

	h.teardown(ctx, name, loaded)
	h.announceUnload(name)
	return nil
}

// Plugins returns information about loaded plugins in load order.
func (h *Host) Plugins() []plugin.Info {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]plugin.Info, 0, len(h.order))
	for _, name := range h.order {
		loaded := h.plugins[name]
		infos = append(infos, plugin.Info{
			Name:      name,
			Listeners: loaded.proxy.listenerCount(),
			Core:      name == h.coreName,
			LoadedAt:  loaded.proxy.LoadedAt(),
		})
	}
	return infos
}

// Plugin returns the loaded plugin named name.
func (h *Host) Plugin(name string) (plugin.Plugin, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	loaded, ok := h.plugins[name]
	if !ok {
		return nil, false
	}
	return loaded.plugin, true
}

// Bus returns the host's message bus.
func (h *Host) Bus() *inprocess.InProcessBus {
	return h.bus
}

// Journal returns the host's message journal.
func (h *Host) Journal() *messagelog.InMemoryMessageLog {
	return h.journal
}

// Stop unloads every plugin, announcing each non-core unload, then the core
// plugin last. It is idempotent.
func (h *Host) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	coreName := h.coreName
	names := slices.Clone(h.order)
	h.mu.Unlock()

	slices.Reverse(names)
	for _, name := range names {
		if name == coreName {
			continue
		}
		loaded, ok := h.forget(name)
		if !ok {
			continue
		}
		h.teardown(ctx, name, loaded)
		h.announceUnload(name)
	}

	// Let the core plugin observe the unload events before it goes away
	h.bus.Wait()

	if loaded, ok := h.forget(coreName); ok {
		h.teardown(ctx, coreName, loaded)
	}

	h.mu.Lock()
	h.started = false
	h.coreName = ""
	h.mu.Unlock()

	h.logger.Info("host stopped")
	return nil
}

// Close stops the host and releases the bus and journal. It is idempotent.
func (h *Host) Close() error {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return nil
	}

	if err := h.Stop(context.Background()); err != nil {
		return fmt.Errorf("failed to stop host: %w", err)
	}

	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	if err := h.bus.Close(); err != nil {
		return fmt.Errorf("failed to close bus: %w", err)
	}
	if err := h.journal.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}

// Health returns the overall health status of the host.
func (h *Host) Health() plugin.HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := plugin.HealthStatus{
		Healthy:       !h.closed && h.started,
		Started:       h.started,
		LoadedPlugins: len(h.plugins),
		Subscriptions: h.bus.Statistics().Subscriptions,
	}
	switch {
	case h.closed:
		status.Message = "host is closed"
	case !h.started:
		status.Message = "host is not started"
	default:
		status.Message = fmt.Sprintf("%d plugins loaded", len(h.plugins))
	}
	return status
}

// forget removes name from the plugin table and returns what was there.
func (h *Host) forget(name string) (*loadedPlugin, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	loaded, ok := h.plugins[name]
	if !ok {
		return nil, false
	}
	delete(h.plugins, name)
	h.order = slices.DeleteFunc(h.order, func(n string) bool { return n == name })
	return loaded, true
}

func (h *Host) teardown(ctx context.Context, name string, loaded *loadedPlugin) {
	loaded.proxy.close()
	if err := loaded.plugin.Unload(ctx); err != nil {
		h.logger.Warn("plugin unload hook failed", "plugin", name, "error", err)
	}
	h.logger.Info("plugin unloaded", "plugin", name)
}

// announceUnload publishes the plugin-unload event for name. Messages the
// plugin sent before its proxy closed are delivered first, so a registration
// still queued on the worker pool cannot outlive the purge.
func (h *Host) announceUnload(name string) {
	h.bus.Wait()

	h.mu.RLock()
	sender := h.coreName
	h.mu.RUnlock()

	msg := bus.NewMessage(alternatives.TagPluginUnload, name, sender)
	if err := h.bus.Publish(msg); err != nil {
		h.logger.Warn("failed to announce plugin unload", "plugin", name, "error", err)
	}
}
