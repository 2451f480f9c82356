package host

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"github.com/rmacdonaldsmith/tagmesh/pkg/plugin"
)

var (
	// ErrProxyClosed is returned when a plugin uses its proxy after unloading
	ErrProxyClosed = errors.New("plugin proxy is closed")
	// ErrListenerNotFound is returned when removing a listener the plugin does not hold
	ErrListenerNotFound = errors.New("listener not found")
)

// pluginProxy implements plugin.Proxy for one loaded plugin.
// It tracks every subscription made on the plugin's behalf so the host can
// drop them all when the plugin unloads.
type pluginProxy struct {
	mu        sync.Mutex
	name      string
	bus       bus.Bus
	listeners map[string][]bus.SubscriptionID // tag -> subscriptions
	closed    bool
	loadedAt  time.Time
	logger    *slog.Logger
}

func newPluginProxy(name string, b bus.Bus, logger *slog.Logger) *pluginProxy {
	return &pluginProxy{
		name:      name,
		bus:       b,
		listeners: make(map[string][]bus.SubscriptionID),
		loadedAt:  time.Now(),
		logger:    logger.With("plugin", name),
	}
}

// Name returns the plugin identity
func (p *pluginProxy) Name() string {
	return p.name
}

// SendMessage publishes payload on tag with the plugin as sender
func (p *pluginProxy) SendMessage(tag string, payload any) error {
	if p.isClosed() {
		return ErrProxyClosed
	}
	return p.bus.Publish(bus.NewMessage(tag, payload, p.name))
}

// Reply sends payload to the plugin named to
func (p *pluginProxy) Reply(to string, payload any) error {
	if p.isClosed() {
		return ErrProxyClosed
	}
	return p.bus.Reply(to, payload, p.name)
}

// AddMessageListener subscribes handler to tag until the plugin unloads
func (p *pluginProxy) AddMessageListener(tag string, handler bus.Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrProxyClosed
	}

	id, err := p.bus.Subscribe(tag, handler)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", tag, err)
	}
	p.listeners[tag] = append(p.listeners[tag], id)
	return nil
}

// RemoveMessageListener drops every listener the plugin holds on tag
func (p *pluginProxy) RemoveMessageListener(tag string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids, ok := p.listeners[tag]
	if !ok {
		return fmt.Errorf("%w: %s", ErrListenerNotFound, tag)
	}
	delete(p.listeners, tag)
	for _, id := range ids {
		if err := p.bus.Unsubscribe(tag, id); err != nil {
			p.logger.Warn("failed to remove listener", "tag", tag, "error", err)
		}
	}
	return nil
}

// Logger returns the plugin's logger
func (p *pluginProxy) Logger() *slog.Logger {
	return p.logger
}

// LoadedAt returns when the plugin was loaded
func (p *pluginProxy) LoadedAt() time.Time {
	return p.loadedAt
}

// listenerCount returns the number of active subscriptions held by the plugin
func (p *pluginProxy) listenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, ids := range p.listeners {
		count += len(ids)
	}
	return count
}

// close removes every listener and rejects further use. It is idempotent.
func (p *pluginProxy) close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for tag, ids := range p.listeners {
		for _, id := range ids {
			if err := p.bus.Unsubscribe(tag, id); err != nil {
				p.logger.Debug("listener already gone", "tag", tag, "error", err)
			}
		}
	}
	p.listeners = make(map[string][]bus.SubscriptionID)
}

func (p *pluginProxy) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Verify that pluginProxy implements the Proxy interface at compile time
var _ plugin.Proxy = (*pluginProxy)(nil)
