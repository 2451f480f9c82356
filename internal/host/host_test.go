package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rmacdonaldsmith/tagmesh/internal/alternatives"
	inprocess "github.com/rmacdonaldsmith/tagmesh/internal/bus"
	"github.com/rmacdonaldsmith/tagmesh/internal/coreplugin"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"github.com/rmacdonaldsmith/tagmesh/pkg/plugin"
)

// stubPlugin records lifecycle calls and runs an optional init function.
type stubPlugin struct {
	name    string
	init    func(proxy plugin.Proxy) error
	mu      sync.Mutex
	proxy   plugin.Proxy
	unloads int
}

func (s *stubPlugin) Name() string { return s.name }

func (s *stubPlugin) Initialize(ctx context.Context, proxy plugin.Proxy) error {
	s.mu.Lock()
	s.proxy = proxy
	s.mu.Unlock()
	if s.init != nil {
		return s.init(proxy)
	}
	return nil
}

func (s *stubPlugin) Unload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloads++
	return nil
}

func (s *stubPlugin) unloadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unloads
}

// newTestHost starts a host with a synchronous bus and the real core plugin.
func newTestHost(t *testing.T) (*Host, *coreplugin.Plugin) {
	t.Helper()

	var core *coreplugin.Plugin
	config := NewConfig(func(b bus.Bus) (plugin.Plugin, error) {
		core = coreplugin.New(b, coreplugin.Config{})
		return core, nil
	}).WithBusConfig(inprocess.Config{Synchronous: true})

	h, err := NewHost(config)
	if err != nil {
		t.Fatalf("Expected no error creating host, got %v", err)
	}
	t.Cleanup(func() { h.Close() })

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Expected no error starting host, got %v", err)
	}
	return h, core
}

// watchUnloads counts plugin-unload announcements per plugin.
func watchUnloads(t *testing.T, h *Host) func(name string) int {
	t.Helper()
	var mu sync.Mutex
	counts := make(map[string]int)
	_, err := h.Bus().Subscribe(alternatives.TagPluginUnload, func(msg bus.Message) {
		mu.Lock()
		defer mu.Unlock()
		if name, ok := msg.Payload.(string); ok {
			counts[name]++
		}
	})
	if err != nil {
		t.Fatalf("Expected no error subscribing, got %v", err)
	}
	return func(name string) int {
		mu.Lock()
		defer mu.Unlock()
		return counts[name]
	}
}

// TestNewHost_InvalidConfig tests that invalid configuration is rejected
func TestNewHost_InvalidConfig(t *testing.T) {
	if _, err := NewHost(nil); err == nil {
		t.Error("Expected error for nil config")
	}
	if _, err := NewHost(NewConfig(nil)); !errors.Is(err, ErrNilCoreFactory) {
		t.Errorf("Expected ErrNilCoreFactory, got %v", err)
	}
}

// TestHost_StartLoadsCore tests that Start loads the core plugin and its defaults
func TestHost_StartLoadsCore(t *testing.T) {
	h, core := newTestHost(t)

	plugins := h.Plugins()
	if len(plugins) != 1 || plugins[0].Name != coreplugin.Name || !plugins[0].Core {
		t.Fatalf("Expected only the core plugin, got %+v", plugins)
	}
	if plugins[0].LoadedAt.IsZero() {
		t.Error("Expected the core plugin to report its load time")
	}

	snapshot := core.Service().Snapshot()
	if len(snapshot) != len(coreplugin.DefaultAlternatives) {
		t.Errorf("Expected %d default rows, got %d", len(coreplugin.DefaultAlternatives), len(snapshot))
	}

	// Idempotent start
	if err := h.Start(context.Background()); err != nil {
		t.Errorf("Expected no error from idempotent Start(), got %v", err)
	}
	if len(h.Plugins()) != 1 {
		t.Errorf("Expected core to be loaded once, got %d plugins", len(h.Plugins()))
	}
}

// TestHost_LoadBeforeStart tests that plugins cannot be loaded before the core
func TestHost_LoadBeforeStart(t *testing.T) {
	h, err := NewHost(NewConfig(nopCore).WithBusConfig(inprocess.Config{Synchronous: true}))
	if err != nil {
		t.Fatalf("Expected no error creating host, got %v", err)
	}
	defer h.Close()

	err = h.Load(context.Background(), &stubPlugin{name: "p1"})
	if !errors.Is(err, ErrHostNotStarted) {
		t.Errorf("Expected ErrHostNotStarted, got %v", err)
	}
}

// TestHost_LoadAndUnload tests the plugin lifecycle and the unload announcement
func TestHost_LoadAndUnload(t *testing.T) {
	h, core := newTestHost(t)
	unloads := watchUnloads(t, h)
	ctx := context.Background()

	received := 0
	p := &stubPlugin{name: "p1", init: func(proxy plugin.Proxy) error {
		if err := proxy.AddMessageListener("p1:ping", func(bus.Message) { received++ }); err != nil {
			return err
		}
		return proxy.SendMessage(alternatives.TagRegisterAlternative, map[string]any{
			"srcTag": "A", "dstTag": "p1:ping", "priority": 10,
		})
	}}

	if err := h.Load(ctx, p); err != nil {
		t.Fatalf("Expected no error loading plugin, got %v", err)
	}
	if err := h.Load(ctx, &stubPlugin{name: "p1"}); !errors.Is(err, ErrPluginExists) {
		t.Errorf("Expected ErrPluginExists, got %v", err)
	}

	h.Bus().Publish(bus.NewMessage("A", nil, "someone"))
	if received != 1 {
		t.Errorf("Expected alternative to route to plugin, got %d deliveries", received)
	}

	if err := h.Unload(ctx, "p1"); err != nil {
		t.Fatalf("Expected no error unloading plugin, got %v", err)
	}
	if p.unloadCount() != 1 {
		t.Errorf("Expected Unload hook to run once, got %d", p.unloadCount())
	}
	if unloads("p1") != 1 {
		t.Errorf("Expected exactly one unload announcement, got %d", unloads("p1"))
	}
	if _, ok := core.Service().Snapshot()["A"]; ok {
		t.Error("Expected the plugin's alternatives to be purged")
	}
	if h.Bus().SubscriberCount("p1:ping") != 0 {
		t.Error("Expected the plugin's listeners to be removed")
	}

	if err := h.Unload(ctx, "p1"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("Expected ErrPluginNotFound, got %v", err)
	}
	if unloads("p1") != 1 {
		t.Errorf("Expected no second announcement, got %d", unloads("p1"))
	}
}

// TestHost_InitializeFailureRollsBack tests that a failed load leaves nothing behind
func TestHost_InitializeFailureRollsBack(t *testing.T) {
	h, core := newTestHost(t)
	unloads := watchUnloads(t, h)

	p := &stubPlugin{name: "broken", init: func(proxy plugin.Proxy) error {
		proxy.AddMessageListener("broken:tag", func(bus.Message) {})
		proxy.SendMessage(alternatives.TagRegisterAlternative, map[string]any{
			"srcTag": "B", "dstTag": "broken:tag", "priority": 1,
		})
		return errors.New("boom")
	}}

	if err := h.Load(context.Background(), p); err == nil {
		t.Fatal("Expected error from failing Initialize")
	}
	if _, ok := h.Plugin("broken"); ok {
		t.Error("Expected failed plugin not to be registered")
	}
	if h.Bus().SubscriberCount("broken:tag") != 0 {
		t.Error("Expected listeners of the failed plugin to be removed")
	}
	if unloads("broken") != 1 {
		t.Errorf("Expected one unload announcement, got %d", unloads("broken"))
	}
	if _, ok := core.Service().Snapshot()["B"]; ok {
		t.Error("Expected alternatives of the failed plugin to be purged")
	}
}

// TestHost_CoreCannotBeUnloaded tests that the core plugin is protected
func TestHost_CoreCannotBeUnloaded(t *testing.T) {
	h, _ := newTestHost(t)

	if err := h.Unload(context.Background(), coreplugin.Name); !errors.Is(err, ErrCorePluginUnload) {
		t.Errorf("Expected ErrCorePluginUnload, got %v", err)
	}
}

// TestHost_ProxyAfterUnload tests that a stale proxy is rejected
func TestHost_ProxyAfterUnload(t *testing.T) {
	h, _ := newTestHost(t)
	p := &stubPlugin{name: "p1"}
	ctx := context.Background()

	if err := h.Load(ctx, p); err != nil {
		t.Fatalf("Expected no error loading plugin, got %v", err)
	}
	h.Unload(ctx, "p1")

	if err := p.proxy.SendMessage("x", nil); !errors.Is(err, ErrProxyClosed) {
		t.Errorf("Expected ErrProxyClosed from SendMessage, got %v", err)
	}
	if err := p.proxy.AddMessageListener("x", func(bus.Message) {}); !errors.Is(err, ErrProxyClosed) {
		t.Errorf("Expected ErrProxyClosed from AddMessageListener, got %v", err)
	}
}

// TestHost_RemoveMessageListener tests removing listeners through the proxy
func TestHost_RemoveMessageListener(t *testing.T) {
	h, _ := newTestHost(t)
	p := &stubPlugin{name: "p1", init: func(proxy plugin.Proxy) error {
		proxy.AddMessageListener("t", func(bus.Message) {})
		return proxy.AddMessageListener("t", func(bus.Message) {})
	}}
	if err := h.Load(context.Background(), p); err != nil {
		t.Fatalf("Expected no error loading plugin, got %v", err)
	}
	if h.Bus().SubscriberCount("t") != 2 {
		t.Fatalf("Expected 2 listeners, got %d", h.Bus().SubscriberCount("t"))
	}

	if err := p.proxy.RemoveMessageListener("t"); err != nil {
		t.Errorf("Expected no error removing listeners, got %v", err)
	}
	if h.Bus().SubscriberCount("t") != 0 {
		t.Errorf("Expected listeners to be removed, got %d", h.Bus().SubscriberCount("t"))
	}
	if err := p.proxy.RemoveMessageListener("t"); !errors.Is(err, ErrListenerNotFound) {
		t.Errorf("Expected ErrListenerNotFound, got %v", err)
	}
}

// TestHost_ReplyReachesPluginByName tests that replies are delivered on the plugin's own tag
func TestHost_ReplyReachesPluginByName(t *testing.T) {
	h, _ := newTestHost(t)
	ctx := context.Background()

	var got []bus.Message
	asker := &stubPlugin{name: "asker", init: func(proxy plugin.Proxy) error {
		return proxy.AddMessageListener("asker", func(msg bus.Message) { got = append(got, msg) })
	}}
	answerer := &stubPlugin{name: "answerer", init: func(proxy plugin.Proxy) error {
		return proxy.AddMessageListener("answerer:question", func(msg bus.Message) {
			proxy.Reply(msg.Sender, "42")
		})
	}}
	if err := h.Load(ctx, asker); err != nil {
		t.Fatal(err)
	}
	if err := h.Load(ctx, answerer); err != nil {
		t.Fatal(err)
	}

	asker.proxy.SendMessage("answerer:question", nil)

	if len(got) != 1 || got[0].Payload != "42" || got[0].Sender != "answerer" {
		t.Errorf("Expected one reply from answerer, got %+v", got)
	}
}

// TestHost_StopUnloadsEverything tests Stop ordering and idempotency
func TestHost_StopUnloadsEverything(t *testing.T) {
	h, _ := newTestHost(t)
	unloads := watchUnloads(t, h)
	ctx := context.Background()

	p1 := &stubPlugin{name: "p1"}
	p2 := &stubPlugin{name: "p2"}
	h.Load(ctx, p1)
	h.Load(ctx, p2)

	if err := h.Stop(ctx); err != nil {
		t.Fatalf("Expected no error stopping host, got %v", err)
	}
	if p1.unloadCount() != 1 || p2.unloadCount() != 1 {
		t.Errorf("Expected each plugin to unload once, got %d and %d", p1.unloadCount(), p2.unloadCount())
	}
	if unloads("p1") != 1 || unloads("p2") != 1 {
		t.Errorf("Expected one announcement per plugin, got %d and %d", unloads("p1"), unloads("p2"))
	}
	if unloads(coreplugin.Name) != 0 {
		t.Error("Expected core unload not to be announced")
	}
	if len(h.Plugins()) != 0 {
		t.Errorf("Expected no plugins after Stop, got %+v", h.Plugins())
	}
	if h.Health().Started {
		t.Error("Expected host to report stopped")
	}

	if err := h.Stop(ctx); err != nil {
		t.Errorf("Expected no error from idempotent Stop(), got %v", err)
	}
}

// TestHost_Close tests Close and the closed state
func TestHost_Close(t *testing.T) {
	h, _ := newTestHost(t)

	if err := h.Close(); err != nil {
		t.Fatalf("Expected no error closing host, got %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Expected no error from idempotent Close(), got %v", err)
	}
	if err := h.Start(context.Background()); !errors.Is(err, ErrHostClosed) {
		t.Errorf("Expected ErrHostClosed from Start, got %v", err)
	}
	if err := h.Load(context.Background(), &stubPlugin{name: "late"}); !errors.Is(err, ErrHostClosed) {
		t.Errorf("Expected ErrHostClosed from Load, got %v", err)
	}

	health := h.Health()
	if health.Healthy {
		t.Error("Expected closed host to be unhealthy")
	}
}

// TestHost_Health tests the health report of a running host
func TestHost_Health(t *testing.T) {
	h, _ := newTestHost(t)

	health := h.Health()
	if !health.Healthy || !health.Started {
		t.Errorf("Expected healthy started host, got %+v", health)
	}
	if health.LoadedPlugins != 1 {
		t.Errorf("Expected 1 loaded plugin, got %d", health.LoadedPlugins)
	}
	if health.Subscriptions == 0 {
		t.Error("Expected core subscriptions to be counted")
	}
}

// TestHost_AsyncBus tests the host on the worker pool bus
func TestHost_AsyncBus(t *testing.T) {
	var core *coreplugin.Plugin
	h, err := NewHost(NewConfig(func(b bus.Bus) (plugin.Plugin, error) {
		core = coreplugin.New(b, coreplugin.Config{})
		return core, nil
	}))
	if err != nil {
		t.Fatalf("Expected no error creating host, got %v", err)
	}
	defer h.Close()

	ctx := context.Background()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Expected no error starting host, got %v", err)
	}
	h.Bus().Wait()

	if got := len(core.Service().Snapshot()); got != len(coreplugin.DefaultAlternatives) {
		t.Errorf("Expected %d default rows, got %d", len(coreplugin.DefaultAlternatives), got)
	}
}

// TestHost_UnloadAppliesQueuedRegistrationsBeforePurge tests that a
// registration still queued on the worker pool when its plugin unloads is
// purged with the rest of the plugin's alternatives
func TestHost_UnloadAppliesQueuedRegistrationsBeforePurge(t *testing.T) {
	var core *coreplugin.Plugin
	h, err := NewHost(NewConfig(func(b bus.Bus) (plugin.Plugin, error) {
		core = coreplugin.New(b, coreplugin.Config{})
		return core, nil
	}).WithBusConfig(inprocess.Config{Workers: 1, QueueSize: 1}))
	if err != nil {
		t.Fatalf("Expected no error creating host, got %v", err)
	}
	defer h.Close()

	ctx := context.Background()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Expected no error starting host, got %v", err)
	}
	h.Bus().Wait()

	blocked := make(chan struct{})
	release := make(chan struct{})
	blocker := &stubPlugin{name: "blocker", init: func(proxy plugin.Proxy) error {
		return proxy.AddMessageListener("blocker:hold", func(bus.Message) {
			close(blocked)
			<-release
		})
	}}
	talk := &stubPlugin{name: "talk", init: func(proxy plugin.Proxy) error {
		return proxy.AddMessageListener("talk:answer", func(bus.Message) {})
	}}
	for _, p := range []*stubPlugin{blocker, talk} {
		if err := h.Load(ctx, p); err != nil {
			t.Fatalf("Expected no error loading %s, got %v", p.name, err)
		}
	}

	// Occupy the only worker so the registration waits in the queue
	if err := h.Bus().Publish(bus.NewMessage("blocker:hold", nil, "test")); err != nil {
		t.Fatalf("Expected no error publishing, got %v", err)
	}
	<-blocked

	talk.mu.Lock()
	proxy := talk.proxy
	talk.mu.Unlock()
	err = proxy.SendMessage(alternatives.TagRegisterAlternative, map[string]any{
		"srcTag": "user-said", "dstTag": "talk:answer", "priority": 100,
	})
	if err != nil {
		t.Fatalf("Expected no error registering, got %v", err)
	}

	unloaded := make(chan error, 1)
	go func() { unloaded <- h.Unload(ctx, "talk") }()

	select {
	case err := <-unloaded:
		t.Fatalf("Expected Unload to wait for queued messages, returned %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	select {
	case err := <-unloaded:
		if err != nil {
			t.Fatalf("Expected no error unloading, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected Unload to return once the queue drained")
	}
	h.Bus().Wait()

	row := core.Service().Snapshot()["user-said"]
	for _, entry := range row {
		if entry.OwnerPlugin == "talk" {
			t.Fatalf("Expected no alternative owned by talk, got row %v", row)
		}
	}
	if len(row) == 0 || row[0].DestinationTag != coreplugin.TagInformNoSpeech {
		t.Errorf("Expected the core fallback to head the row, got %v", row)
	}
}
