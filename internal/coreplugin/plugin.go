// Package coreplugin implements the privileged "core" plugin. It hosts the
// alternatives service and the fallback handlers at the end of the default
// alternative chains.
package coreplugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rmacdonaldsmith/tagmesh/internal/alternatives"
	altpkg "github.com/rmacdonaldsmith/tagmesh/pkg/alternatives"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"github.com/rmacdonaldsmith/tagmesh/pkg/plugin"
	"go.opentelemetry.io/otel/trace"
)

// Name is the identity of the core plugin.
const Name = "core"

// Tags handled or emitted by the core plugin.
const (
	TagVoiceRecognition = "DeskChan:voice-recognition"
	TagUserSaid         = "DeskChan:user-said"
	TagNotify           = "DeskChan:notify"
	TagSay              = "DeskChan:say"
	TagRequestSay       = "DeskChan:request-say"
	TagShowTechnical    = "DeskChan:show-technical"
	TagInformNoSpeech   = "core:inform-no-speech-function"
	TagCoreNotify       = "core:notify"
	TagLog              = "core-events:log"
)

const (
	// DefaultNotifyPurpose is the speech purpose of notifications without speech
	DefaultNotifyPurpose = "NOTIFY"
	// DefaultNoConversationText is said when no plugin answers the user
	DefaultNoConversationText = "I cannot talk yet. Install a plugin that can answer you."
)

// DefaultAlternatives are registered by the core plugin on initialization.
var DefaultAlternatives = []alternatives.Registration{
	{SourceTag: TagVoiceRecognition, DestinationTag: TagUserSaid, Priority: 50},
	{SourceTag: TagUserSaid, DestinationTag: TagInformNoSpeech, Priority: 1},
	{SourceTag: TagNotify, DestinationTag: TagCoreNotify, Priority: 1},
}

// Config holds core plugin settings
type Config struct {
	// NoConversationText is said when nobody answers the user
	NoConversationText string
	Tracer             trace.Tracer
	Logger             *slog.Logger
}

// Plugin is the core plugin.
type Plugin struct {
	bus    bus.Bus
	config Config
	proxy  plugin.Proxy
	logger *slog.Logger

	mu      sync.RWMutex
	service *alternatives.Service
}

// New creates the core plugin on b.
func New(b bus.Bus, config Config) *Plugin {
	if config.NoConversationText == "" {
		config.NoConversationText = DefaultNoConversationText
	}
	return &Plugin{bus: b, config: config}
}

// Name returns "core".
func (p *Plugin) Name() string {
	return Name
}

// Initialize starts the alternatives service and registers the defaults.
func (p *Plugin) Initialize(ctx context.Context, proxy plugin.Proxy) error {
	p.proxy = proxy
	p.logger = proxy.Logger()

	logger := p.config.Logger
	if logger == nil {
		logger = p.logger
	}
	service, err := alternatives.NewService(p.bus, alternatives.Config{
		Name:   proxy.Name(),
		Tracer: p.config.Tracer,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create alternatives service: %w", err)
	}
	if err := service.Bind(proxy); err != nil {
		service.Close()
		return err
	}
	p.mu.Lock()
	p.service = service
	p.mu.Unlock()

	listeners := map[string]bus.Handler{
		TagInformNoSpeech:     p.handleInformNoSpeech,
		TagCoreNotify:         p.handleNotify,
		TagLog:                p.handleLog,
		alternatives.TagError: p.handleError,
	}
	for tag, handler := range listeners {
		if err := proxy.AddMessageListener(tag, handler); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", tag, err)
		}
	}

	if err := proxy.SendMessage(alternatives.TagRegisterAlternatives, DefaultAlternatives); err != nil {
		return fmt.Errorf("failed to register default alternatives: %w", err)
	}
	return nil
}

// Unload drops every alternative and its subscriptions.
func (p *Plugin) Unload(ctx context.Context) error {
	p.mu.Lock()
	service := p.service
	p.service = nil
	p.mu.Unlock()

	if service == nil {
		return nil
	}
	return service.Close()
}

// Service returns the alternatives service, nil while the plugin is not loaded.
func (p *Plugin) Service() *alternatives.Service {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.service
}

// Snapshot returns the routing table, or false while the plugin is not loaded.
func (p *Plugin) Snapshot() (altpkg.Snapshot, bool) {
	service := p.Service()
	if service == nil {
		return nil, false
	}
	return service.Snapshot(), true
}

// Stats returns registry and bus counters, or false while the plugin is not loaded.
func (p *Plugin) Stats() (altpkg.Stats, bus.Statistics, bool) {
	service := p.Service()
	if service == nil {
		return altpkg.Stats{}, bus.Statistics{}, false
	}
	var busStats bus.Statistics
	if counted, ok := p.bus.(interface{ Statistics() bus.Statistics }); ok {
		busStats = counted.Statistics()
	}
	return service.Registry().Stats(), busStats, true
}

func (p *Plugin) handleInformNoSpeech(msg bus.Message) {
	p.send(TagSay, p.config.NoConversationText)
}

// handleNotify turns a notification into a technical message and speech.
func (p *Plugin) handleNotify(msg bus.Message) {
	ntf, ok := msg.Payload.(map[string]any)
	if !ok {
		p.logger.Warn("notification is not a map", "sender", msg.Sender, "payload", msg.Payload)
		return
	}

	if message, ok := ntf["message"]; ok {
		p.send(TagShowTechnical, map[string]any{"text": message})
	}

	if speech, ok := ntf["speech"]; ok {
		say := map[string]any{"text": speech}
		if priority, ok := ntf["priority"]; ok {
			say["priority"] = priority
		}
		p.send(TagSay, say)
		return
	}

	purpose, ok := ntf["speech-purpose"]
	if !ok {
		purpose = DefaultNotifyPurpose
	}
	request := map[string]any{"purpose": purpose}
	if priority, ok := ntf["priority"]; ok {
		request["priority"] = priority
	}
	p.send(TagRequestSay, request)
}

func (p *Plugin) handleLog(msg bus.Message) {
	level := slog.LevelInfo
	text := fmt.Sprint(msg.Payload)
	if entry, ok := msg.Payload.(map[string]any); ok {
		if s, ok := entry["level"].(string); ok {
			if err := level.UnmarshalText([]byte(s)); err != nil {
				p.logger.Debug("unknown log level, using INFO", "sender", msg.Sender, "level", s)
				level = slog.LevelInfo
			}
		}
		if s, ok := entry["message"].(string); ok {
			text = s
		}
	}
	p.logger.Log(context.Background(), level, text, "sender", msg.Sender)
}

func (p *Plugin) handleError(msg bus.Message) {
	attrs := []any{"sender", msg.Sender}
	if report, ok := msg.Payload.(map[string]any); ok {
		for _, key := range []string{"class", "message", "plugin", "tag", "stacktrace"} {
			if v, ok := report[key]; ok {
				attrs = append(attrs, key, v)
			}
		}
	} else {
		attrs = append(attrs, "error", msg.Payload)
	}
	p.logger.Error("plugin reported error", attrs...)
}

func (p *Plugin) send(tag string, payload any) {
	if err := p.proxy.SendMessage(tag, payload); err != nil {
		p.logger.Warn("failed to send message", "tag", tag, "error", err)
	}
}

// Verify that Plugin implements the plugin.Plugin interface at compile time
var _ plugin.Plugin = (*Plugin)(nil)
