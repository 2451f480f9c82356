// Package speech implements the "core-utils" plugin that lets plugins ask for
// the next thing the user says.
//
// The plugin sits at the top of the DeskChan:user-said chain. When no request
// is pending it declines, and the message continues to the next alternative.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/tagmesh/internal/alternatives"
	altpkg "github.com/rmacdonaldsmith/tagmesh/pkg/alternatives"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"github.com/rmacdonaldsmith/tagmesh/pkg/plugin"
)

// Name is the identity of the plugin.
const Name = "core-utils"

const (
	TagUserSaid            = "DeskChan:user-said"
	TagCommandsList        = "DeskChan:commands-list"
	TagRequestUserSpeech   = "DeskChan:request-user-speech"
	TagDiscardUserSpeech   = "DeskChan:discard-user-speech"
	TagAnswerSpeechRequest = "core-utils:answer-speech-request"
	TagCommandsInRequest   = "core:commands-list-in-request"
	TagRequestSay          = "DeskChan:request-say"
	TagShowTechnical       = "DeskChan:show-technical"
)

const (
	// AnswerPriority places the plugin ahead of every default user-said handler
	AnswerPriority = 2000
	// CommandsPriority is the priority of the commands-list alternative
	CommandsPriority = 1000
	// NoPhrase is requested when a pending request carries no commands
	NoPhrase = "NO_PHRASE"
)

// CommandsDelay is how long the commands list waits before being shown.
var CommandsDelay = 200 * time.Millisecond

// request is one pending ask for user speech.
type request struct {
	sender   string
	commands any
}

// Plugin queues speech requests and answers them in arrival order.
type Plugin struct {
	mu       sync.Mutex
	requests []request

	proxy  plugin.Proxy
	logger *slog.Logger

	timersMu sync.Mutex
	timers   []*time.Timer
}

// New creates the plugin.
func New() *Plugin {
	return &Plugin{}
}

// Name returns "core-utils".
func (p *Plugin) Name() string {
	return Name
}

// Initialize registers the plugin's alternatives and listeners.
func (p *Plugin) Initialize(ctx context.Context, proxy plugin.Proxy) error {
	p.proxy = proxy
	p.logger = proxy.Logger()

	registrations := []alternatives.Registration{
		{SourceTag: TagUserSaid, DestinationTag: TagAnswerSpeechRequest, Priority: AnswerPriority},
		{SourceTag: TagCommandsList, DestinationTag: TagCommandsInRequest, Priority: CommandsPriority},
	}
	for _, reg := range registrations {
		if err := proxy.SendMessage(alternatives.TagRegisterAlternative, reg); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.DestinationTag, err)
		}
	}

	listeners := []struct {
		tag     string
		handler bus.Handler
	}{
		{TagRequestUserSpeech, p.handleRequest},
		{TagDiscardUserSpeech, p.handleDiscard},
		{TagAnswerSpeechRequest, p.handleAnswer},
		{TagCommandsInRequest, p.handleCommandsList},
	}
	for _, l := range listeners {
		if err := proxy.AddMessageListener(l.tag, l.handler); err != nil {
			return err
		}
	}
	return nil
}

// Unload drops pending requests and timers.
func (p *Plugin) Unload(ctx context.Context) error {
	p.mu.Lock()
	p.requests = nil
	p.mu.Unlock()

	p.timersMu.Lock()
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
	p.timersMu.Unlock()
	return nil
}

// Pending returns the number of queued requests.
func (p *Plugin) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *Plugin) handleRequest(msg bus.Message) {
	p.mu.Lock()
	p.requests = append(p.requests, request{sender: msg.Sender, commands: msg.Payload})
	p.mu.Unlock()

	p.logger.Debug("speech requested", "requester", msg.Sender)
}

func (p *Plugin) handleDiscard(msg bus.Message) {
	p.decline(TagUserSaid, TagAnswerSpeechRequest, msg.Payload)
}

// handleAnswer hands the user's speech to the oldest requester, or declines.
func (p *Plugin) handleAnswer(msg bus.Message) {
	p.mu.Lock()
	if len(p.requests) == 0 {
		p.mu.Unlock()
		p.decline(TagUserSaid, TagAnswerSpeechRequest, msg.Payload)
		return
	}
	next := p.requests[0]
	p.requests = p.requests[1:]
	p.mu.Unlock()

	if err := p.proxy.Reply(next.sender, msg.Payload); err != nil {
		p.logger.Warn("failed to answer speech request", "requester", next.sender, "error", err)
	}
}

// handleCommandsList shows the commands the oldest requester accepts.
// The request stays queued until the user answers it.
func (p *Plugin) handleCommandsList(msg bus.Message) {
	p.mu.Lock()
	if len(p.requests) == 0 {
		p.mu.Unlock()
		p.decline(TagCommandsList, TagCommandsInRequest, msg.Payload)
		return
	}
	commands := p.requests[0].commands
	p.mu.Unlock()

	if commands == nil {
		p.send(TagRequestSay, NoPhrase)
		return
	}

	text := formatCommands(commands)
	timer := time.AfterFunc(CommandsDelay, func() {
		p.send(TagShowTechnical, text)
	})
	p.timersMu.Lock()
	p.timers = append(p.timers, timer)
	p.timersMu.Unlock()
}

// decline passes payload on to the alternative ranked after this plugin.
func (p *Plugin) decline(sourceTag, destinationTag string, payload any) {
	p.send(altpkg.ContinuationTag(sourceTag, destinationTag), payload)
}

func (p *Plugin) send(tag string, payload any) {
	if err := p.proxy.SendMessage(tag, payload); err != nil {
		p.logger.Warn("failed to send message", "tag", tag, "error", err)
	}
}

func formatCommands(commands any) string {
	switch c := commands.(type) {
	case []string:
		var sb strings.Builder
		for _, command := range c {
			sb.WriteString(command)
			sb.WriteString("\n")
		}
		return sb.String()
	case []any:
		var sb strings.Builder
		for _, command := range c {
			fmt.Fprintf(&sb, "%v\n", command)
		}
		return sb.String()
	default:
		return fmt.Sprint(commands)
	}
}

// Verify that Plugin implements the plugin.Plugin interface at compile time
var _ plugin.Plugin = (*Plugin)(nil)
