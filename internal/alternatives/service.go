package alternatives

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/rmacdonaldsmith/tagmesh/internal/logging"
	"github.com/rmacdonaldsmith/tagmesh/pkg/alternatives"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"go.opentelemetry.io/otel/trace"
)

// Message tags served by the alternatives service.
const (
	TagRegisterAlternative   = "core:register-alternative"
	TagRegisterAlternatives  = "core:register-alternatives"
	TagUnregisterAlternative = "core:unregister-alternative"
	TagQueryAlternatives     = "core:query-alternatives-map"
	TagPluginUnload          = "core-events:plugin-unload"
	TagError                 = "core-events:error"
)

var (
	// ErrMalformedRegistration is returned when a registration payload cannot be decoded
	ErrMalformedRegistration = errors.New("malformed alternative registration")
)

// Listener registers message handlers on behalf of the plugin hosting the service.
type Listener interface {
	AddMessageListener(tag string, handler bus.Handler) error
}

// Registration is the decoded payload of a register or unregister request.
type Registration struct {
	SourceTag      string `json:"srcTag" yaml:"srcTag"`
	DestinationTag string `json:"dstTag" yaml:"dstTag"`
	Priority       any    `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Config holds the collaborators of the service
type Config struct {
	// Name is the identity replies and error reports are sent from
	Name   string
	Tracer trace.Tracer
	Logger *slog.Logger
}

// Service binds the alternative routing engine to its message contracts.
type Service struct {
	name      string
	bus       bus.Bus
	registry  *InMemoryRegistry
	subs      *BusSubscriptions
	engine    *Engine
	lifecycle *LifecycleManager
	logger    *slog.Logger
}

// NewService wires registry, engine and lifecycle manager on b.
func NewService(b bus.Bus, config Config) (*Service, error) {
	if b == nil {
		return nil, fmt.Errorf("bus cannot be nil")
	}
	if config.Name == "" {
		return nil, fmt.Errorf("service name cannot be empty")
	}
	logger := logging.OrDiscard(config.Logger)

	s := &Service{
		name:   config.Name,
		bus:    b,
		logger: logger.With("component", "alternatives"),
	}
	// The engine is created after the registry it reads from, so the hook
	// resolves it lazily.
	s.subs = NewBusSubscriptions(b, func(msg bus.Message) { s.engine.Handle(msg) }, logger)
	s.registry = NewInMemoryRegistry(s.subs, logger)
	s.engine = NewEngine(s.registry, b, config.Tracer, logger)
	s.lifecycle = NewLifecycleManager(s.registry, logger)

	return s, nil
}

// Bind subscribes the service's message contracts through l.
func (s *Service) Bind(l Listener) error {
	handlers := []struct {
		tag     string
		handler bus.Handler
	}{
		{TagRegisterAlternative, s.handleRegister},
		{TagRegisterAlternatives, s.handleRegisterMany},
		{TagUnregisterAlternative, s.handleUnregister},
		{TagQueryAlternatives, s.handleQuery},
		{TagPluginUnload, s.lifecycle.HandleUnload},
	}
	for _, h := range handlers {
		if err := l.AddMessageListener(h.tag, h.handler); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", h.tag, err)
		}
	}
	return nil
}

// Registry returns the routing table.
func (s *Service) Registry() *InMemoryRegistry {
	return s.registry
}

// Engine returns the routing engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Snapshot returns a deep copy of the routing table.
func (s *Service) Snapshot() alternatives.Snapshot {
	return s.registry.Snapshot()
}

// Close drops every alternative and its subscriptions.
func (s *Service) Close() error {
	return s.registry.Close()
}

func (s *Service) handleRegister(msg bus.Message) {
	reg, err := DecodeRegistration(msg.Payload)
	if err == nil {
		err = s.registry.Register(reg.SourceTag, reg.DestinationTag, msg.Sender, reg.Priority)
	}
	if err != nil {
		s.reportError(msg, err)
	}
}

func (s *Service) handleRegisterMany(msg bus.Message) {
	items, err := decodeList(msg.Payload)
	if err != nil {
		s.reportError(msg, err)
		return
	}
	for _, item := range items {
		reg, err := DecodeRegistration(item)
		if err == nil {
			err = s.registry.Register(reg.SourceTag, reg.DestinationTag, msg.Sender, reg.Priority)
		}
		if err != nil {
			s.reportError(msg, err)
		}
	}
}

func (s *Service) handleUnregister(msg bus.Message) {
	reg, err := DecodeRegistration(msg.Payload)
	if err != nil {
		s.reportError(msg, err)
		return
	}
	s.registry.Unregister(reg.SourceTag, reg.DestinationTag, msg.Sender)
}

func (s *Service) handleQuery(msg bus.Message) {
	if msg.Sender == "" {
		s.logger.Warn("query without sender dropped")
		return
	}
	if err := s.bus.Reply(msg.Sender, Render(s.registry.Snapshot()), s.name); err != nil {
		s.logger.Warn("failed to reply to query", "sender", msg.Sender, "error", err)
	}
}

// reportError logs a failed request and publishes it on the error channel.
func (s *Service) reportError(msg bus.Message, err error) {
	s.logger.Error("alternative request failed",
		"tag", msg.Tag,
		"sender", msg.Sender,
		"error", err,
	)

	class := "AlternativeRequestError"
	switch {
	case errors.Is(err, alternatives.ErrInvalidPriority):
		class = "InvalidPriority"
	case errors.Is(err, ErrMalformedRegistration):
		class = "MalformedRegistration"
	}

	report := map[string]any{
		"class":   class,
		"message": err.Error(),
		"plugin":  msg.Sender,
		"tag":     msg.Tag,
	}
	if perr := s.bus.Publish(bus.NewMessage(TagError, report, s.name)); perr != nil {
		s.logger.Debug("failed to publish error report", "error", perr)
	}
}

// DecodeRegistration accepts a Registration value or a map keyed by
// srcTag/dstTag/priority (sourceTag and destinationTag are accepted as aliases).
func DecodeRegistration(payload any) (Registration, error) {
	switch p := payload.(type) {
	case Registration:
		return p, nil
	case *Registration:
		if p == nil {
			return Registration{}, fmt.Errorf("%w: nil payload", ErrMalformedRegistration)
		}
		return *p, nil
	case map[string]any:
		reg := Registration{
			SourceTag:      firstString(p, "srcTag", "sourceTag"),
			DestinationTag: firstString(p, "dstTag", "destinationTag"),
			Priority:       p["priority"],
		}
		return reg, nil
	case map[string]string:
		reg := Registration{
			SourceTag:      p["srcTag"],
			DestinationTag: p["dstTag"],
		}
		if priority, ok := p["priority"]; ok {
			reg.Priority = priority
		}
		return reg, nil
	default:
		return Registration{}, fmt.Errorf("%w: unsupported payload %T", ErrMalformedRegistration, payload)
	}
}

func decodeList(payload any) ([]any, error) {
	switch p := payload.(type) {
	case []any:
		return p, nil
	case []map[string]any:
		items := make([]any, len(p))
		for i, m := range p {
			items[i] = m
		}
		return items, nil
	case []Registration:
		items := make([]any, len(p))
		for i, r := range p {
			items[i] = r
		}
		return items, nil
	default:
		return nil, fmt.Errorf("%w: expected a list, got %T", ErrMalformedRegistration, payload)
	}
}
