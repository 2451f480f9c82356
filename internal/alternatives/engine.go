package alternatives

import (
	"context"
	"log/slog"

	"github.com/rmacdonaldsmith/tagmesh/internal/logging"
	"github.com/rmacdonaldsmith/tagmesh/pkg/alternatives"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// RouteResult describes what the engine did with one message.
type RouteResult struct {
	Outcome     alternatives.Outcome
	Destination alternatives.Entry // zero unless Outcome is Forwarded
}

// Engine forwards messages on source tags to the selected alternative.
//
// A message on "A" goes to the highest priority destination of A. A message
// on "A#X" goes to the destination ranked right after X. Every miss is a
// silent drop reported through RouteResult only.
type Engine struct {
	registry alternatives.Registry
	bus      bus.Bus
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewEngine creates a routing engine. tracer may be nil.
func NewEngine(registry alternatives.Registry, b bus.Bus, tracer trace.Tracer, logger *slog.Logger) *Engine {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("alternatives")
	}
	return &Engine{
		registry: registry,
		bus:      b,
		tracer:   tracer,
		logger:   logging.OrDiscard(logger).With("component", "alternatives"),
	}
}

// Handle is the bus handler for every registered source tag.
func (e *Engine) Handle(msg bus.Message) {
	e.Route(context.Background(), msg)
}

// Route resolves msg against the table and forwards its payload unchanged,
// preserving the original sender.
func (e *Engine) Route(ctx context.Context, msg bus.Message) RouteResult {
	base, previous, continued := alternatives.ParseTag(msg.Tag)

	_, span := e.tracer.Start(ctx, "alternatives.route",
		trace.WithAttributes(
			attribute.String("tag", msg.Tag),
			attribute.String("base_tag", base),
			attribute.String("previous", previous),
			attribute.String("sender", msg.Sender),
		),
	)
	defer span.End()

	entry, outcome := e.registry.Resolve(base, previous, continued)
	span.SetAttributes(attribute.String("outcome", outcome.String()))

	if outcome != alternatives.Forwarded {
		e.logger.Debug("message dropped",
			"tag", msg.Tag,
			"sender", msg.Sender,
			"outcome", outcome.String(),
		)
		return RouteResult{Outcome: outcome}
	}

	span.SetAttributes(
		attribute.String("destination", entry.DestinationTag),
		attribute.String("owner", entry.OwnerPlugin),
		attribute.Int("priority", entry.Priority),
	)

	if err := e.bus.Publish(msg.Forward(entry.DestinationTag)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "forward failed")
		e.logger.Warn("failed to forward message",
			"tag", msg.Tag,
			"destination", entry.DestinationTag,
			"error", err,
		)
	} else {
		e.logger.Debug("message forwarded",
			"tag", msg.Tag,
			"sender", msg.Sender,
			"destination", entry.DestinationTag,
			"owner", entry.OwnerPlugin,
		)
	}

	return RouteResult{Outcome: outcome, Destination: entry}
}
