package alternatives

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rmacdonaldsmith/tagmesh/internal/logging"
	"github.com/rmacdonaldsmith/tagmesh/pkg/alternatives"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
)

// BusSubscriptions implements alternatives.Subscriptions on a bus.
// Each source tag gets two subscriptions: the exact tag and its continuation
// prefix, both delivering to the same handler.
type BusSubscriptions struct {
	mu      sync.Mutex
	bus     bus.Bus
	handler bus.Handler
	ids     map[string][2]bus.SubscriptionID // sourceTag -> exact, prefix
	logger  *slog.Logger
}

// NewBusSubscriptions creates the hook. handler receives every message routed
// through a registered source tag.
func NewBusSubscriptions(b bus.Bus, handler bus.Handler, logger *slog.Logger) *BusSubscriptions {
	return &BusSubscriptions{
		bus:     b,
		handler: handler,
		ids:     make(map[string][2]bus.SubscriptionID),
		logger:  logging.OrDiscard(logger).With("component", "alternatives"),
	}
}

// Subscribe listens on sourceTag and its continuation prefix.
func (s *BusSubscriptions) Subscribe(sourceTag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[sourceTag]; ok {
		return nil
	}

	exactID, err := s.bus.Subscribe(sourceTag, s.handler)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", sourceTag, err)
	}
	prefix := alternatives.ContinuationPrefix(sourceTag)
	prefixID, err := s.bus.Subscribe(prefix, s.handler)
	if err != nil {
		s.bus.Unsubscribe(sourceTag, exactID)
		return fmt.Errorf("subscribe %s: %w", prefix, err)
	}

	s.ids[sourceTag] = [2]bus.SubscriptionID{exactID, prefixID}
	return nil
}

// Unsubscribe drops both subscriptions of sourceTag.
func (s *BusSubscriptions) Unsubscribe(sourceTag string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.ids[sourceTag]
	if !ok {
		return
	}
	delete(s.ids, sourceTag)

	if err := s.bus.Unsubscribe(sourceTag, ids[0]); err != nil {
		s.logger.Warn("failed to unsubscribe", "tag", sourceTag, "error", err)
	}
	prefix := alternatives.ContinuationPrefix(sourceTag)
	if err := s.bus.Unsubscribe(prefix, ids[1]); err != nil {
		s.logger.Warn("failed to unsubscribe", "tag", prefix, "error", err)
	}
}

// Count returns the number of source tags currently subscribed.
func (s *BusSubscriptions) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Verify that BusSubscriptions implements the Subscriptions interface at compile time
var _ alternatives.Subscriptions = (*BusSubscriptions)(nil)
