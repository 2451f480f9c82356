package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/tagmesh/internal/logging"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"github.com/rmacdonaldsmith/tagmesh/pkg/messagelog"
)

var (
	// ErrBusClosed is returned when using a closed bus
	ErrBusClosed = errors.New("bus is closed")
	// ErrEmptyTag is returned when a tag is empty
	ErrEmptyTag = errors.New("tag cannot be empty")
	// ErrNilHandler is returned when subscribing a nil handler
	ErrNilHandler = errors.New("handler cannot be nil")
	// ErrSubscriptionNotFound is returned when unsubscribing an unknown subscription
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

type subscription struct {
	id      bus.SubscriptionID
	handler bus.Handler
}

// InProcessBus implements bus.Bus inside a single process.
//
// Handlers of one message run sequentially in subscription order. Distinct
// messages are delivered concurrently by a pool of workers unless the bus is
// synchronous. When the queue is full a message is delivered on its own
// goroutine rather than blocking the publisher, since handlers publish too.
type InProcessBus struct {
	mu     sync.RWMutex
	exact  map[string][]subscription // tag -> subscriptions
	prefix map[string][]subscription // "tag#" -> subscriptions
	closed bool

	config  Config
	journal messagelog.MessageLog
	logger  *slog.Logger

	queue   chan bus.Message
	workers sync.WaitGroup

	// inflight counts accepted messages not yet delivered. It is a counter
	// under a lock rather than a WaitGroup so Wait may run while other
	// goroutines keep publishing.
	inflightMu sync.Mutex
	drained    *sync.Cond
	inflight   int

	published atomic.Int64
	delivered atomic.Int64
	unrouted  atomic.Int64
	overflow  atomic.Int64
	panics    atomic.Int64
}

// NewInProcessBus creates a bus and starts its delivery workers.
// journal may be nil, in which case deliveries are not recorded.
func NewInProcessBus(config Config, journal messagelog.MessageLog, logger *slog.Logger) (*InProcessBus, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bus config: %w", err)
	}

	b := &InProcessBus{
		exact:   make(map[string][]subscription),
		prefix:  make(map[string][]subscription),
		config:  config,
		journal: journal,
		logger:  logging.OrDiscard(logger).With("component", "bus"),
	}
	b.drained = sync.NewCond(&b.inflightMu)

	if !config.Synchronous {
		b.config.SetDefaults()
		b.queue = make(chan bus.Message, b.config.QueueSize)
		for i := 0; i < b.config.Workers; i++ {
			b.workers.Add(1)
			go b.worker()
		}
	}

	return b, nil
}

// Subscribe registers handler for tag. Tags ending in "#" match by prefix.
func (b *InProcessBus) Subscribe(tag string, handler bus.Handler) (bus.SubscriptionID, error) {
	if tag == "" {
		return "", ErrEmptyTag
	}
	if handler == nil {
		return "", ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", ErrBusClosed
	}

	sub := subscription{
		id:      bus.SubscriptionID(uuid.New().String()),
		handler: handler,
	}
	table := b.tableFor(tag)
	table[tag] = append(table[tag], sub)

	return sub.id, nil
}

// Unsubscribe removes the subscription id from tag.
func (b *InProcessBus) Unsubscribe(tag string, id bus.SubscriptionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	table := b.tableFor(tag)
	subs := table[tag]
	for i, sub := range subs {
		if sub.id != id {
			continue
		}
		remaining := make([]subscription, 0, len(subs)-1)
		remaining = append(remaining, subs[:i]...)
		remaining = append(remaining, subs[i+1:]...)
		if len(remaining) == 0 {
			delete(table, tag)
		} else {
			table[tag] = remaining
		}
		return nil
	}

	return fmt.Errorf("%w: %s on %s", ErrSubscriptionNotFound, id, tag)
}

// Publish accepts msg for delivery. Missing ID or timestamp are filled in.
func (b *InProcessBus) Publish(msg bus.Message) error {
	if msg.Tag == "" {
		return ErrEmptyTag
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		filled := bus.NewMessage(msg.Tag, msg.Payload, msg.Sender)
		if msg.ID != "" {
			filled.ID = msg.ID
		}
		if !msg.Timestamp.IsZero() {
			filled.Timestamp = msg.Timestamp
		}
		msg = filled
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	b.published.Add(1)

	if b.config.Synchronous {
		b.mu.RUnlock()
		b.deliver(msg)
		return nil
	}

	b.accept()
	select {
	case b.queue <- msg:
	default:
		b.overflow.Add(1)
		go func() {
			defer b.settle()
			b.deliver(msg)
		}()
	}
	b.mu.RUnlock()

	return nil
}

// Reply sends payload to the plugin named to, on behalf of from.
func (b *InProcessBus) Reply(to string, payload any, from string) error {
	return b.Publish(bus.NewMessage(to, payload, from))
}

// Wait blocks until every accepted message has been delivered, including
// messages published by handlers along the way. Publishers may keep running
// while Wait blocks; it returns the first time nothing is in flight.
// It must not be called from a handler.
func (b *InProcessBus) Wait() {
	b.inflightMu.Lock()
	defer b.inflightMu.Unlock()
	for b.inflight > 0 {
		b.drained.Wait()
	}
}

func (b *InProcessBus) accept() {
	b.inflightMu.Lock()
	b.inflight++
	b.inflightMu.Unlock()
}

func (b *InProcessBus) settle() {
	b.inflightMu.Lock()
	defer b.inflightMu.Unlock()
	b.inflight--
	if b.inflight == 0 {
		b.drained.Broadcast()
	}
}

// SubscriberCount returns the number of subscriptions registered under tag exactly.
func (b *InProcessBus) SubscriberCount(tag string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if strings.HasSuffix(tag, bus.ContinuationSeparator) {
		return len(b.prefix[tag])
	}
	return len(b.exact[tag])
}

// Statistics returns delivery counters.
func (b *InProcessBus) Statistics() bus.Statistics {
	b.mu.RLock()
	count := 0
	for _, subs := range b.exact {
		count += len(subs)
	}
	for _, subs := range b.prefix {
		count += len(subs)
	}
	b.mu.RUnlock()

	return bus.Statistics{
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		Unrouted:      b.unrouted.Load(),
		Overflow:      b.overflow.Load(),
		Panics:        b.panics.Load(),
		Subscriptions: count,
	}
}

// Close stops accepting messages, drains the queue and drops all subscriptions.
// It must not be called from a handler. It is idempotent.
func (b *InProcessBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.queue != nil {
		close(b.queue)
	}
	b.mu.Unlock()

	b.workers.Wait()
	b.Wait()

	b.mu.Lock()
	b.exact = make(map[string][]subscription)
	b.prefix = make(map[string][]subscription)
	b.mu.Unlock()

	return nil
}

func (b *InProcessBus) worker() {
	defer b.workers.Done()
	for msg := range b.queue {
		b.deliver(msg)
		b.settle()
	}
}

func (b *InProcessBus) deliver(msg bus.Message) {
	if b.journal != nil {
		if _, err := b.journal.Append(context.Background(), msg); err != nil {
			b.logger.Debug("journal append failed", "tag", msg.Tag, "error", err)
		}
	}

	handlers := b.match(msg.Tag)
	if len(handlers) == 0 {
		b.unrouted.Add(1)
		b.logger.Debug("no subscribers", "tag", msg.Tag, "sender", msg.Sender)
		return
	}

	for _, handler := range handlers {
		b.invoke(handler, msg)
	}
}

// match collects the handlers for tag: exact subscribers first, then
// continuation subscribers for every "#" prefix of tag.
func (b *InProcessBus) match(tag string) []bus.Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var handlers []bus.Handler
	for _, sub := range b.exact[tag] {
		handlers = append(handlers, sub.handler)
	}
	for i := 0; i < len(tag); i++ {
		if tag[i] != bus.ContinuationSeparator[0] {
			continue
		}
		for _, sub := range b.prefix[tag[:i+1]] {
			handlers = append(handlers, sub.handler)
		}
	}
	return handlers
}

func (b *InProcessBus) invoke(handler bus.Handler, msg bus.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.logger.Error("handler panicked", "tag", msg.Tag, "sender", msg.Sender, "panic", r)
		}
	}()

	handler(msg)
	b.delivered.Add(1)
}

func (b *InProcessBus) tableFor(tag string) map[string][]subscription {
	if strings.HasSuffix(tag, bus.ContinuationSeparator) {
		return b.prefix
	}
	return b.exact
}

// Verify that InProcessBus implements the Bus interface at compile time
var _ bus.Bus = (*InProcessBus)(nil)
