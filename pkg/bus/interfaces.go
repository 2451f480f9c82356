package bus

import "io"

// Handler is invoked once for every message delivered to a subscription.
type Handler func(msg Message)

// SubscriptionID identifies one subscription so it can be removed later.
type SubscriptionID string

// Bus defines the in-process publish/subscribe contract.
type Bus interface {
	io.Closer

	// Subscribe registers handler for tag. A tag ending in "#" subscribes to
	// every tag with that prefix.
	Subscribe(tag string, handler Handler) (SubscriptionID, error)

	// Unsubscribe removes a subscription previously returned by Subscribe.
	Unsubscribe(tag string, id SubscriptionID) error

	// Publish delivers msg to every matching subscription.
	// Delivery is fire-and-forget; an error means the message was not accepted.
	Publish(msg Message) error

	// Reply sends payload to the plugin identified by to, on behalf of from.
	Reply(to string, payload any, from string) error
}

// Statistics provides counters about bus traffic.
type Statistics struct {
	Published     int64 // Messages accepted by Publish
	Delivered     int64 // Handler invocations completed
	Unrouted      int64 // Messages with no matching subscription
	Overflow      int64 // Messages delivered outside the worker pool because the queue was full
	Panics        int64 // Handler panics recovered
	Subscriptions int   // Active subscriptions
}
