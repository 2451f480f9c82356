// Package alternatives defines the routing contracts for competing message handlers.
//
// Several plugins may want to handle the same tag. Instead of all of them
// subscribing to it, each registers an alternative: "messages sent to
// sourceTag should go to my destinationTag, with this priority". The routing
// engine then forwards every message for sourceTag to the single highest
// priority destination.
//
// A destination that does not want to handle a message declines it by
// publishing the same payload to the continuation tag
//
//	sourceTag + "#" + destinationTag
//
// which the engine routes to the next alternative in priority order. The
// decline state lives entirely in the tag string; no session is kept.
//
// This package contains:
//   - Entry, Snapshot and PurgeResult: plain data describing the routing table
//   - Registry: the table contract implemented in internal/alternatives
//   - Subscriptions: the hook through which the table keeps bus subscriptions in step
//   - ParsePriority, ParseTag and ContinuationTag helpers
//
// Example usage:
//
//	err := registry.Register("DeskChan:user-said", "talk:answer", "talk", 100)
//	if err != nil {
//		return err
//	}
//
//	// inside talk:answer, decline the message
//	proxy.SendMessage(alternatives.ContinuationTag("DeskChan:user-said", "talk:answer"), payload)
package alternatives
