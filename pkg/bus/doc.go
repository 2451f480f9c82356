// Package bus provides the message model and the publish/subscribe contract
// shared by every tagmesh plugin.
//
// Plugins never call each other directly. They exchange Messages addressed to
// symbolic string tags such as "DeskChan:say" or "core:notify":
//   - Message: an immutable envelope carrying tag, payload and sender identity
//   - Handler: the callback invoked for each delivered message
//   - Bus: subscribe, unsubscribe, publish and reply operations
//
// Two subscription forms exist. An exact subscription receives messages whose
// tag equals the subscribed tag. A subscription whose tag ends in "#" is a
// continuation subscription and receives every message whose tag starts with
// that prefix, so a subscriber of "DeskChan:user-said#" receives
// "DeskChan:user-said#core-utils:answer-speech-request".
//
// Replies are ordinary messages addressed to the tag equal to the recipient's
// identity; every plugin listens on its own name.
//
// Example usage:
//
//	id, err := b.Subscribe("core:notify", func(msg bus.Message) {
//		fmt.Println(msg.Sender, msg.Payload)
//	})
//	if err != nil {
//		return err
//	}
//	defer b.Unsubscribe("core:notify", id)
//
//	err = b.Publish(bus.NewMessage("core:notify", map[string]any{"message": "hi"}, "talk"))
package bus
