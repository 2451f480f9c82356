package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage("core:notify", "hello", "talk")

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "core:notify", msg.Tag)
	assert.Equal(t, "hello", msg.Payload)
	assert.Equal(t, "talk", msg.Sender)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestMessage_Forward(t *testing.T) {
	payload := map[string]any{"value": "hi"}
	msg := NewMessage("DeskChan:user-said", payload, "speech")

	fwd := msg.Forward("talk:answer")

	assert.Equal(t, "talk:answer", fwd.Tag)
	assert.Equal(t, "speech", fwd.Sender, "sender identity must survive forwarding")
	assert.Equal(t, payload, fwd.Payload)
	assert.NotEqual(t, msg.ID, fwd.ID)
	assert.Equal(t, "DeskChan:user-said", msg.Tag, "original must be untouched")
}
