package bus

import (
	"time"

	"github.com/google/uuid"
)

// ContinuationSeparator separates a base tag from the destination that
// declined a message, as in "DeskChan:user-said#core-utils:answer-speech-request".
const ContinuationSeparator = "#"

// Message is a single delivery on the bus.
// Payload is passed by reference and must be treated as read-only by handlers.
type Message struct {
	ID        string
	Tag       string
	Payload   any
	Sender    string
	Timestamp time.Time
}

// NewMessage creates a message with a fresh ID and the current time.
func NewMessage(tag string, payload any, sender string) Message {
	return Message{
		ID:        uuid.New().String(),
		Tag:       tag,
		Payload:   payload,
		Sender:    sender,
		Timestamp: time.Now().UTC(),
	}
}

// Forward returns a copy of the message readdressed to tag.
// Payload and sender are preserved; the copy gets its own ID.
func (m Message) Forward(tag string) Message {
	return NewMessage(tag, m.Payload, m.Sender)
}
