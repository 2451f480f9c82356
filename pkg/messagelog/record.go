package messagelog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
)

// Record is one journaled bus delivery.
// Payload is stored as JSON so the journal never holds references into live plugin data.
type Record struct {
	offset    int64
	id        string
	tag       string
	sender    string
	payload   []byte
	timestamp time.Time
}

// NewRecord creates a Record from a bus message.
// Payloads that cannot be encoded as JSON are stored as their quoted %v form.
func NewRecord(msg bus.Message) *Record {
	return &Record{
		offset:    0, // Will be set by the MessageLog when appending
		id:        msg.ID,
		tag:       msg.Tag,
		sender:    msg.Sender,
		payload:   encodePayload(msg.Payload),
		timestamp: msg.Timestamp,
	}
}

func encodePayload(payload any) []byte {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprintf("%v", payload))
	}
	return data
}

// WithOffset returns a copy of the record at the given offset.
func (r *Record) WithOffset(offset int64) *Record {
	return &Record{
		offset:    offset,
		id:        r.id,
		tag:       r.tag,
		sender:    r.sender,
		payload:   r.payload,
		timestamp: r.timestamp,
	}
}

// Offset returns the position of this record within its tag.
func (r *Record) Offset() int64 {
	return r.offset
}

// ID returns the bus message ID.
func (r *Record) ID() string {
	return r.id
}

// Tag returns the tag the message was addressed to.
func (r *Record) Tag() string {
	return r.tag
}

// Sender returns the identity of the publishing plugin.
func (r *Record) Sender() string {
	return r.sender
}

// Payload returns the JSON-encoded payload.
func (r *Record) Payload() []byte {
	// Return a copy to prevent mutation
	if r.payload == nil {
		return nil
	}
	result := make([]byte, len(r.payload))
	copy(result, r.payload)
	return result
}

// Timestamp returns when the message was created.
func (r *Record) Timestamp() time.Time {
	return r.timestamp
}
