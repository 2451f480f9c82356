package messagelog

import (
	"context"
	"errors"
	"sync"

	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"github.com/rmacdonaldsmith/tagmesh/pkg/messagelog"
)

// DefaultMaxPerTag is the number of records retained per tag when no limit is configured.
const DefaultMaxPerTag = 256

var (
	// ErrNegativeOffset is returned when a negative offset is provided
	ErrNegativeOffset = errors.New("offset cannot be negative")
	// ErrNegativeMaxCount is returned when a negative max count is provided
	ErrNegativeMaxCount = errors.New("max count cannot be negative")
	// ErrEmptyTag is returned when a message without a tag is appended
	ErrEmptyTag = errors.New("tag cannot be empty")
	// ErrLogClosed is returned when appending to a closed log
	ErrLogClosed = errors.New("message log is closed")
)

// InMemoryMessageLog implements messagelog.MessageLog with bounded per-tag slices.
// Each tag has its own offset counter starting from 0. When a tag holds more than
// maxPerTag records the oldest are dropped. It is safe for concurrent use.
type InMemoryMessageLog struct {
	mu              sync.RWMutex
	recordsByTag    map[string][]*messagelog.Record // tag -> retained records
	nextOffsetByTag map[string]int64                // tag -> nextOffset
	maxPerTag       int
	closed          bool
}

// NewInMemoryMessageLog creates a journal retaining at most maxPerTag records per tag.
// A non-positive maxPerTag selects DefaultMaxPerTag.
func NewInMemoryMessageLog(maxPerTag int) *InMemoryMessageLog {
	if maxPerTag <= 0 {
		maxPerTag = DefaultMaxPerTag
	}
	return &InMemoryMessageLog{
		recordsByTag:    make(map[string][]*messagelog.Record),
		nextOffsetByTag: make(map[string]int64),
		maxPerTag:       maxPerTag,
	}
}

// Append journals msg under its tag.
func (l *InMemoryMessageLog) Append(ctx context.Context, msg bus.Message) (*messagelog.Record, error) {
	if msg.Tag == "" {
		return nil, ErrEmptyTag
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrLogClosed
	}

	offset := l.nextOffsetByTag[msg.Tag]
	stored := messagelog.NewRecord(msg).WithOffset(offset)

	records := append(l.recordsByTag[msg.Tag], stored)
	if excess := len(records) - l.maxPerTag; excess > 0 {
		// Copy so the trimmed prefix can be collected
		records = append([]*messagelog.Record(nil), records[excess:]...)
	}
	l.recordsByTag[msg.Tag] = records
	l.nextOffsetByTag[msg.Tag]++

	return stored, nil
}

// Read returns up to maxCount records of tag starting at startOffset.
// Offsets that were trimmed are skipped silently.
func (l *InMemoryMessageLog) Read(ctx context.Context, tag string, startOffset int64, maxCount int) ([]*messagelog.Record, error) {
	if startOffset < 0 {
		return nil, ErrNegativeOffset
	}
	if maxCount < 0 {
		return nil, ErrNegativeMaxCount
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if maxCount == 0 {
		return make([]*messagelog.Record, 0), nil
	}

	records := l.recordsByTag[tag]
	results := make([]*messagelog.Record, 0, min(maxCount, len(records)))
	for _, record := range records {
		if record.Offset() < startOffset {
			continue
		}
		results = append(results, record)
		if len(results) >= maxCount {
			break
		}
	}

	return results, nil
}

// EndOffset returns the next offset for tag (0 if the tag was never seen).
func (l *InMemoryMessageLog) EndOffset(ctx context.Context, tag string) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.nextOffsetByTag[tag], nil
}

// Statistics returns aggregate counters about the journal.
func (l *InMemoryMessageLog) Statistics(ctx context.Context) (messagelog.Statistics, error) {
	select {
	case <-ctx.Done():
		return messagelog.Statistics{}, ctx.Err()
	default:
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := messagelog.Statistics{
		TagCounts: make(map[string]int64, len(l.nextOffsetByTag)),
		TagCount:  len(l.nextOffsetByTag),
	}
	for tag, next := range l.nextOffsetByTag {
		stats.TagCounts[tag] = next
		stats.TotalMessages += next
		stats.Retained += int64(len(l.recordsByTag[tag]))
	}

	return stats, nil
}

// Close clears the journal. It is idempotent.
func (l *InMemoryMessageLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.recordsByTag = make(map[string][]*messagelog.Record)
	l.nextOffsetByTag = make(map[string]int64)
	l.closed = true

	return nil
}

// Verify that InMemoryMessageLog implements the MessageLog interface at compile time
var _ messagelog.MessageLog = (*InMemoryMessageLog)(nil)
