// Package messagelog defines a bounded, tag-partitioned journal of bus deliveries.
//
// The journal is a diagnostics aid. Each tag has its own offset sequence
// starting from 0; implementations may discard the oldest records of a tag,
// in which case reads simply start at the earliest retained offset.
package messagelog

import (
	"context"
	"io"

	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
)

// MessageLog defines the interface for the delivery journal.
type MessageLog interface {
	io.Closer

	// Append journals msg under its tag and returns the stored record with its offset.
	Append(ctx context.Context, msg bus.Message) (*Record, error)

	// Read returns up to maxCount records of tag with offset >= startOffset.
	Read(ctx context.Context, tag string, startOffset int64, maxCount int) ([]*Record, error)

	// EndOffset returns the next offset that will be assigned for tag.
	EndOffset(ctx context.Context, tag string) (int64, error)

	// Statistics returns aggregate counters about the journal.
	Statistics(ctx context.Context) (Statistics, error)
}

// Statistics provides aggregate statistics about the journal
type Statistics struct {
	TotalMessages int64            // Messages appended across all tags, including trimmed ones
	Retained      int64            // Messages currently held
	TagCounts     map[string]int64 // Messages appended per tag
	TagCount      int              // Number of distinct tags
}
