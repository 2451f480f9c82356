package alternatives

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/rmacdonaldsmith/tagmesh/internal/logging"
	"github.com/rmacdonaldsmith/tagmesh/pkg/alternatives"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
)

var (
	// ErrEmptyTag is returned when a source or destination tag is empty
	ErrEmptyTag = errors.New("tag cannot be empty")
	// ErrEmptyOwner is returned when the owner plugin is empty
	ErrEmptyOwner = errors.New("owner plugin cannot be empty")
	// ErrContinuationSourceTag is returned when a source tag contains the continuation separator
	ErrContinuationSourceTag = errors.New("source tag cannot contain the continuation separator")
	// ErrRegistryClosed is returned when registering on a closed registry
	ErrRegistryClosed = errors.New("registry is closed")
)

// InMemoryRegistry implements alternatives.Registry.
//
// Rows are kept sorted by non-increasing priority; equal priorities keep the
// order in which they were appended. A single mutex guards the whole table,
// and the Subscriptions hook is driven under it so that a tag is subscribed
// exactly while its row exists.
type InMemoryRegistry struct {
	mu     sync.Mutex
	rows   map[string][]alternatives.Entry // sourceTag -> entries, never empty
	subs   alternatives.Subscriptions
	logger *slog.Logger
	closed bool
}

// NewInMemoryRegistry creates an empty registry. subs may be nil.
func NewInMemoryRegistry(subs alternatives.Subscriptions, logger *slog.Logger) *InMemoryRegistry {
	if subs == nil {
		subs = noSubscriptions{}
	}
	return &InMemoryRegistry{
		rows:   make(map[string][]alternatives.Entry),
		subs:   subs,
		logger: logging.OrDiscard(logger).With("component", "alternatives"),
	}
}

// Register inserts or replaces an alternative.
func (r *InMemoryRegistry) Register(sourceTag, destinationTag, ownerPlugin string, priority any) error {
	if sourceTag == "" || destinationTag == "" {
		return ErrEmptyTag
	}
	if ownerPlugin == "" {
		return ErrEmptyOwner
	}
	if strings.Contains(sourceTag, bus.ContinuationSeparator) {
		return fmt.Errorf("%w: %q", ErrContinuationSourceTag, sourceTag)
	}
	p, err := alternatives.ParsePriority(priority)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}

	row, exists := r.rows[sourceTag]
	if !exists {
		if err := r.subs.Subscribe(sourceTag); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("failed to subscribe %s: %w", sourceTag, err)
		}
	}

	replaced := false
	if i := indexOf(row, destinationTag, ownerPlugin); i >= 0 {
		row = slices.Delete(row, i, i+1)
		replaced = true
	}
	row = append(row, alternatives.Entry{
		DestinationTag: destinationTag,
		OwnerPlugin:    ownerPlugin,
		Priority:       p,
	})
	slices.SortStableFunc(row, func(a, b alternatives.Entry) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	r.rows[sourceTag] = row
	r.mu.Unlock()

	r.logger.Info("registered alternative",
		"source_tag", sourceTag,
		"destination_tag", destinationTag,
		"owner", ownerPlugin,
		"priority", p,
		"replaced", replaced,
	)
	if !exists {
		r.logger.Debug("subscribed source tag", "source_tag", sourceTag)
	}

	return nil
}

// Unregister removes the (destinationTag, ownerPlugin) entry under sourceTag.
func (r *InMemoryRegistry) Unregister(sourceTag, destinationTag, ownerPlugin string) {
	r.mu.Lock()
	row, exists := r.rows[sourceTag]
	i := indexOf(row, destinationTag, ownerPlugin)
	if !exists || i < 0 {
		r.mu.Unlock()
		return
	}

	removed := row[i]
	row = slices.Delete(row, i, i+1)
	vacated := len(row) == 0
	if vacated {
		delete(r.rows, sourceTag)
		r.subs.Unsubscribe(sourceTag)
	} else {
		r.rows[sourceTag] = row
	}
	r.mu.Unlock()

	r.logger.Info("unregistered alternative",
		"source_tag", sourceTag,
		"destination_tag", removed.DestinationTag,
		"owner", removed.OwnerPlugin,
		"priority", removed.Priority,
	)
	if vacated {
		r.logger.Info("no more alternatives", "source_tag", sourceTag)
	}
}

// Purge removes every entry owned by ownerPlugin across all rows.
// Removals are reported ordered by source tag, then by former row position.
func (r *InMemoryRegistry) Purge(ownerPlugin string) alternatives.PurgeResult {
	var result alternatives.PurgeResult
	if ownerPlugin == "" {
		return result
	}

	r.mu.Lock()
	for sourceTag, row := range r.rows {
		kept := row[:0:0]
		for _, entry := range row {
			if entry.OwnerPlugin == ownerPlugin {
				result.Removed = append(result.Removed, alternatives.Removal{SourceTag: sourceTag, Entry: entry})
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) == len(row) {
			continue
		}
		if len(kept) == 0 {
			delete(r.rows, sourceTag)
			r.subs.Unsubscribe(sourceTag)
			result.VacatedTags = append(result.VacatedTags, sourceTag)
		} else {
			r.rows[sourceTag] = kept
		}
	}
	r.mu.Unlock()

	slices.SortStableFunc(result.Removed, func(a, b alternatives.Removal) int {
		return strings.Compare(a.SourceTag, b.SourceTag)
	})
	slices.Sort(result.VacatedTags)

	for _, removal := range result.Removed {
		r.logger.Info("unregistered alternative",
			"source_tag", removal.SourceTag,
			"destination_tag", removal.Entry.DestinationTag,
			"owner", removal.Entry.OwnerPlugin,
			"priority", removal.Entry.Priority,
		)
	}
	for _, sourceTag := range result.VacatedTags {
		r.logger.Info("no more alternatives", "source_tag", sourceTag)
	}

	return result
}

// Resolve selects the next destination for a message on sourceTag.
func (r *InMemoryRegistry) Resolve(sourceTag, previousDestination string, continued bool) (alternatives.Entry, alternatives.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.rows[sourceTag]
	if len(row) == 0 {
		return alternatives.Entry{}, alternatives.NoRow
	}
	if !continued {
		return row[0], alternatives.Forwarded
	}

	i := slices.IndexFunc(row, func(e alternatives.Entry) bool {
		return e.DestinationTag == previousDestination
	})
	switch {
	case i < 0:
		return alternatives.Entry{}, alternatives.StaleContinuation
	case i == len(row)-1:
		return alternatives.Entry{}, alternatives.ChainExhausted
	default:
		return row[i+1], alternatives.Forwarded
	}
}

// Lookup returns a copy of the row for sourceTag.
func (r *InMemoryRegistry) Lookup(sourceTag string) ([]alternatives.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[sourceTag]
	if !ok {
		return nil, false
	}
	return slices.Clone(row), true
}

// Snapshot returns a deep copy of the table.
func (r *InMemoryRegistry) Snapshot() alternatives.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(alternatives.Snapshot, len(r.rows))
	for sourceTag, row := range r.rows {
		snapshot[sourceTag] = slices.Clone(row)
	}
	return snapshot
}

// Stats summarizes the table.
func (r *InMemoryRegistry) Stats() alternatives.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := alternatives.Stats{
		Rows:   len(r.rows),
		Owners: make(map[string]int),
	}
	for _, row := range r.rows {
		stats.Entries += len(row)
		for _, entry := range row {
			stats.Owners[entry.OwnerPlugin]++
		}
	}
	return stats
}

// Close drops every row, unsubscribing its tag. It is idempotent.
func (r *InMemoryRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	for sourceTag := range r.rows {
		r.subs.Unsubscribe(sourceTag)
	}
	r.rows = make(map[string][]alternatives.Entry)
	r.closed = true

	return nil
}

func indexOf(row []alternatives.Entry, destinationTag, ownerPlugin string) int {
	return slices.IndexFunc(row, func(e alternatives.Entry) bool {
		return e.Matches(destinationTag, ownerPlugin)
	})
}

type noSubscriptions struct{}

func (noSubscriptions) Subscribe(string) error { return nil }
func (noSubscriptions) Unsubscribe(string)     {}

// Verify that InMemoryRegistry implements the Registry interface at compile time
var _ alternatives.Registry = (*InMemoryRegistry)(nil)
