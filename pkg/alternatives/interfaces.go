package alternatives

import "io"

// Outcome is the terminal result of resolving a message against the table.
// Only Forwarded produces a delivery; every other outcome is a silent drop.
type Outcome int

const (
	// Forwarded means a destination was selected
	Forwarded Outcome = iota
	// NoRow means the base tag has no alternatives
	NoRow
	// StaleContinuation means the declining destination is no longer in the row
	StaleContinuation
	// ChainExhausted means the declining destination was the last in the row
	ChainExhausted
)

func (o Outcome) String() string {
	switch o {
	case Forwarded:
		return "forwarded"
	case NoRow:
		return "no-row"
	case StaleContinuation:
		return "stale-continuation"
	case ChainExhausted:
		return "chain-exhausted"
	default:
		return "unknown"
	}
}

// Subscriptions keeps bus subscriptions in step with the rows of the table.
// Subscribe is called exactly once when a row is created and Unsubscribe
// exactly once when it is deleted. Both run while the table lock is held and
// must not call back into the Registry.
type Subscriptions interface {
	Subscribe(sourceTag string) error
	Unsubscribe(sourceTag string)
}

// Registry owns the mapping from source tags to ordered alternatives.
// All methods are safe for concurrent use and never block on I/O.
type Registry interface {
	io.Closer

	// Register inserts or replaces the (destinationTag, ownerPlugin) entry under sourceTag.
	// priority must be an integer or parseable as one, otherwise ErrInvalidPriority
	// is returned and the table is unchanged.
	Register(sourceTag, destinationTag, ownerPlugin string, priority any) error

	// Unregister removes the matching entry if present. Absence is not an error.
	Unregister(sourceTag, destinationTag, ownerPlugin string)

	// Purge removes every entry owned by ownerPlugin.
	Purge(ownerPlugin string) PurgeResult

	// Resolve selects the destination for a message on sourceTag. With
	// continued set, the entry after previousDestination is selected.
	Resolve(sourceTag, previousDestination string, continued bool) (Entry, Outcome)

	// Lookup returns a copy of one row.
	Lookup(sourceTag string) ([]Entry, bool)

	// Snapshot returns a deep copy of the whole table.
	Snapshot() Snapshot

	// Stats summarizes the table.
	Stats() Stats
}
