package alternatives

import "fmt"

// Entry is one alternative registered under a source tag.
// An entry is identified within its row by (DestinationTag, OwnerPlugin).
type Entry struct {
	DestinationTag string
	OwnerPlugin    string
	Priority       int
}

// Matches reports whether e has the given identity.
func (e Entry) Matches(destinationTag, ownerPlugin string) bool {
	return e.DestinationTag == destinationTag && e.OwnerPlugin == ownerPlugin
}

// String renders the entry as destination(owner)=priority.
func (e Entry) String() string {
	return fmt.Sprintf("%s(%s)=%d", e.DestinationTag, e.OwnerPlugin, e.Priority)
}

// Snapshot is a point-in-time copy of the routing table.
// Every row is ordered by non-increasing priority.
type Snapshot map[string][]Entry

// Removal records one entry taken out of the table.
type Removal struct {
	SourceTag string
	Entry     Entry
}

// PurgeResult describes everything removed by a purge.
type PurgeResult struct {
	Removed     []Removal
	VacatedTags []string // source tags whose rows became empty and were deleted
}

// Stats summarizes the routing table.
type Stats struct {
	Rows    int            // Source tags with at least one entry
	Entries int            // Entries across all rows
	Owners  map[string]int // Entries per owner plugin
}
