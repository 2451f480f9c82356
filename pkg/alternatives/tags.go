package alternatives

import (
	"strings"

	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
)

// ParseTag splits an incoming tag at its first "#" into the base source tag
// and the destination that declined the message. A "#" in first position is
// not a separator. A trailing "#" yields continued with an empty previous
// destination, which never matches an entry.
func ParseTag(tag string) (base, previous string, continued bool) {
	i := strings.Index(tag, bus.ContinuationSeparator)
	if i <= 0 {
		return tag, "", false
	}
	return tag[:i], tag[i+len(bus.ContinuationSeparator):], true
}

// ContinuationTag builds the tag a destination publishes to in order to
// decline a message it received through sourceTag.
func ContinuationTag(sourceTag, destinationTag string) string {
	return sourceTag + bus.ContinuationSeparator + destinationTag
}

// ContinuationPrefix is the bus subscription tag receiving every continuation of sourceTag.
func ContinuationPrefix(sourceTag string) string {
	return sourceTag + bus.ContinuationSeparator
}
