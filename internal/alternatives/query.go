package alternatives

import (
	"fmt"

	"github.com/rmacdonaldsmith/tagmesh/pkg/alternatives"
	"google.golang.org/protobuf/types/known/structpb"
)

// Wire keys of a rendered entry.
const (
	keyTag      = "tag"
	keyPlugin   = "plugin"
	keyPriority = "priority"
)

// Render converts a snapshot into the reply shape sent to requesters:
// sourceTag -> list of {"tag", "plugin", "priority"}, each list ordered by
// descending priority. Only generic maps and slices are used so the result
// can be handed to any plugin or to structpb.
func Render(snapshot alternatives.Snapshot) map[string]any {
	rendered := make(map[string]any, len(snapshot))
	for sourceTag, row := range snapshot {
		entries := make([]any, len(row))
		for i, entry := range row {
			entries[i] = map[string]any{
				keyTag:      entry.DestinationTag,
				keyPlugin:   entry.OwnerPlugin,
				keyPriority: entry.Priority,
			}
		}
		rendered[sourceTag] = entries
	}
	return rendered
}

// RenderStruct converts a snapshot into a protobuf Struct for gRPC diagnostics.
func RenderStruct(snapshot alternatives.Snapshot) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(Render(snapshot))
	if err != nil {
		return nil, fmt.Errorf("failed to convert snapshot: %w", err)
	}
	return s, nil
}

// SnapshotFromStruct is the inverse of RenderStruct.
func SnapshotFromStruct(s *structpb.Struct) (alternatives.Snapshot, error) {
	snapshot := make(alternatives.Snapshot, len(s.GetFields()))
	for sourceTag, value := range s.GetFields() {
		list := value.GetListValue()
		if list == nil {
			return nil, fmt.Errorf("row %q is not a list", sourceTag)
		}
		row := make([]alternatives.Entry, 0, len(list.GetValues()))
		for _, item := range list.GetValues() {
			fields := item.GetStructValue().GetFields()
			if fields == nil {
				return nil, fmt.Errorf("row %q holds a non-object entry", sourceTag)
			}
			row = append(row, alternatives.Entry{
				DestinationTag: fields[keyTag].GetStringValue(),
				OwnerPlugin:    fields[keyPlugin].GetStringValue(),
				Priority:       int(fields[keyPriority].GetNumberValue()),
			})
		}
		snapshot[sourceTag] = row
	}
	return snapshot, nil
}
