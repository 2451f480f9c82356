package alternatives

import (
	"testing"

	"github.com/rmacdonaldsmith/tagmesh/pkg/alternatives"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerFromPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		owner   string
		ok      bool
	}{
		{"plain name", "p1", "p1", true},
		{"map with name", map[string]any{"name": "p1"}, "p1", true},
		{"map with plugin", map[string]any{"plugin": "p2"}, "p2", true},
		{"string map", map[string]string{"plugin": "p3"}, "p3", true},
		{"empty string", "", "", false},
		{"nil", nil, "", false},
		{"number", 12, "", false},
		{"map without name", map[string]any{"id": 1}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, ok := OwnerFromPayload(tt.payload)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.owner, owner)
		})
	}
}

func TestLifecycleManager_PluginUnloaded(t *testing.T) {
	subs := newFakeSubscriptions()
	registry := NewInMemoryRegistry(subs, nil)
	lifecycle := NewLifecycleManager(registry, nil)

	require.NoError(t, registry.Register("A", "X", "p1", 10))
	require.NoError(t, registry.Register("A", "Y", "p2", 20))
	require.NoError(t, registry.Register("B", "Z", "p1", 5))

	result := lifecycle.PluginUnloaded("p1")

	assert.Len(t, result.Removed, 2)
	assert.Equal(t, []string{"B"}, result.VacatedTags)
	assert.Equal(t, alternatives.Snapshot{
		"A": {{DestinationTag: "Y", OwnerPlugin: "p2", Priority: 20}},
	}, registry.Snapshot())
	assert.Equal(t, 1, subs.unsubscribes["B"])
	assert.Equal(t, 0, subs.unsubscribes["A"])
}

func TestLifecycleManager_HandleUnload(t *testing.T) {
	registry := NewInMemoryRegistry(nil, nil)
	lifecycle := NewLifecycleManager(registry, nil)
	require.NoError(t, registry.Register("A", "X", "p1", 10))

	// A malformed unload aborts without touching the table
	lifecycle.HandleUnload(bus.NewMessage(TagPluginUnload, nil, "core"))
	lifecycle.HandleUnload(bus.NewMessage(TagPluginUnload, 7, "core"))
	assert.Len(t, registry.Snapshot(), 1)

	lifecycle.HandleUnload(bus.NewMessage(TagPluginUnload, "p1", "core"))
	assert.Empty(t, registry.Snapshot())
}

func TestLifecycleManager_UnknownOwner(t *testing.T) {
	registry := NewInMemoryRegistry(nil, nil)
	lifecycle := NewLifecycleManager(registry, nil)
	require.NoError(t, registry.Register("A", "X", "p1", 10))

	result := lifecycle.PluginUnloaded("nobody")
	assert.Empty(t, result.Removed)
	assert.Empty(t, result.VacatedTags)

	result = lifecycle.PluginUnloaded("")
	assert.Empty(t, result.Removed)
	assert.Len(t, registry.Snapshot(), 1)
}
