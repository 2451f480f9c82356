package alternatives

import (
	"testing"

	inprocess "github.com/rmacdonaldsmith/tagmesh/internal/bus"
	"github.com/rmacdonaldsmith/tagmesh/pkg/alternatives"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// busListener binds handlers straight onto the bus.
type busListener struct {
	bus bus.Bus
}

func (l busListener) AddMessageListener(tag string, handler bus.Handler) error {
	_, err := l.bus.Subscribe(tag, handler)
	return err
}

func newTestService(t *testing.T) (*Service, *inprocess.InProcessBus) {
	t.Helper()

	b, err := inprocess.NewInProcessBus(inprocess.Config{Synchronous: true}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	s, err := NewService(b, Config{Name: "core"})
	require.NoError(t, err)
	require.NoError(t, s.Bind(busListener{bus: b}))
	t.Cleanup(func() { s.Close() })
	return s, b
}

func collect(t *testing.T, b bus.Bus, tag string) *inbox {
	t.Helper()
	box := &inbox{}
	_, err := b.Subscribe(tag, box.handle)
	require.NoError(t, err)
	return box
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, Config{Name: "core"})
	assert.Error(t, err)

	b, err := inprocess.NewInProcessBus(inprocess.Config{Synchronous: true}, nil, nil)
	require.NoError(t, err)
	defer b.Close()

	_, err = NewService(b, Config{})
	assert.Error(t, err)
}

func TestService_RegisterUsesSenderAsOwner(t *testing.T) {
	s, b := newTestService(t)

	b.Publish(bus.NewMessage(TagRegisterAlternative, map[string]any{
		"srcTag":   "A",
		"dstTag":   "X",
		"priority": 10,
	}, "p1"))
	b.Publish(bus.NewMessage(TagRegisterAlternative, Registration{
		SourceTag:      "A",
		DestinationTag: "Y",
		Priority:       "20",
	}, "p2"))

	assert.Equal(t, alternatives.Snapshot{
		"A": {
			{DestinationTag: "Y", OwnerPlugin: "p2", Priority: 20},
			{DestinationTag: "X", OwnerPlugin: "p1", Priority: 10},
		},
	}, s.Snapshot())
}

func TestService_RegisterMany(t *testing.T) {
	s, b := newTestService(t)
	errors := collect(t, b, TagError)

	b.Publish(bus.NewMessage(TagRegisterAlternatives, []any{
		map[string]any{"srcTag": "A", "dstTag": "X", "priority": 1},
		map[string]any{"srcTag": "B", "dstTag": "Y", "priority": "bad"},
		map[string]any{"srcTag": "C", "dstTag": "Z", "priority": 3.9},
	}, "p1"))

	snapshot := s.Snapshot()
	assert.Len(t, snapshot, 2)
	assert.Equal(t, 3, snapshot["C"][0].Priority)
	assert.Len(t, errors.messages(), 1, "only the bad item is reported")
}

func TestService_ErrorReports(t *testing.T) {
	_, b := newTestService(t)
	errors := collect(t, b, TagError)

	b.Publish(bus.NewMessage(TagRegisterAlternative, map[string]any{
		"srcTag": "A", "dstTag": "X", "priority": "abc",
	}, "p1"))
	b.Publish(bus.NewMessage(TagRegisterAlternative, 42, "p1"))
	b.Publish(bus.NewMessage(TagRegisterAlternatives, "not a list", "p1"))

	reports := errors.messages()
	require.Len(t, reports, 3)

	first := reports[0].Payload.(map[string]any)
	assert.Equal(t, "InvalidPriority", first["class"])
	assert.Equal(t, "p1", first["plugin"])
	assert.Equal(t, TagRegisterAlternative, first["tag"])
	assert.Equal(t, "core", reports[0].Sender)

	assert.Equal(t, "MalformedRegistration", reports[1].Payload.(map[string]any)["class"])
	assert.Equal(t, "MalformedRegistration", reports[2].Payload.(map[string]any)["class"])
}

func TestService_Unregister(t *testing.T) {
	s, b := newTestService(t)

	b.Publish(bus.NewMessage(TagRegisterAlternative, map[string]any{"srcTag": "A", "dstTag": "X", "priority": 1}, "p1"))
	// Another plugin cannot remove p1's entry
	b.Publish(bus.NewMessage(TagUnregisterAlternative, map[string]any{"srcTag": "A", "dstTag": "X"}, "p2"))
	assert.Len(t, s.Snapshot()["A"], 1)

	b.Publish(bus.NewMessage(TagUnregisterAlternative, map[string]any{"srcTag": "A", "dstTag": "X"}, "p1"))
	assert.Empty(t, s.Snapshot())
	assert.Equal(t, 0, b.SubscriberCount("A"))
}

func TestService_QueryRepliesToSender(t *testing.T) {
	_, b := newTestService(t)
	replies := collect(t, b, "asker")

	b.Publish(bus.NewMessage(TagRegisterAlternative, map[string]any{"srcTag": "A", "dstTag": "X", "priority": 5}, "p1"))
	b.Publish(bus.NewMessage(TagQueryAlternatives, nil, "asker"))

	got := replies.messages()
	require.Len(t, got, 1)
	assert.Equal(t, "core", got[0].Sender)
	assert.Equal(t, map[string]any{
		"A": []any{map[string]any{"tag": "X", "plugin": "p1", "priority": 5}},
	}, got[0].Payload)
}

func TestService_PluginUnloadPurges(t *testing.T) {
	s, b := newTestService(t)

	b.Publish(bus.NewMessage(TagRegisterAlternative, map[string]any{"srcTag": "A", "dstTag": "X", "priority": 10}, "p1"))
	b.Publish(bus.NewMessage(TagRegisterAlternative, map[string]any{"srcTag": "A", "dstTag": "Y", "priority": 20}, "p2"))

	b.Publish(bus.NewMessage(TagPluginUnload, "p2", "core"))
	assert.Equal(t, []alternatives.Entry{{DestinationTag: "X", OwnerPlugin: "p1", Priority: 10}}, s.Snapshot()["A"])

	b.Publish(bus.NewMessage(TagPluginUnload, nil, "core"))
	assert.Len(t, s.Snapshot(), 1)
}

func TestService_DeclineChain(t *testing.T) {
	_, b := newTestService(t)
	fallback := collect(t, b, "fallback:say")

	// The speech handler declines everything it receives.
	declined := 0
	b.Subscribe("speech:answer", func(msg bus.Message) {
		declined++
		b.Publish(msg.Forward(alternatives.ContinuationTag("user-said", "speech:answer")))
	})

	b.Publish(bus.NewMessage(TagRegisterAlternative, map[string]any{"srcTag": "user-said", "dstTag": "fallback:say", "priority": 1}, "core"))
	b.Publish(bus.NewMessage(TagRegisterAlternative, map[string]any{"srcTag": "user-said", "dstTag": "speech:answer", "priority": 2000}, "speech"))

	b.Publish(bus.NewMessage("user-said", map[string]any{"value": "hello"}, "recognizer"))

	assert.Equal(t, 1, declined)
	got := fallback.messages()
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"value": "hello"}, got[0].Payload)
	assert.Equal(t, "recognizer", got[0].Sender)
}

func TestDecodeRegistration(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    Registration
		wantErr bool
	}{
		{"map", map[string]any{"srcTag": "A", "dstTag": "B", "priority": 3}, Registration{"A", "B", 3}, false},
		{"aliases", map[string]any{"sourceTag": "A", "destinationTag": "B"}, Registration{"A", "B", nil}, false},
		{"string map", map[string]string{"srcTag": "A", "dstTag": "B", "priority": "7"}, Registration{"A", "B", "7"}, false},
		{"value", Registration{"A", "B", 1}, Registration{"A", "B", 1}, false},
		{"pointer", &Registration{"A", "B", 1}, Registration{"A", "B", 1}, false},
		{"nil pointer", (*Registration)(nil), Registration{}, true},
		{"number", 5, Registration{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRegistration(tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedRegistration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
