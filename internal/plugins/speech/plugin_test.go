package speech

import (
	"context"
	"sync"
	"testing"
	"time"

	inprocess "github.com/rmacdonaldsmith/tagmesh/internal/bus"
	"github.com/rmacdonaldsmith/tagmesh/internal/coreplugin"
	"github.com/rmacdonaldsmith/tagmesh/internal/host"
	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
	"github.com/rmacdonaldsmith/tagmesh/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listener is a plugin that records what arrives on its own name.
type listener struct {
	name  string
	mu    sync.Mutex
	got   []bus.Message
	proxy plugin.Proxy
}

func (l *listener) Name() string { return l.name }

func (l *listener) Initialize(ctx context.Context, proxy plugin.Proxy) error {
	l.proxy = proxy
	return proxy.AddMessageListener(l.name, func(msg bus.Message) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.got = append(l.got, msg)
	})
}

func (l *listener) Unload(ctx context.Context) error { return nil }

func (l *listener) received() []bus.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bus.Message(nil), l.got...)
}

type fixture struct {
	host   *host.Host
	speech *Plugin
	said   *[]bus.Message
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	config := host.NewConfig(func(b bus.Bus) (plugin.Plugin, error) {
		return coreplugin.New(b, coreplugin.Config{}), nil
	}).WithBusConfig(inprocess.Config{Synchronous: true})
	h, err := host.NewHost(config)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })

	var said []bus.Message
	_, err = h.Bus().Subscribe(coreplugin.TagSay, func(msg bus.Message) { said = append(said, msg) })
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, h.Start(ctx))
	p := New()
	require.NoError(t, h.Load(ctx, p))

	return &fixture{host: h, speech: p, said: &said}
}

func (f *fixture) loadListener(t *testing.T, name string) *listener {
	t.Helper()
	l := &listener{name: name}
	require.NoError(t, f.host.Load(context.Background(), l))
	return l
}

func TestSpeech_DeclinesWithoutRequests(t *testing.T) {
	f := newFixture(t)

	f.host.Bus().Publish(bus.NewMessage(TagUserSaid, "hello", "gui"))

	// The decline continues to the core fallback
	require.Len(t, *f.said, 1)
	assert.Equal(t, coreplugin.DefaultNoConversationText, (*f.said)[0].Payload)
}

func TestSpeech_AnswersOldestRequestFirst(t *testing.T) {
	f := newFixture(t)
	first := f.loadListener(t, "first")
	second := f.loadListener(t, "second")

	first.proxy.SendMessage(TagRequestUserSpeech, nil)
	second.proxy.SendMessage(TagRequestUserSpeech, nil)
	assert.Equal(t, 2, f.speech.Pending())

	f.host.Bus().Publish(bus.NewMessage(TagUserSaid, "one", "gui"))
	f.host.Bus().Publish(bus.NewMessage(TagUserSaid, "two", "gui"))

	require.Len(t, first.received(), 1)
	assert.Equal(t, "one", first.received()[0].Payload)
	assert.Equal(t, Name, first.received()[0].Sender)
	require.Len(t, second.received(), 1)
	assert.Equal(t, "two", second.received()[0].Payload)
	assert.Empty(t, *f.said, "answered speech does not reach the fallback")
	assert.Equal(t, 0, f.speech.Pending())

	// Queue drained, so the next utterance falls through
	f.host.Bus().Publish(bus.NewMessage(TagUserSaid, "three", "gui"))
	assert.Len(t, *f.said, 1)
}

func TestSpeech_DiscardDeclines(t *testing.T) {
	f := newFixture(t)
	requester := f.loadListener(t, "requester")
	requester.proxy.SendMessage(TagRequestUserSpeech, nil)

	f.host.Bus().Publish(bus.NewMessage(TagDiscardUserSpeech, "ignored", "gui"))

	assert.Len(t, *f.said, 1)
	assert.Empty(t, requester.received())
	assert.Equal(t, 1, f.speech.Pending(), "discarding does not consume the request")
}

func TestSpeech_UnloadPurgesAlternatives(t *testing.T) {
	f := newFixture(t)
	requester := f.loadListener(t, "requester")
	requester.proxy.SendMessage(TagRequestUserSpeech, nil)

	require.NoError(t, f.host.Unload(context.Background(), Name))
	assert.Equal(t, 0, f.speech.Pending())

	f.host.Bus().Publish(bus.NewMessage(TagUserSaid, "hello", "gui"))
	assert.Len(t, *f.said, 1)
	assert.Empty(t, requester.received())
}

func TestSpeech_CommandsList(t *testing.T) {
	previous := CommandsDelay
	CommandsDelay = time.Millisecond
	defer func() { CommandsDelay = previous }()

	f := newFixture(t)
	var shown []any
	var mu sync.Mutex
	done := make(chan struct{}, 1)
	f.host.Bus().Subscribe(TagShowTechnical, func(msg bus.Message) {
		mu.Lock()
		shown = append(shown, msg.Payload)
		mu.Unlock()
		done <- struct{}{}
	})
	var requestSay []any
	f.host.Bus().Subscribe(TagRequestSay, func(msg bus.Message) { requestSay = append(requestSay, msg.Payload) })

	requester := f.loadListener(t, "requester")
	requester.proxy.SendMessage(TagRequestUserSpeech, []any{"yes", "no"})

	f.host.Bus().Publish(bus.NewMessage(TagCommandsList, nil, "gui"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("commands list was never shown")
	}
	mu.Lock()
	assert.Equal(t, []any{"yes\nno\n"}, shown)
	mu.Unlock()
	assert.Empty(t, requestSay)
	assert.Equal(t, 1, f.speech.Pending())
}

func TestSpeech_CommandsListWithoutCommands(t *testing.T) {
	f := newFixture(t)
	var requestSay []any
	f.host.Bus().Subscribe(TagRequestSay, func(msg bus.Message) { requestSay = append(requestSay, msg.Payload) })

	requester := f.loadListener(t, "requester")
	requester.proxy.SendMessage(TagRequestUserSpeech, nil)
	f.host.Bus().Publish(bus.NewMessage(TagCommandsList, nil, "gui"))

	assert.Equal(t, []any{NoPhrase}, requestSay)
}

func TestFormatCommands(t *testing.T) {
	assert.Equal(t, "a\nb\n", formatCommands([]string{"a", "b"}))
	assert.Equal(t, "1\ntwo\n", formatCommands([]any{1, "two"}))
	assert.Equal(t, "plain", formatCommands("plain"))
}
