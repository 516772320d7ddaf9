package content

import (
	"context"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxdock/inboxdock/internal/channel"
)

type fakeApp struct {
	loaded  chan struct{}
	address string

	mu        sync.Mutex
	count     int
	observers map[EventKind]map[int]func()
	next      int
	closed    bool
}

func newFakeApp(address string, count int) *fakeApp {
	return &fakeApp{
		loaded:    make(chan struct{}),
		address:   address,
		count:     count,
		observers: make(map[EventKind]map[int]func()),
	}
}

func (f *fakeApp) Start(context.Context) error { return nil }

func (f *fakeApp) Loaded() <-chan struct{} { return f.loaded }

func (f *fakeApp) Observe(kind EventKind, fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := f.next
	if f.observers[kind] == nil {
		f.observers[kind] = make(map[int]func())
	}
	f.observers[kind][id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.observers[kind], id)
	}
}

func (f *fakeApp) UserAddress() (string, bool) { return f.address, f.address != "" }

func (f *fakeApp) UnreadInboxCount() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, nil
}

func (f *fakeApp) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeApp) fire(kind EventKind) {
	f.mu.Lock()
	var fns []func()
	for _, fn := range f.observers[kind] {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeApp) bindings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, bound := range f.observers {
		n += len(bound)
	}
	return n
}

type harness struct {
	agent  *Agent
	host   channel.Transport
	states chan State
	cancel context.CancelFunc
	done   chan error
}

func startAgent(t *testing.T, app *fakeApp, policy CoalescePolicy) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	states := make(chan State, 16)
	agent := NewAgent(func() (App, error) { return app, nil },
		WithPolicy(policy),
		WithLogger(log.NewEntry(logger)),
		WithStateHook(func(s State) { states <- s }),
	)
	return runAgent(t, agent, states)
}

func runAgent(t *testing.T, agent *Agent, states chan State) *harness {
	t.Helper()
	hostEnd, contentEnd := channel.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx, contentEnd) }()

	h := &harness{agent: agent, host: hostEnd, states: states, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		hostEnd.Close()
	})
	return h
}

func (h *harness) expect(t *testing.T, name channel.Name) channel.Message {
	t.Helper()
	select {
	case m := <-h.host.Recv():
		require.Equal(t, name, m.Channel)
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("expected %s", name)
		return channel.Message{}
	}
}

func (h *harness) expectNothing(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case m := <-h.host.Recv():
		t.Fatalf("unexpected message %s", m)
	case <-time.After(d):
	}
}

func (h *harness) query(t *testing.T, id uint64) {
	t.Helper()
	msg, err := channel.New(channel.QueryUnreadCount, id, nil)
	require.NoError(t, err)
	require.NoError(t, h.host.Send(context.Background(), msg))
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-h.states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("state %s not reached", want)
		}
	}
}

func TestFourEventsCoalesceIntoOneSignal(t *testing.T) {
	app := newFakeApp("me@example.com", 3)
	close(app.loaded)
	h := startAgent(t, app, DefaultCoalescePolicy)

	session := h.expect(t, channel.SessionEstablished)
	var payload channel.Session
	require.NoError(t, session.Decode(&payload))
	assert.Equal(t, "me@example.com", payload.Address)
	assert.NotEmpty(t, payload.SessionID)

	app.fire(ItemAdded)
	app.fire(MarkedRead)
	app.fire(MarkedUnread)
	app.fire(ItemDeleted)

	h.expect(t, channel.ContentChanged)
	h.expectNothing(t, 4*DefaultCoalescePolicy.Window)

	// Still pending: more events are absorbed until a query consumes it.
	app.fire(ItemAdded)
	h.expectNothing(t, 4*DefaultCoalescePolicy.Window)

	h.query(t, 1)
	reply := h.expect(t, channel.UnreadCountReply)
	assert.Equal(t, uint64(1), reply.RequestID)
	var count channel.UnreadCount
	require.NoError(t, reply.Decode(&count))
	assert.Equal(t, 3, count.Count)

	app.fire(MarkedRead)
	h.expect(t, channel.ContentChanged)
}

func TestQueryBeforeObservingIsDropped(t *testing.T) {
	app := newFakeApp("", 1)
	h := startAgent(t, app, CoalescePolicy{Triggers: DefaultCoalescePolicy.Triggers})

	h.waitState(t, AwaitingReady)
	h.query(t, 1)
	h.expectNothing(t, 100*time.Millisecond)

	close(app.loaded)
	session := h.expect(t, channel.SessionEstablished)
	var payload channel.Session
	require.NoError(t, session.Decode(&payload))
	assert.Equal(t, channel.UnknownAddress, payload.Address)
	h.expectNothing(t, 100*time.Millisecond)

	h.query(t, 2)
	reply := h.expect(t, channel.UnreadCountReply)
	assert.Equal(t, uint64(2), reply.RequestID)
}

func TestSessionReloadStartsFresh(t *testing.T) {
	first := newFakeApp("me@example.com", 0)
	second := newFakeApp("me@example.com", 0)
	close(first.loaded)
	close(second.loaded)
	apps := []*fakeApp{first, second}

	states := make(chan State, 32)
	logger, _ := test.NewNullLogger()
	agent := NewAgent(func() (App, error) {
		app := apps[0]
		apps = apps[1:]
		return app, nil
	}, WithLogger(log.NewEntry(logger)), WithStateHook(func(s State) { states <- s }))

	h1 := runAgent(t, agent, states)
	s1 := h1.expect(t, channel.SessionEstablished)
	assert.Equal(t, Observing, agent.State())
	assert.Equal(t, 4, first.bindings())

	// A second Run while observing is refused.
	_, spare := channel.Pipe()
	assert.ErrorIs(t, agent.Run(context.Background(), spare), ErrSessionActive)

	h1.cancel()
	require.NoError(t, <-h1.done)
	assert.Equal(t, Disposed, agent.State())
	assert.Equal(t, 0, first.bindings(), "bindings released on dispose")
	assert.True(t, first.closed)

	h2 := runAgent(t, agent, states)
	s2 := h2.expect(t, channel.SessionEstablished)

	var p1, p2 channel.Session
	require.NoError(t, s1.Decode(&p1))
	require.NoError(t, s2.Decode(&p2))
	assert.NotEqual(t, p1.SessionID, p2.SessionID)
}

func TestTransportCloseDisposes(t *testing.T) {
	app := newFakeApp("", 0)
	close(app.loaded)
	h := startAgent(t, app, DefaultCoalescePolicy)
	h.expect(t, channel.SessionEstablished)

	require.NoError(t, h.host.Close())
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
	assert.Equal(t, Disposed, h.agent.State())
}

func TestCoalescer(t *testing.T) {
	c := newCoalescer(CoalescePolicy{Window: time.Millisecond, MaxPending: time.Minute})
	now := time.Now()

	assert.True(t, c.trigger(now))
	assert.False(t, c.trigger(now), "absorbed while armed")
	assert.True(t, c.fire(now))
	assert.False(t, c.fire(now))

	assert.False(t, c.trigger(now), "absorbed while pending")
	c.consume()
	assert.True(t, c.trigger(now))
	assert.True(t, c.fire(now))

	assert.True(t, c.trigger(now.Add(2*time.Minute)), "stale pending signal is dropped")
	assert.Equal(t, 2, c.absorbed)
}
