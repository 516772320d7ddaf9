package relay

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxdock/inboxdock/internal/appctx"
	"github.com/inboxdock/inboxdock/internal/channel"
	"github.com/inboxdock/inboxdock/internal/config"
	"github.com/inboxdock/inboxdock/internal/dispatch"
)

func newApp(t *testing.T) (*appctx.Context, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.TraceLevel)
	entry := log.NewEntry(logger)

	loop := dispatch.New(entry)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})

	return &appctx.Context{
		AppName: "inboxdock",
		Log:     entry,
		Loop:    loop,
		Config:  config.NewStore("", nil),
	}, hook
}

func send(t *testing.T, tr channel.Transport, m channel.Message) {
	t.Helper()
	require.NoError(t, tr.Send(context.Background(), m))
}

func reply(t *testing.T, id uint64, count int) channel.Message {
	t.Helper()
	m, err := channel.New(channel.UnreadCountReply, id, channel.UnreadCount{Count: count})
	require.NoError(t, err)
	return m
}

func TestUnrecognizedChannelIsDropped(t *testing.T) {
	app, hook := newApp(t)
	r := New(app)

	var mu sync.Mutex
	var got []channel.Message
	for _, name := range []channel.Name{channel.ContentChanged, channel.SessionEstablished, channel.UnreadCountReply} {
		r.Subscribe(name, func(m channel.Message) {
			mu.Lock()
			got = append(got, m)
			mu.Unlock()
		})
	}

	hostEnd, contentEnd := channel.Pipe()
	defer contentEnd.Close()
	r.Attach(hostEnd)

	send(t, contentEnd, channel.Message{Channel: "bogus-channel", Direction: channel.ContentToHost})
	// A host command travelling the wrong way is just as unrecognized.
	send(t, contentEnd, channel.Message{Channel: channel.QueryUnreadCount, Direction: channel.HostToContent})
	send(t, contentEnd, reply(t, 1, 2))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, app.Loop.Call(context.Background(), func() {}))

	mu.Lock()
	assert.Equal(t, channel.UnreadCountReply, got[0].Channel)
	mu.Unlock()

	var dropped []*log.Entry
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, "unrecognized channel") {
			dropped = append(dropped, e)
		}
	}
	require.Len(t, dropped, 2)
	assert.Equal(t, log.DebugLevel, dropped[0].Level)
	assert.Contains(t, dropped[0].Message, "bogus-channel")
	assert.True(t, r.Attached())
}

func TestForwardsInArrivalOrder(t *testing.T) {
	app, _ := newApp(t)
	r := New(app)

	var ids []uint64
	done := make(chan struct{})
	r.Subscribe(channel.UnreadCountReply, func(m channel.Message) {
		ids = append(ids, m.RequestID)
		if len(ids) == 50 {
			close(done)
		}
	})

	hostEnd, contentEnd := channel.Pipe()
	defer contentEnd.Close()
	r.Attach(hostEnd)

	for i := 1; i <= 50; i++ {
		send(t, contentEnd, reply(t, uint64(i), i))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replies not forwarded")
	}
	for i, id := range ids {
		assert.Equal(t, uint64(i+1), id)
	}
}

func TestReattachKeepsHostBindings(t *testing.T) {
	app, _ := newApp(t)
	r := New(app)

	received := make(chan uint64, 4)
	r.Subscribe(channel.UnreadCountReply, func(m channel.Message) { received <- m.RequestID })

	firstHost, firstContent := channel.Pipe()
	r.Attach(firstHost)
	send(t, firstContent, reply(t, 1, 1))
	assert.Equal(t, uint64(1), <-received)

	secondHost, secondContent := channel.Pipe()
	defer secondContent.Close()
	r.Attach(secondHost)

	select {
	case <-firstContent.Done():
	case <-time.After(time.Second):
		t.Fatal("previous transport not closed")
	}

	send(t, secondContent, reply(t, 2, 1))
	select {
	case id := <-received:
		assert.Equal(t, uint64(2), id)
	case <-time.After(time.Second):
		t.Fatal("reply after reattach not forwarded")
	}
}

func TestReplacedTransportMessagesAreDropped(t *testing.T) {
	app, _ := newApp(t)
	r := New(app)

	received := make(chan uint64, 4)
	r.Subscribe(channel.UnreadCountReply, func(m channel.Message) { received <- m.RequestID })

	// Hold the loop so the first reply is still queued when the transport
	// is replaced.
	gate := make(chan struct{})
	app.Loop.Post(func() { <-gate })

	firstHost, firstContent := channel.Pipe()
	r.Attach(firstHost)
	send(t, firstContent, reply(t, 1, 1))
	time.Sleep(50 * time.Millisecond)

	secondHost, secondContent := channel.Pipe()
	defer secondContent.Close()
	r.Attach(secondHost)
	close(gate)

	send(t, secondContent, reply(t, 2, 1))
	select {
	case id := <-received:
		assert.Equal(t, uint64(2), id)
	case <-time.After(time.Second):
		t.Fatal("reply after reattach not forwarded")
	}
	select {
	case id := <-received:
		t.Fatalf("unexpected reply %d", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSend(t *testing.T) {
	app, _ := newApp(t)
	r := New(app)

	query, err := channel.New(channel.QueryUnreadCount, 9, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Send(context.Background(), query), ErrDetached)

	hostEnd, contentEnd := channel.Pipe()
	defer contentEnd.Close()
	r.Attach(hostEnd)

	assert.ErrorIs(t, r.Send(context.Background(), reply(t, 1, 1)), channel.ErrUnknownChannel)
	require.NoError(t, r.Send(context.Background(), query))

	select {
	case m := <-contentEnd.Recv():
		assert.Equal(t, channel.QueryUnreadCount, m.Channel)
		assert.Equal(t, uint64(9), m.RequestID)
	case <-time.After(time.Second):
		t.Fatal("command not forwarded")
	}

	require.NoError(t, r.Close())
	assert.False(t, r.Attached())
}

func TestWillNavigate(t *testing.T) {
	app, hook := newApp(t)
	var opened []string
	r := New(app, WithOrigin("maildir://local"), WithOpener(func(target string) error {
		opened = append(opened, target)
		return nil
	}))

	tests := []struct {
		target string
		allow  bool
	}{
		{"maildir://local/inbox", true},
		{"MAILDIR://LOCAL/", true},
		{"/inbox/42", true},
		{"https://example.com/newsletter", false},
		{"mailto:someone@example.com", false},
		{"%zz", false},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.allow, r.WillNavigate(tt.target))
		})
	}

	assert.Equal(t, []string{"https://example.com/newsletter", "mailto:someone@example.com"}, opened)
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, "intercepted") {
			assert.Equal(t, log.DebugLevel, e.Level)
		}
	}
}

func TestWebSocketAgentAttaches(t *testing.T) {
	app, _ := newApp(t)
	r := New(app)

	sessions := make(chan string, 1)
	r.Subscribe(channel.SessionEstablished, func(m channel.Message) {
		var s channel.Session
		if m.Decode(&s) == nil {
			sessions <- s.Address
		}
	})

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	agentEnd, err := channel.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), app.Log)
	require.NoError(t, err)
	defer agentEnd.Close()

	m, err := channel.New(channel.SessionEstablished, 0, channel.Session{Address: "me@example.com"})
	require.NoError(t, err)
	send(t, agentEnd, m)

	select {
	case address := <-sessions:
		assert.Equal(t, "me@example.com", address)
	case <-time.After(2 * time.Second):
		t.Fatal("session not forwarded from websocket agent")
	}
}
