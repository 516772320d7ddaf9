package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionOf(t *testing.T) {
	tests := []struct {
		name  Name
		want  Direction
		known bool
	}{
		{ContentChanged, ContentToHost, true},
		{SessionEstablished, ContentToHost, true},
		{UnreadCountReply, ContentToHost, true},
		{QueryUnreadCount, HostToContent, true},
		{OpenDevTools, HostToContent, true},
		{"bogus-channel", "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			got, ok := DirectionOf(tt.name)
			assert.Equal(t, tt.known, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.False(t, Accepts(QueryUnreadCount, ContentToHost))
	assert.True(t, Accepts(UnreadCountReply, ContentToHost))
}

func TestNewRejectsUnknownChannel(t *testing.T) {
	_, err := New("bogus-channel", 0, nil)
	require.ErrorIs(t, err, ErrUnknownChannel)
}

func TestMessagePayload(t *testing.T) {
	msg, err := New(UnreadCountReply, 7, UnreadCount{Count: 5})
	require.NoError(t, err)
	assert.Equal(t, ContentToHost, msg.Direction)
	assert.Equal(t, "unread-count-reply#7", msg.String())

	var reply UnreadCount
	require.NoError(t, msg.Decode(&reply))
	assert.Equal(t, 5, reply.Count)

	empty, err := New(ContentChanged, 0, nil)
	require.NoError(t, err)
	assert.Error(t, empty.Decode(&reply))
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	var got []string

	unsubA := bus.Subscribe(ContentChanged, func(Message) { got = append(got, "a") })
	bus.Subscribe(ContentChanged, func(Message) { got = append(got, "b") })
	assert.Equal(t, 2, bus.Len())

	assert.True(t, bus.Publish(Message{Channel: ContentChanged}))
	assert.Equal(t, []string{"a", "b"}, got)

	unsubA()
	unsubA()
	got = nil
	bus.Publish(Message{Channel: ContentChanged})
	assert.Equal(t, []string{"b"}, got)
	assert.False(t, bus.Publish(Message{Channel: SessionEstablished}))
}

func TestBindingsRelease(t *testing.T) {
	bus := NewBus()
	var bindings Bindings
	bindings.Add(bus.Subscribe(ContentChanged, func(Message) {}))
	bindings.Add(bus.Subscribe(UnreadCountReply, func(Message) {}))
	require.Equal(t, 2, bus.Len())

	bindings.Release()
	assert.Equal(t, 0, bus.Len())
	bindings.Release()
}

func TestPipePreservesOrder(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	ctx := context.Background()
	for i := 1; i <= 20; i++ {
		msg, err := New(UnreadCountReply, uint64(i), UnreadCount{Count: i})
		require.NoError(t, err)
		require.NoError(t, a.Send(ctx, msg))
	}

	for i := 1; i <= 20; i++ {
		select {
		case msg := <-b.Recv():
			assert.Equal(t, uint64(i), msg.RequestID)
		case <-time.After(time.Second):
			t.Fatalf("message %d not delivered", i)
		}
	}
}

func TestPipeDoesNotShareMemory(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	msg, err := New(UnreadCountReply, 1, UnreadCount{Count: 3})
	require.NoError(t, err)
	require.NoError(t, a.Send(context.Background(), msg))
	msg.Payload[0] = 'x'

	got := <-b.Recv()
	var reply UnreadCount
	require.NoError(t, got.Decode(&reply))
	assert.Equal(t, 3, reply.Count)
}

func TestPipeClose(t *testing.T) {
	a, b := Pipe()
	require.NoError(t, b.Close())

	err := a.Send(context.Background(), Message{Channel: ContentChanged})
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case _, ok := <-a.Recv():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("recv channel not closed")
	}
}

func TestWebSocketTransport(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverSide := make(chan *WSTransport, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- NewWSTransport(conn, log.NewEntry(log.StandardLogger()))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(context.Background(), url, log.NewEntry(log.StandardLogger()))
	require.NoError(t, err)
	defer client.Close()

	server := <-serverSide
	defer server.Close()

	msg, err := New(SessionEstablished, 0, Session{Address: "me@example.com"})
	require.NoError(t, err)
	require.NoError(t, client.Send(context.Background(), msg))

	select {
	case got := <-server.Recv():
		var session Session
		require.NoError(t, got.Decode(&session))
		assert.Equal(t, "me@example.com", session.Address)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered over websocket")
	}

	require.NoError(t, client.Close())
	select {
	case <-server.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("server side did not observe close")
	}
}
