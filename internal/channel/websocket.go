package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// WSTransport carries messages over a WebSocket connection. A single write
// pump owns all writes to the connection.
type WSTransport struct {
	conn *websocket.Conn
	send chan Message
	recv chan Message
	done chan struct{}
	once sync.Once
	log  *log.Entry
}

// NewWSTransport wraps an established connection and starts its pumps.
func NewWSTransport(conn *websocket.Conn, entry *log.Entry) *WSTransport {
	t := &WSTransport{
		conn: conn,
		send: make(chan Message, pipeBuffer),
		recv: make(chan Message, pipeBuffer),
		done: make(chan struct{}),
		log:  entry,
	}
	go t.writePump()
	go t.readPump()
	return t
}

// Dial connects to a relay listener at url.
func Dial(ctx context.Context, url string, entry *log.Entry) (*WSTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWSTransport(conn, entry), nil
}

func (t *WSTransport) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = t.conn.Close()
	}()

	for {
		select {
		case <-t.done:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = t.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case m := <-t.send:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := t.conn.WriteJSON(m); err != nil {
				t.log.Debugf("websocket write failed: %v", err)
				t.shutdown()
				return
			}
		case <-ticker.C:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.shutdown()
				return
			}
		}
	}
}

func (t *WSTransport) readPump() {
	defer close(t.recv)
	defer t.shutdown()

	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	_ = t.conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		var m Message
		if err := t.conn.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Debugf("websocket read failed: %v", err)
			}
			return
		}
		select {
		case t.recv <- m:
		case <-t.done:
			return
		}
	}
}

func (t *WSTransport) shutdown() {
	t.once.Do(func() { close(t.done) })
}

// Send queues m for the write pump.
func (t *WSTransport) Send(ctx context.Context, m Message) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	select {
	case t.send <- m:
		return nil
	case <-t.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *WSTransport) Recv() <-chan Message { return t.recv }

func (t *WSTransport) Done() <-chan struct{} { return t.done }

// Close stops both pumps and closes the connection.
func (t *WSTransport) Close() error {
	t.shutdown()
	return nil
}
