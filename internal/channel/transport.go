package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrClosed is returned when sending on a closed transport.
var ErrClosed = errors.New("transport closed")

// Transport is one end of a bidirectional message link across the isolation
// boundary. Recv is closed once the link is torn down.
type Transport interface {
	Send(ctx context.Context, m Message) error
	Recv() <-chan Message
	Done() <-chan struct{}
	Close() error
}

const pipeBuffer = 64

// Pipe returns two connected in-process transports. Messages are encoded on
// send and decoded on the receiving side so the two ends never share memory.
// Closing either end drops whatever is still buffered; a reload starts a new
// session, so nothing from the old one is worth delivering.
func Pipe() (Transport, Transport) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	link := &pipeLink{done: make(chan struct{})}

	a := newPipeEnd(link, ab, ba)
	b := newPipeEnd(link, ba, ab)
	return a, b
}

type pipeLink struct {
	once sync.Once
	done chan struct{}
}

func (l *pipeLink) close() {
	l.once.Do(func() { close(l.done) })
}

type pipeEnd struct {
	link *pipeLink
	out  chan<- []byte
	in   <-chan []byte
	recv chan Message
}

func newPipeEnd(link *pipeLink, out chan<- []byte, in <-chan []byte) *pipeEnd {
	p := &pipeEnd{
		link: link,
		out:  out,
		in:   in,
		recv: make(chan Message, pipeBuffer),
	}
	go p.readLoop()
	return p
}

func (p *pipeEnd) readLoop() {
	defer close(p.recv)
	for {
		select {
		case <-p.link.done:
			return
		case data := <-p.in:
			var m Message
			if err := json.Unmarshal(data, &m); err != nil {
				continue
			}
			select {
			case p.recv <- m:
			case <-p.link.done:
				return
			}
		}
	}
}

func (p *pipeEnd) Send(ctx context.Context, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	select {
	case <-p.link.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.link.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Recv() <-chan Message { return p.recv }

func (p *pipeEnd) Done() <-chan struct{} { return p.link.done }

func (p *pipeEnd) Close() error {
	p.link.close()
	return nil
}
