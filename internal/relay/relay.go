// Package relay is the host-side endpoint of the isolation boundary. It
// forwards content events to host subscribers, forwards host commands to the
// content agent, and keeps outbound navigation out of the content surface.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"

	"github.com/inboxdock/inboxdock/internal/appctx"
	"github.com/inboxdock/inboxdock/internal/channel"
	"github.com/inboxdock/inboxdock/internal/dispatch"
)

// ErrDetached is returned by Send when no content surface is attached.
var ErrDetached = errors.New("no content surface attached")

// Opener hands a URL to the operating system's default handler.
type Opener func(target string) error

// Relay forwards messages between the attached content transport and the
// host. Host handlers always run on the dispatch loop.
type Relay struct {
	loop   *dispatch.Loop
	log    *log.Entry
	bus    *channel.Bus
	origin *url.URL
	open   Opener

	mu       sync.Mutex
	current  channel.Transport
	stop     context.CancelFunc
	attaches int
}

// Option configures a Relay.
type Option func(*Relay)

// WithOrigin sets the address space that belongs to the content surface.
func WithOrigin(origin string) Option {
	return func(r *Relay) {
		if u, err := url.Parse(origin); err == nil {
			r.origin = u
		}
	}
}

// WithOpener replaces the OS handler used for intercepted navigation.
func WithOpener(o Opener) Option {
	return func(r *Relay) { r.open = o }
}

// New creates a detached relay.
func New(app *appctx.Context, opts ...Option) *Relay {
	r := &Relay{
		loop: app.Loop,
		log:  app.Logger("relay"),
		bus:  channel.NewBus(),
		open: open.Run,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe binds a host handler to a content-to-host channel.
func (r *Relay) Subscribe(name channel.Name, h channel.Handler) func() {
	return r.bus.Subscribe(name, h)
}

// Attach binds the relay to a new content transport, replacing and closing
// the previous one. Host subscriptions are untouched.
func (r *Relay) Attach(t channel.Transport) {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	prev, prevStop := r.current, r.stop
	r.current = t
	r.stop = cancel
	r.attaches++
	n := r.attaches
	r.mu.Unlock()

	if prevStop != nil {
		prevStop()
		_ = prev.Close()
		r.log.Debug("content transport replaced")
	}

	r.log.Debugf("content transport attached (#%d)", n)
	go r.forward(ctx, t)
}

// Attached reports whether a live transport is bound.
func (r *Relay) Attached() bool {
	r.mu.Lock()
	t := r.current
	r.mu.Unlock()
	if t == nil {
		return false
	}
	select {
	case <-t.Done():
		return false
	default:
		return true
	}
}

// forward reads one transport in arrival order and posts each accepted
// message to the loop. Once the transport is replaced or the relay closed,
// anything it still delivers belongs to a dead session and is dropped, even
// if it was already queued on the loop.
func (r *Relay) forward(ctx context.Context, t channel.Transport) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-t.Recv():
			if !ok {
				r.detach(t)
				return
			}
			if !channel.Accepts(m.Channel, channel.ContentToHost) {
				r.log.Debugf("dropping message on unrecognized channel %q", m.Channel)
				continue
			}
			r.loop.Post(func() {
				if ctx.Err() != nil {
					r.log.Tracef("dropping %s from a replaced transport", m)
					return
				}
				if !r.bus.Publish(m) {
					r.log.Tracef("no host subscriber for %s", m)
				}
			})
		}
	}
}

func (r *Relay) detach(t channel.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == t {
		r.current = nil
		r.stop = nil
		r.log.Debug("content transport closed")
	}
}

// Send forwards a host command to the content agent.
func (r *Relay) Send(ctx context.Context, m channel.Message) error {
	if !channel.Accepts(m.Channel, channel.HostToContent) {
		r.log.Debugf("dropping command on unrecognized channel %q", m.Channel)
		return fmt.Errorf("%w: %q", channel.ErrUnknownChannel, m.Channel)
	}

	r.mu.Lock()
	t := r.current
	r.mu.Unlock()
	if t == nil {
		return ErrDetached
	}
	return t.Send(ctx, m)
}

// WillNavigate applies the navigation policy to target. It returns true when
// the content surface may navigate there itself; any other address is opened
// by the OS handler instead.
func (r *Relay) WillNavigate(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		r.log.Debugf("blocked navigation to malformed address %q: %v", target, err)
		return false
	}
	if r.sameOrigin(u) {
		return true
	}

	r.log.Debugf("navigation to %s intercepted, opening externally", target)
	if r.open != nil {
		if err := r.open(target); err != nil {
			r.log.Warnf("failed to open %s: %v", target, err)
		}
	}
	return false
}

func (r *Relay) sameOrigin(u *url.URL) bool {
	if r.origin == nil {
		return false
	}
	if u.Scheme == "" && u.Host == "" {
		// Relative addresses stay inside the surface.
		return true
	}
	return strings.EqualFold(u.Scheme, r.origin.Scheme) && strings.EqualFold(u.Host, r.origin.Host)
}

// Close detaches the current transport.
func (r *Relay) Close() error {
	r.mu.Lock()
	t, stop := r.current, r.stop
	r.current, r.stop = nil, nil
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
	if t != nil {
		return t.Close()
	}
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Agents are local processes, not browsers.
		return r.Header.Get("Origin") == ""
	},
}

// Handler accepts WebSocket connections from out-of-process agents. Each
// connection becomes the attached transport.
func (r *Relay) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			r.log.Debugf("websocket upgrade failed: %v", err)
			return
		}
		r.Attach(channel.NewWSTransport(conn, r.log))
	})
}
