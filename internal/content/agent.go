package content

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/inboxdock/inboxdock/internal/channel"
)

// State is the lifecycle state of an observer session.
type State int

// Observer session states.
const (
	Uninitialized State = iota
	Bootstrapping
	AwaitingReady
	Observing
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Bootstrapping:
		return "bootstrapping"
	case AwaitingReady:
		return "awaiting-ready"
	case Observing:
		return "observing"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrSessionActive is returned when Run is called while a session is live.
var ErrSessionActive = errors.New("observer session already active")

const sendTimeout = 5 * time.Second

// Agent observes the embedded application and speaks the channel protocol.
// It keeps no state across sessions.
type Agent struct {
	factory Factory
	policy  CoalescePolicy
	log     *log.Entry
	hook    func(State)

	mu        sync.Mutex
	state     State
	sessionID string
}

// Option configures an Agent.
type Option func(*Agent)

// WithPolicy replaces the default coalescing policy.
func WithPolicy(p CoalescePolicy) Option {
	return func(a *Agent) { a.policy = p }
}

// WithLogger sets the agent logger.
func WithLogger(entry *log.Entry) Option {
	return func(a *Agent) { a.log = entry }
}

// WithStateHook registers fn to observe every state transition.
func WithStateHook(fn func(State)) Option {
	return func(a *Agent) { a.hook = fn }
}

// NewAgent creates an agent that builds a fresh App per session.
func NewAgent(factory Factory, opts ...Option) *Agent {
	a := &Agent{
		factory: factory,
		policy:  DefaultCoalescePolicy,
		log:     log.WithField("component", "content-agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current session state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	a.transition(s)
}

func (a *Agent) transition(s State) {
	a.log.Debugf("observer session %s", s)
	if a.hook != nil {
		a.hook(s)
	}
}

// Run runs one observer session over t. It returns once the session is
// disposed, which happens when ctx is cancelled or the transport closes.
// Run may be called again afterwards to bootstrap a new session.
func (a *Agent) Run(ctx context.Context, t channel.Transport) error {
	a.mu.Lock()
	if a.state != Uninitialized && a.state != Disposed {
		a.mu.Unlock()
		return ErrSessionActive
	}
	a.sessionID = uuid.NewString()
	a.state = Bootstrapping
	a.mu.Unlock()
	a.transition(Bootstrapping)

	s := &session{
		agent:     a,
		transport: t,
		coalescer: newCoalescer(a.policy),
		triggers:  make(chan EventKind, 64),
		log:       a.log,
	}
	defer a.setState(Disposed)

	app, err := a.factory()
	if err != nil {
		return fmt.Errorf("create content app: %w", err)
	}
	defer app.Close()
	s.app = app
	defer s.bindings.Release()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start content app: %w", err)
	}

	a.setState(AwaitingReady)
	if !s.awaitReady(ctx) {
		return nil
	}

	a.setState(Observing)
	s.observe(ctx, a.currentSession())
	return nil
}

func (a *Agent) currentSession() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

type session struct {
	agent     *Agent
	app       App
	transport channel.Transport
	coalescer *coalescer
	triggers  chan EventKind
	bindings  channel.Bindings
	log       *log.Entry
}

// awaitReady waits for the loaded signal. Queries arriving meanwhile are
// dropped without a reply.
func (s *session) awaitReady(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-s.transport.Done():
			return false
		case <-s.app.Loaded():
			return true
		case m, ok := <-s.transport.Recv():
			if !ok {
				return false
			}
			if m.Channel == channel.QueryUnreadCount {
				s.log.Debugf("content unavailable, dropping %s", m)
				continue
			}
			s.handle(ctx, m)
		}
	}
}

func (s *session) observe(ctx context.Context, sessionID string) {
	for _, kind := range s.agent.policy.Triggers {
		kind := kind
		s.bindings.Add(s.app.Observe(kind, func() {
			select {
			case s.triggers <- kind:
			default:
				// A full queue already holds triggers that will coalesce.
			}
		}))
	}

	address, ok := s.app.UserAddress()
	if !ok || address == "" {
		address = channel.UnknownAddress
	}
	s.emit(ctx, channel.SessionEstablished, 0, channel.Session{Address: address, SessionID: sessionID})

	window := time.NewTimer(time.Hour)
	window.Stop()
	defer window.Stop()

	arm := func() {
		if !s.coalescer.trigger(time.Now()) {
			return
		}
		if s.agent.policy.Window <= 0 {
			s.fire(ctx)
			return
		}
		window.Reset(s.agent.policy.Window)
	}

	if s.agent.policy.OnLoad {
		arm()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.transport.Done():
			return
		case kind := <-s.triggers:
			s.log.Tracef("observed %s", kind)
			arm()
		case <-window.C:
			s.fire(ctx)
		case m, ok := <-s.transport.Recv():
			if !ok {
				return
			}
			s.handle(ctx, m)
		}
	}
}

func (s *session) fire(ctx context.Context) {
	if s.coalescer.fire(time.Now()) {
		s.emit(ctx, channel.ContentChanged, 0, nil)
	}
}

func (s *session) handle(ctx context.Context, m channel.Message) {
	switch m.Channel {
	case channel.QueryUnreadCount:
		s.coalescer.consume()
		count, err := s.app.UnreadInboxCount()
		if err != nil {
			s.log.Warnf("failed to compute unread count for %s: %v", m, err)
			return
		}
		s.emit(ctx, channel.UnreadCountReply, m.RequestID, channel.UnreadCount{Count: count})
	case channel.OpenDevTools:
		s.log.WithFields(log.Fields{
			"state":    s.agent.State().String(),
			"session":  s.agent.currentSession(),
			"absorbed": s.coalescer.absorbed,
			"pending":  s.coalescer.pending,
		}).Info("content devtools requested")
	default:
		s.log.Debugf("dropping message on channel %q not handled by the content agent", m.Channel)
	}
}

func (s *session) emit(ctx context.Context, name channel.Name, requestID uint64, payload any) {
	msg, err := channel.New(name, requestID, payload)
	if err != nil {
		s.log.Errorf("failed to build %s: %v", name, err)
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := s.transport.Send(sendCtx, msg); err != nil {
		s.log.Debugf("failed to send %s: %v", msg, err)
	}
}
