package content

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/inboxdock/inboxdock/internal/channel"
)

// Attacher is the host side of the boundary. Each load hands it a fresh
// transport.
type Attacher interface {
	Attach(t channel.Transport)
}

// Surface hosts the agent in its own goroutine, connected to the host only
// through an encoded pipe.
type Surface struct {
	agent *Agent
	host  Attacher
	log   *log.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSurface creates an unloaded surface.
func NewSurface(agent *Agent, host Attacher, entry *log.Entry) *Surface {
	return &Surface{agent: agent, host: host, log: entry}
}

// Load starts a new observer session. A loaded surface is disposed first.
func (s *Surface) Load(ctx context.Context) error {
	s.dispose()

	hostEnd, contentEnd := channel.Pipe()
	sessionCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.host.Attach(hostEnd)

	go func() {
		defer close(done)
		defer contentEnd.Close()
		if err := s.agent.Run(sessionCtx, contentEnd); err != nil {
			s.log.Errorf("content session ended: %v", err)
		}
	}()
	return nil
}

// Reload disposes the current session and bootstraps a new one.
func (s *Surface) Reload(ctx context.Context) error {
	s.log.Info("reloading content surface")
	return s.Load(ctx)
}

// Close disposes the current session.
func (s *Surface) Close() error {
	s.dispose()
	return nil
}

func (s *Surface) dispose() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
