package content

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/inboxdock/inboxdock/internal/channel"
)

// RunRemote runs the agent in this process against a relay listening at url.
// Every (re)connection is a fresh session. It returns when ctx is cancelled.
func RunRemote(ctx context.Context, url string, agent *Agent, entry *log.Entry) error {
	for {
		var t *channel.WSTransport
		operation := func() error {
			var err error
			t, err = channel.Dial(ctx, url, entry)
			if err != nil {
				entry.Debugf("relay not reachable: %v", err)
			}
			return err
		}

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 500 * time.Millisecond
		b.MaxInterval = 30 * time.Second
		b.MaxElapsedTime = 0
		if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		entry.Infof("connected to relay %s", url)
		if err := agent.Run(ctx, t); err != nil {
			entry.Errorf("content session ended: %v", err)
		}
		_ = t.Close()

		if ctx.Err() != nil {
			return nil
		}
		entry.Info("relay connection lost, reconnecting")
	}
}

// ProcessSurface hosts the agent in a child process that dials the relay.
type ProcessSurface struct {
	path string
	args []string
	log  *log.Entry

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// NewProcessSurface runs path with args for each load.
func NewProcessSurface(path string, args []string, entry *log.Entry) *ProcessSurface {
	return &ProcessSurface{path: path, args: args, log: entry}
}

// Load starts the agent process, stopping any previous one.
func (p *ProcessSurface) Load(ctx context.Context) error {
	p.stop()

	cmd := exec.CommandContext(ctx, p.path, p.args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan struct{})
	p.mu.Lock()
	p.cmd = cmd
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			p.log.Warnf("content agent process exited: %v", err)
		}
	}()

	p.log.Infof("content agent process started (pid %d)", cmd.Process.Pid)
	return nil
}

// Reload restarts the agent process.
func (p *ProcessSurface) Reload(ctx context.Context) error {
	return p.Load(ctx)
}

// Close stops the agent process.
func (p *ProcessSurface) Close() error {
	p.stop()
	return nil
}

func (p *ProcessSurface) stop() {
	p.mu.Lock()
	cmd, done := p.cmd, p.done
	p.cmd, p.done = nil, nil
	p.mu.Unlock()

	if cmd == nil {
		return
	}
	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		_ = cmd.Process.Kill()
		<-done
	}
}
