// Package dispatch provides the single-threaded cooperative loop that runs
// every host-side handler. A task runs to completion before the next starts,
// so state owned by loop handlers needs no locks.
package dispatch

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrStopped is returned by Call when the loop is no longer running.
var ErrStopped = errors.New("dispatch loop stopped")

// Loop is an unbounded FIFO of tasks executed on one goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped chan struct{}
	stop    sync.Once
	log     *log.Entry
}

// New creates a loop. Tasks may be posted before Run starts.
func New(entry *log.Entry) *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		log:     entry,
	}
}

// Post appends fn to the queue. It never blocks. Tasks posted after the loop
// stopped are discarded.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.stopped:
		return
	default:
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop.Do(func() { close(l.stopped) })

	for {
		for {
			fn, ok := l.pop()
			if !ok {
				break
			}
			l.run(fn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

func (l *Loop) pop() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorf("dispatch handler panicked: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Timer is a delayed task. Stopping it from a loop task guarantees the task
// will not run, even if its deadline already passed.
type Timer struct {
	t         *time.Timer
	cancelled atomic.Bool
}

// Stop cancels the task.
func (t *Timer) Stop() {
	t.cancelled.Store(true)
	t.t.Stop()
}

// AfterFunc posts fn to the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	timer := &Timer{}
	timer.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if timer.cancelled.Load() {
				return
			}
			fn()
		})
	})
	return timer
}
