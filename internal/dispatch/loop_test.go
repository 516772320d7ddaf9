package dispatch

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) (*Loop, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	l := New(log.NewEntry(logger))
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, hook
}

func TestLoopRunsTasksInOrder(t *testing.T) {
	l, _ := startLoop(t)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	require.NoError(t, l.Call(context.Background(), func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopRecoversPanics(t *testing.T) {
	l, hook := startLoop(t)

	l.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, l.Call(context.Background(), func() { ran = true }))

	assert.True(t, ran)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, log.ErrorLevel, hook.LastEntry().Level)
}

func TestAfterFuncStop(t *testing.T) {
	l, _ := startLoop(t)

	fired := make(chan struct{}, 2)
	l.AfterFunc(10*time.Millisecond, func() { fired <- struct{}{} })
	stopped := l.AfterFunc(10*time.Millisecond, func() { fired <- struct{}{} })
	stopped.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCallAfterStop(t *testing.T) {
	logger, _ := test.NewNullLogger()
	l := New(log.NewEntry(logger))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Run(ctx), context.Canceled)

	assert.ErrorIs(t, l.Call(context.Background(), func() {}), ErrStopped)
}
