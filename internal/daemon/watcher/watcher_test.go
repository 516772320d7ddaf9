package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := New(log.NewEntry(log.StandardLogger()))
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)
	w.Start()
	t.Cleanup(w.Stop)
	return w
}

func waitEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case e := <-w.Events():
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no watcher event")
		return Event{}
	}
}

func TestWatchSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	w := newWatcher(t)
	require.NoError(t, w.WatchSettings(path))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0644))

	e := waitEvent(t, w)
	assert.Equal(t, EventSettingsChanged, e.Type)
	assert.Equal(t, path, e.Path)
}

func TestWatchMailboxDebounces(t *testing.T) {
	root := t.TempDir()
	for _, sub := range []string{"new", "cur", "tmp"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, sub), 0755))
	}
	w := newWatcher(t)
	require.NoError(t, w.WatchMailbox(root))

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, "new", name), []byte("Subject: hi\n"), 0644))
	}

	e := waitEvent(t, w)
	assert.Equal(t, EventMailboxChanged, e.Type)
	assert.Equal(t, root, e.Path)

	select {
	case extra := <-w.Events():
		t.Fatalf("expected a single debounced event, got %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}
