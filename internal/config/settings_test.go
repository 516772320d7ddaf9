package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxdock/inboxdock/internal/models"
)

func TestDefaults(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), SettingsFileName))
	require.NoError(t, err)

	settings := store.Settings()
	assert.False(t, settings.Autostart)
	assert.False(t, settings.StartMinimized)
	assert.False(t, store.NotificationsEnabled())
	assert.False(t, store.AutoDownload())
	assert.Equal(t, 800, settings.Window.Width)
	assert.Equal(t, 600, settings.Window.Height)
	assert.Equal(t, models.ContentInProcess, settings.Content.Mode)
}

func TestKeyPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFileName)
	store, err := OpenStore(path)
	require.NoError(t, err)

	tests := []struct {
		key  string
		raw  string
		want any
	}{
		{"window.width", "1024", 1024},
		{"window.height", "700", 700},
		{"notifications.enabled", "true", true},
		{"updates.auto_download", "true", true},
		{"account.address", "me@example.com", "me@example.com"},
		{"start_minimized", "true", true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			require.NoError(t, store.Set(tt.key, tt.raw))
			got, err := store.Get(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, store.NotificationsEnabled())
	assert.True(t, store.AutoDownload())

	reopened, err := OpenStore(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, reopened.Settings().Window.Width)
	assert.Equal(t, "me@example.com", reopened.Settings().Account.Address)
}

func TestSetRejectsBadInput(t *testing.T) {
	store := NewStore("", nil)

	assert.ErrorIs(t, store.Set("window.depth", "3"), ErrUnknownKey)
	assert.ErrorIs(t, store.Set("nope.width", "3"), ErrUnknownKey)
	assert.Error(t, store.Set("window", "3"))
	assert.Error(t, store.Set("window.width", "wide"))

	_, err := store.Get("window.depth")
	assert.ErrorIs(t, err, ErrUnknownKey)

	assert.Equal(t, 800, store.Settings().Window.Width)
}

func TestSetWindowBoundsNotifies(t *testing.T) {
	store := NewStore("", nil)

	var seen []models.Rect
	cancel := store.OnChange(func(s models.Settings) { seen = append(seen, s.Window) })

	bounds := models.Rect{X: 10, Y: 20, Width: 640, Height: 480}
	require.NoError(t, store.SetWindowBounds(bounds))
	cancel()
	require.NoError(t, store.SetWindowBounds(models.Rect{Width: 1}))

	assert.Equal(t, []models.Rect{bounds}, seen)
}

func TestConcurrentSetDeliversNewestLast(t *testing.T) {
	store := NewStore("", nil)

	level := ""
	calls := 0
	store.OnChange(func(s models.Settings) {
		calls++
		if s.Log.Level != level {
			level = s.Log.Level
		}
	})

	levels := []string{"debug", "info", "warn", "error"}
	var wg sync.WaitGroup
	for _, l := range levels {
		wg.Add(1)
		go func(l string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				assert.NoError(t, store.Set("log.level", l))
			}
		}(l)
	}
	wg.Wait()

	assert.Equal(t, store.Settings().Log.Level, level)
	assert.Positive(t, calls)
	assert.LessOrEqual(t, calls, 80)
}

func TestReloadPicksUpFileChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFileName)
	store, err := OpenStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("notifications:\n  enabled: true\n"), 0644))
	require.NoError(t, store.Reload())

	assert.True(t, store.NotificationsEnabled())
	assert.Equal(t, 800, store.Settings().Window.Width, "missing keys keep defaults")
}

func TestLoadYAMLRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFileName)
	require.NoError(t, os.WriteFile(path, []byte("colour: blue\n"), 0644))

	_, err := OpenStore(path)
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	keys, err := NewStore("", nil).Keys()
	require.NoError(t, err)
	assert.Contains(t, keys, "window.width")
	assert.Contains(t, keys, "notifications.enabled")
	assert.Contains(t, keys, "updates.auto_download")
	assert.NotContains(t, keys, "window")
}

func TestGetString(t *testing.T) {
	store := NewStore("", nil)

	tests := []struct {
		key  string
		want string
	}{
		{"window.width", "800"},
		{"notifications.enabled", "false"},
		{"updates.check_frequency", "every_launch"},
	}
	for _, tt := range tests {
		got, err := store.GetString(tt.key)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.key)
	}

	_, err := store.GetString("window.depth")
	assert.ErrorIs(t, err, ErrUnknownKey)
}
