package autostart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndRemove(t *testing.T) {
	tests := []struct {
		goos     string
		file     string
		contains string
	}{
		{"linux", filepath.Join(".config", "autostart", "inboxdock.desktop"), "Exec=/opt/inboxdock/inboxdockd"},
		{"darwin", filepath.Join("Library", "LaunchAgents", "io.inboxdock.daemon.plist"), "<string>/opt/inboxdock/inboxdockd</string>"},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			t.Setenv("XDG_CONFIG_HOME", "")
			home := t.TempDir()
			e := &Entry{goos: tt.goos, home: home, executable: "/opt/inboxdock/inboxdockd"}

			enabled, err := e.Enabled()
			require.NoError(t, err)
			assert.False(t, enabled)

			require.NoError(t, e.Set(true))
			data, err := os.ReadFile(filepath.Join(home, tt.file))
			require.NoError(t, err)
			assert.Contains(t, string(data), tt.contains)

			enabled, err = e.Enabled()
			require.NoError(t, err)
			assert.True(t, enabled)

			require.NoError(t, e.Set(false))
			require.NoError(t, e.Set(false))
			enabled, err = e.Enabled()
			require.NoError(t, err)
			assert.False(t, enabled)
		})
	}
}

func TestUnsupported(t *testing.T) {
	e := &Entry{goos: "plan9", home: t.TempDir()}
	assert.ErrorIs(t, e.Set(true), ErrUnsupported)
	_, err := e.Enabled()
	assert.ErrorIs(t, err, ErrUnsupported)
}
