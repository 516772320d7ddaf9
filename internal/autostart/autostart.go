// Package autostart registers the daemon to launch at login.
package autostart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrUnsupported is returned on platforms without a known login mechanism.
var ErrUnsupported = errors.New("autostart is not supported on this platform")

const (
	desktopName = "inboxdock.desktop"
	plistLabel  = "io.inboxdock.daemon"
)

// Entry manages the login item for one executable.
type Entry struct {
	goos       string
	home       string
	executable string
}

// New creates an entry for the running executable.
func New() (*Entry, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return &Entry{goos: runtime.GOOS, home: home, executable: exe}, nil
}

// Path returns the login item file.
func (e *Entry) Path() (string, error) {
	switch e.goos {
	case "linux", "freebsd", "openbsd":
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			configHome = filepath.Join(e.home, ".config")
		}
		return filepath.Join(configHome, "autostart", desktopName), nil
	case "darwin":
		return filepath.Join(e.home, "Library", "LaunchAgents", plistLabel+".plist"), nil
	default:
		return "", ErrUnsupported
	}
}

// Enabled reports whether the login item exists.
func (e *Entry) Enabled() (bool, error) {
	path, err := e.Path()
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// Set creates or removes the login item.
func (e *Entry) Set(enabled bool) error {
	path, err := e.Path()
	if err != nil {
		return err
	}
	if !enabled {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove login item: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create login item directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(e.render()), 0644); err != nil {
		return fmt.Errorf("write login item: %w", err)
	}
	return nil
}

func (e *Entry) render() string {
	if e.goos == "darwin" {
		return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
		<string>%s</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
</dict>
</plist>
`, plistLabel, e.executable)
	}

	return strings.Join([]string{
		"[Desktop Entry]",
		"Type=Application",
		"Name=inboxdock",
		"Comment=Mailbox in your tray",
		"Exec=" + e.executable,
		"X-GNOME-Autostart-enabled=true",
		"",
	}, "\n")
}
