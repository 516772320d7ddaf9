// Package config handles configuration loading, saving, and path management.
package config

import (
	"os"
	"path/filepath"
)

const (
	// GlobalDirName is the name of the global inboxdock directory.
	GlobalDirName = ".inboxdock"

	// LogsDirName is the name of the logs directory.
	LogsDirName = "logs"
)

// File names
const (
	HostFileName     = "host.yaml"
	SettingsFileName = "settings.yaml"
	LogFileName      = "inboxdockd.log"
)

// GlobalDir returns the path to the global directory (~/.inboxdock/).
// INBOXDOCK_HOME overrides the location.
func GlobalDir() (string, error) {
	if dir := os.Getenv("INBOXDOCK_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, GlobalDirName), nil
}

func globalFile(name string) (string, error) {
	dir, err := GlobalDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// GlobalHostFile returns the path to the host.yaml file.
func GlobalHostFile() (string, error) {
	return globalFile(HostFileName)
}

// GlobalSettingsFile returns the path to the settings.yaml file.
func GlobalSettingsFile() (string, error) {
	return globalFile(SettingsFileName)
}

// GlobalLogsDir returns the path to the logs directory.
func GlobalLogsDir() (string, error) {
	return globalFile(LogsDirName)
}

// DefaultLogFile returns the path of the rotating daemon log.
func DefaultLogFile() (string, error) {
	dir, err := GlobalLogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LogFileName), nil
}

// DefaultMaildir returns the mailbox used when none is configured.
func DefaultMaildir() (string, error) {
	return globalFile("Maildir")
}

// EnsureGlobalDir creates the global directory if it doesn't exist.
func EnsureGlobalDir() error {
	dir, err := GlobalDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// EnsureGlobalLogsDir creates the global logs directory if it doesn't exist.
func EnsureGlobalLogsDir() error {
	dir, err := GlobalLogsDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}
