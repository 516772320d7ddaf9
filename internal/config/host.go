package config

import (
	"os"
	"syscall"

	"github.com/inboxdock/inboxdock/internal/models"
)

// LoadHostInfo loads the host connection info from ~/.inboxdock/host.yaml.
// Returns nil if the file doesn't exist.
func LoadHostInfo() (*models.HostInfo, error) {
	path, err := GlobalHostFile()
	if err != nil {
		return nil, err
	}

	if !FileExists(path) {
		return nil, nil
	}

	var info models.HostInfo
	if err := LoadYAML(path, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SaveHostInfo saves the host connection info to ~/.inboxdock/host.yaml.
func SaveHostInfo(info *models.HostInfo) error {
	if err := EnsureGlobalDir(); err != nil {
		return err
	}

	path, err := GlobalHostFile()
	if err != nil {
		return err
	}
	return SaveYAML(path, info)
}

// RemoveHostInfo removes the host.yaml file.
func RemoveHostInfo() error {
	path, err := GlobalHostFile()
	if err != nil {
		return err
	}

	if !FileExists(path) {
		return nil
	}
	return os.Remove(path)
}

// IsHostRunning checks if the host process is still running.
// Returns true if host.yaml exists and the PID is alive.
func IsHostRunning() (bool, *models.HostInfo, error) {
	info, err := LoadHostInfo()
	if err != nil {
		return false, nil, err
	}
	if info == nil {
		return false, nil, nil
	}

	process, err := os.FindProcess(info.PID)
	if err != nil {
		return false, info, nil
	}

	// Signal 0 only probes for existence.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		_ = RemoveHostInfo()
		return false, info, nil
	}

	return true, info, nil
}
