package models

import "time"

// HostInfo represents the running host's connection information.
// This corresponds to ~/.inboxdock/host.yaml.
type HostInfo struct {
	Version   int       `yaml:"version"`
	Host      string    `yaml:"host"`
	Port      int       `yaml:"port"`
	RelayURL  string    `yaml:"relay_url,omitempty"`
	PID       int       `yaml:"pid"`
	StartedAt time.Time `yaml:"started_at"`
}

// NewHostInfo creates host info with current values.
func NewHostInfo(host string, port, pid int) *HostInfo {
	return &HostInfo{
		Version:   1,
		Host:      host,
		Port:      port,
		PID:       pid,
		StartedAt: time.Now().UTC(),
	}
}
