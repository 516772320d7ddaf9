package server

import (
	"time"

	"github.com/inboxdock/inboxdock/internal/notify"
)

// ============================================================================
// Message Types
// ============================================================================

// HostStatus describes the running host.
type HostStatus struct {
	Version   string    `json:"version"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`

	Address     string    `json:"address"`
	UnreadCount int       `json:"unread_count"`
	ObservedAt  time.Time `json:"observed_at"`
	Window      string    `json:"window"`
	Quitting    bool      `json:"quitting"`

	ContentMode     string `json:"content_mode"`
	ContentAttached bool   `json:"content_attached"`
	RelayURL        string `json:"relay_url,omitempty"`

	UpdatePhase    string  `json:"update_phase"`
	UpdateVersion  string  `json:"update_version,omitempty"`
	UpdateProgress float64 `json:"update_progress,omitempty"`

	Toasts []notify.Toast `json:"toasts,omitempty"`
}

// NavigateRequest asks the content surface to go to URL.
type NavigateRequest struct {
	URL string `json:"url"`
}

// NavigateResult reports whether the surface handled the address itself.
type NavigateResult struct {
	Internal bool `json:"internal"`
}

// SettingKey names a setting by key path.
type SettingKey struct {
	Key string `json:"key"`
}

// Setting is one key path and its YAML-formatted value.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SettingList holds every leaf setting.
type SettingList struct {
	Settings []Setting `json:"settings"`
}
