package models

import "time"

// Rect is a window position and size in screen pixels.
type Rect struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// NotificationsConfig holds desktop notification settings.
type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AccountConfig describes the mailbox shown in the content surface.
type AccountConfig struct {
	Address string `yaml:"address"` // empty means unknown
	Maildir string `yaml:"maildir"`
}

// ContentConfig controls how the content surface is hosted.
type ContentConfig struct {
	Mode   string `yaml:"mode"`   // "inprocess" | "external"
	Listen string `yaml:"listen"` // relay listener for external agents
	Origin string `yaml:"origin"` // navigation inside this origin stays in the surface
}

// Content hosting modes.
const (
	ContentInProcess = "inprocess"
	ContentExternal  = "external"
)

// UpdatesConfig holds settings for update checking.
type UpdatesConfig struct {
	CheckOnStartup bool       `yaml:"check_on_startup"`
	CheckFrequency string     `yaml:"check_frequency"`
	AutoDownload   bool       `yaml:"auto_download"`
	LastChecked    *time.Time `yaml:"last_checked,omitempty"`
}

// Update check frequencies.
const (
	CheckEveryLaunch = "every_launch"
	CheckDaily       = "daily"
	CheckWeekly      = "weekly"
)

// LogConfig holds daemon logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // empty or "console" logs to stderr
}

// Settings represents global application settings.
// This corresponds to ~/.inboxdock/settings.yaml.
type Settings struct {
	Version        int                 `yaml:"version"`
	Autostart      bool                `yaml:"autostart"`
	StartMinimized bool                `yaml:"start_minimized"`
	Window         Rect                `yaml:"window"`
	Notifications  NotificationsConfig `yaml:"notifications"`
	Account        AccountConfig       `yaml:"account"`
	Content        ContentConfig       `yaml:"content"`
	Updates        UpdatesConfig       `yaml:"updates"`
	Log            LogConfig           `yaml:"log"`
}

// NewSettings creates settings with default values.
func NewSettings() *Settings {
	return &Settings{
		Version:        1,
		Autostart:      false,
		StartMinimized: false,
		Window: Rect{
			Width:  800,
			Height: 600,
		},
		Notifications: NotificationsConfig{
			Enabled: false,
		},
		Content: ContentConfig{
			Mode:   ContentInProcess,
			Listen: "127.0.0.1:0",
			Origin: "maildir://local",
		},
		Updates: UpdatesConfig{
			CheckOnStartup: true,
			CheckFrequency: CheckEveryLaunch,
			// Downloads wait for an explicit trigger unless enabled.
			AutoDownload: false,
			LastChecked:  nil,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
