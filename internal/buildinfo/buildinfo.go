// Package buildinfo holds version information injected at build time via ldflags.
package buildinfo

// AppName is the product name shown in titles, tooltips and notifications.
const AppName = "inboxdock"

var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// UserAgent identifies the build in outgoing HTTP requests.
func UserAgent() string {
	return AppName + "/" + Version
}
