package tray

import _ "embed"

var (
	//go:embed icons/default.png
	iconDefault []byte

	//go:embed icons/unread.png
	iconUnread []byte
)

func iconFor(unread bool) []byte {
	if unread {
		return iconUnread
	}
	return iconDefault
}
