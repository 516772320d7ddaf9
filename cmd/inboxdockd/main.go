// Package main is the entry point for the inboxdockd host.
package main

import (
	"os"

	"github.com/inboxdock/inboxdock/internal/daemon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
