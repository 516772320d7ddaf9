// Package main is the entry point for the inboxdock CLI.
package main

import (
	"os"

	"github.com/inboxdock/inboxdock/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
