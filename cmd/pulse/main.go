package main

import (
	"os"

	"github.com/quantpulse/pulse/cmd/pulse/commands"
)

// main is the entry point for the Pulse CLI:
// go run ./cmd/pulse [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
