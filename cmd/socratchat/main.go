// Package main is the entry point for the socratchat CLI.
//
// Usage:
//
//	socratchat [flags] <command> [subcommand] [args]
//
// Commands:
//
//	chat       - Typed conversation, optionally spoken
//	talk       - Push-to-talk and voice-active conversation
//	handsfree  - Hands-free voice conversation
//	serve      - Websocket bridge for a UI
//	devices    - List audio input devices
//	cache      - Inspect or clear the speech cache
//	config     - Configuration management (contexts, services)
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/socratchat/cmd/socratchat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
