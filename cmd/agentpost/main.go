// Command agentpost manages inboxes and messaging for terminal AI agents.
package main

import (
	"os"

	"github.com/aki/agentpost/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
