// Command emaaccess drives the spoken-feedback pipeline from the terminal.
//
// Usage:
//
//	emaaccess [flags] <command> [args]
//
// Commands:
//
//	replay   - Replay a scripted session against an in-memory UI tree
//	schema   - Print the JSON schema of rule files
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/koscakluka/ema-access/cmd/emaaccess/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
