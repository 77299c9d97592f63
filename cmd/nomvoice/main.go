// Command nomvoice runs the hands-free cooking voice runtime without the
// desktop window, and offers maintenance commands for its speech cache.
//
// Usage:
//
//	nomvoice [--config path] <command> [args]
//
// Commands:
//
//	run        - listen for the wake word and walk through a recipe
//	precache   - synthesize a recipe's phrases ahead of time
//	classify   - show how a spoken command is understood
//	cache      - inspect or clear the speech cache
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
