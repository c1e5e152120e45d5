// ABOUTME: CLI entry point for pi-chat
// ABOUTME: Builds the cobra command tree and maps errors to exit codes

package main

import (
	"errors"
	"fmt"
	"os"

	// termfix must be imported before any package that imports bubbletea.
	_ "github.com/mauromedda/pi-chat-stream/internal/termfix"

	"github.com/mauromedda/pi-chat-stream/pkg/stream"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd := newRootCmd()
	err := cmd.Execute()
	switch {
	case err == nil:
	case errors.Is(err, stream.ErrCancelled):
		os.Exit(130)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
