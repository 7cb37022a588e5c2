// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/visverify/cmd"
	"github.com/xkilldash9x/visverify/internal/observability"
)

// main is the entry point for the visverify CLI.
func main() {
	// Cancel the run on Ctrl-C or SIGTERM so the browser is always torn down.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()

	observability.Sync()
	os.Exit(cmd.ExitCode(err))
}
