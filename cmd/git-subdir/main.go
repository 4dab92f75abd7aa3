package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rib/git-subdir/internal/subdir"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		// First signal: cancel ctx so the current operation can wind
		// down cleanly (the squash engine finishes its pending amend
		// on a detached context rather than leaving a placeholder
		// record behind).
		cancel()
		<-sigCh
		// Second signal: the caller wants out now.
		os.Exit(130)
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(subdir.ExitCode(err))
	}
}
