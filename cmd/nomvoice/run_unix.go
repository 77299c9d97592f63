//go:build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"nomvoice/internal/usecase"
)

// watchLifecycle maps job control onto foreground changes: SIGTSTP moves
// the runtime to the background, SIGCONT brings it back.
func watchLifecycle(ctx context.Context, controller *usecase.Controller) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTSTP, syscall.SIGCONT)
	defer signal.Stop(signals)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			switch sig {
			case syscall.SIGTSTP:
				_ = controller.SetForeground(ctx, false)
				// Suspend for real once audio is released.
				signal.Reset(syscall.SIGTSTP)
				_ = syscall.Kill(os.Getpid(), syscall.SIGTSTP)
				signal.Notify(signals, syscall.SIGTSTP)
			case syscall.SIGCONT:
				_ = controller.SetForeground(ctx, true)
			}
		}
	}
}
