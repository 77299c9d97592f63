//go:build windows

package main

import (
	"context"

	"nomvoice/internal/usecase"
)

// watchLifecycle is a no-op: there is no job control on Windows consoles.
func watchLifecycle(ctx context.Context, _ *usecase.Controller) {
	<-ctx.Done()
}
