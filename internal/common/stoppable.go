package common

import (
	"context"
	"time"
)

// Stoppable defines the interface for services that can be gracefully
// stopped with context-aware cancellation and timeout enforcement.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// StopWithTimeout creates a timeout context and calls Stop on a
// Stoppable service.
func StopWithTimeout(service Stoppable, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return service.Stop(ctx)
}

// Func adapts a plain context-taking shutdown function to Stoppable,
// for components whose native Stop method has a different signature
// (a bare Stop() error, or a Shutdown(ctx) error) than this package
// defines.
type Func func(ctx context.Context) error

func (f Func) Stop(ctx context.Context) error { return f(ctx) }
