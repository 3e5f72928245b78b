// Provides helper functions for working with contexts.
package types

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// NewCancelableSubContext creates a new cancellable sub-context of the given context.
func NewCancelableSubContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(ctx)
}

// NewSignalNotifySubContext creates a new cancellable sub-context that is
// cancelled when any of the provided signals are received.
func NewSignalNotifySubContext(ctx context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, signals...)
}

// DefaultSignalNotifySubContext creates a new cancellable context that is
// cancelled on SIGINT or SIGTERM.
func DefaultSignalNotifySubContext() (context.Context, context.CancelFunc) {
	return NewSignalNotifySubContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
