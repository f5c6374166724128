// Package context holds small helpers around the standard context package.
package context

import (
	"context"
)

// Detach returns a context that keeps the values of parent but is never
// canceled and has no deadline. Work started with it runs to completion even
// after the caller that started it has given up.
func Detach(parent context.Context) context.Context {
	if parent == nil {
		return context.Background()
	}
	return context.WithoutCancel(parent)
}

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// IsTimedOut returns true if the context was canceled due to a timeout
func IsTimedOut(ctx context.Context) bool {
	return ctx.Err() == context.DeadlineExceeded
}
