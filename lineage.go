package stackz

import (
	"context"
)

// stackKeyType is a private type for context keys to avoid collisions.
type stackKeyType string

const (
	stackKey stackKeyType = "stackz"
)

// WithStack attaches stack to ctx, making ctx the root of a lineage.
func WithStack(ctx context.Context, stack *Stack) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, stackKey, stack)
}

// StackFromContext returns the lineage's stack, or nil if it has none.
func StackFromContext(ctx context.Context) *Stack {
	if ctx == nil {
		return nil
	}
	if s, ok := ctx.Value(stackKey).(*Stack); ok {
		return s
	}
	return nil
}

// CurrentSpan returns the innermost active span of the calling lineage.
// It reports false when the lineage has no stack or the stack is empty;
// callers treat that as "no parent".
func CurrentSpan(ctx context.Context) (Span, bool) {
	return StackFromContext(ctx).Peek()
}

// Fork prepares ctx for a new concurrent lineage. The returned context
// carries a new stack seeded with only the current innermost span, so the
// child parents its spans correctly without sharing the parent's stack.
// Cancellation and values of ctx are preserved.
func Fork(ctx context.Context) context.Context {
	return WithStack(ctx, StackFromContext(ctx).Snapshot())
}
