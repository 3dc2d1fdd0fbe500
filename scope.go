package stackz

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// ScopeManager resolves and changes the active span of a lineage. Manual
// blocks use it for ambient parent lookup instead of asking the backend.
type ScopeManager interface {
	Active(ctx context.Context) (Span, bool)
	Activate(ctx context.Context, span Span) (context.Context, *Scope)
}

// Scope is returned by Activate. Close pops exactly one entry from the stack
// the span was pushed onto.
type Scope struct {
	stack  *Stack
	entry  *entry
	logger *zap.Logger
	closed atomic.Bool
}

// Span returns the span this scope activated.
func (s *Scope) Span() Span {
	if s == nil || s.entry == nil {
		return nil
	}
	return s.entry.span
}

// Close deactivates the scope. Only the first call has an effect.
// Closing out of order pops whatever is on top and logs a warning.
func (s *Scope) Close() {
	if s == nil || s.entry == nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	top, ok := s.stack.pop()
	if !ok {
		s.logger.Error("active span could not be found in span stack", zap.Error(ErrEmptyStack))
		return
	}
	if top != s.entry {
		s.logger.Warn("span scope closed out of order", zap.Int("depth", s.stack.Len()))
	}
}

// release deactivates the scope by popping through its own entry, returning
// the spans still open above it, innermost first. found is false when the
// entry is no longer on the stack or the scope was already closed.
func (s *Scope) release() (above []Span, found bool) {
	if s == nil || s.entry == nil || !s.closed.CompareAndSwap(false, true) {
		return nil, false
	}
	return s.stack.popUntil(s.entry)
}

// StackScopes is the ScopeManager backed by lineage stacks.
type StackScopes struct {
	logger *zap.Logger
}

// NewStackScopes returns a stack-backed ScopeManager.
func NewStackScopes(logger *zap.Logger) *StackScopes {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StackScopes{logger: logger}
}

// Active implements ScopeManager.
func (m *StackScopes) Active(ctx context.Context) (Span, bool) {
	return CurrentSpan(ctx)
}

// Activate implements ScopeManager. A lineage without a stack gets a fresh
// one attached to the returned context.
func (m *StackScopes) Activate(ctx context.Context, span Span) (context.Context, *Scope) {
	stack := StackFromContext(ctx)
	if stack == nil {
		m.logger.Debug("no span stack in lineage, creating one")
		stack = NewStack()
		ctx = WithStack(ctx, stack)
	}
	e := stack.push(span)
	return ctx, &Scope{stack: stack, entry: e, logger: m.logger}
}

// Activate pushes span onto the lineage's stack using a silent manager.
func Activate(ctx context.Context, span Span) (context.Context, *Scope) {
	return NewStackScopes(nil).Activate(ctx, span)
}
