package stackz

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Tracer starts, activates and finishes spans for server calls, client calls
// and manually instrumented blocks.
// Safe for concurrent use by multiple goroutines.
type Tracer struct {
	backend Backend
	cfg     *Config
	logger  *zap.Logger
}

// New creates a Tracer driving backend. A nil backend falls back to
// NoopBackend so instrumented code keeps working without tracing.
func New(backend Backend, opts ...Option) *Tracer {
	cfg := newConfig(opts)
	if backend == nil {
		cfg.Logger.Warn("no tracing backend registered, using noop backend")
		backend = NoopBackend{}
	}
	return &Tracer{
		backend: backend,
		cfg:     cfg,
		logger:  cfg.Logger,
	}
}

// Backend returns the backend spans are started on.
func (t *Tracer) Backend() Backend {
	return t.backend
}

// Patterns returns the effective pattern table, user patterns first.
func (t *Tracer) Patterns() []Pattern {
	out := make([]Pattern, len(t.cfg.Patterns))
	copy(out, t.cfg.Patterns)
	return out
}

// ClientRoutes returns the declared outbound routes in match order.
func (t *Tracer) ClientRoutes() []Route {
	out := make([]Route, len(t.cfg.ClientRoutes))
	copy(out, t.cfg.ClientRoutes)
	return out
}

// startSpan starts a span and applies configured tags. A panicking backend
// yields a no-op span.
func (t *Tracer) startSpan(ctx context.Context, name Key, parent SpanContext, tags map[Tag]any) (span Span) {
	if parent != nil && !parent.IsValid() {
		parent = nil
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("tracing backend failed to start span", zap.String("span", name), zap.Any("panic", r))
				span = noopSpan{}
			}
		}()
		span = t.backend.StartSpan(name, StartOptions{Parent: parent, Tags: tags})
	}()
	if span == nil {
		span = noopSpan{}
	}
	t.applyConfiguredTags(ctx, span)
	return span
}

// applyConfiguredTags evaluates every TagFunc. A failing callback loses only
// its own tag.
func (t *Tracer) applyConfiguredTags(ctx context.Context, span Span) {
	for _, src := range t.cfg.Tags {
		value, err := evalTag(ctx, src)
		if err != nil {
			t.logger.Warn("span tag callback failed", zap.String("tag", src.Name), zap.Error(err))
			continue
		}
		span.SetTag(src.Name, value)
	}
}

func evalTag(ctx context.Context, src TagSource) (value string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tag %s: %w", src.Name, NewPanicError(r))
		}
	}()
	return src.Func(ctx)
}

// inject writes sc into c. Failures are logged and otherwise ignored.
func (t *Tracer) inject(span Span, c Carrier) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("trace context injection panicked", zap.Any("panic", r))
		}
	}()
	if err := t.backend.Inject(span.Context(), c); err != nil {
		t.logger.Warn("trace context injection failed", zap.Error(err))
	}
}

// extract decodes a parent from inbound headers. Absence is normal.
func (t *Tracer) extract(call *Call) (sc SpanContext) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("trace context extraction panicked", zap.Any("panic", r))
			sc = nil
		}
	}()
	sc, err := t.backend.Extract(StripAuthorization(call.Header))
	switch {
	case errors.Is(err, ErrNoSpanContext):
		t.logger.Debug("no trace context in request headers, starting a new trace")
		return nil
	case err != nil:
		t.logger.Warn("trace context could not be decoded, starting a new trace", zap.Error(err))
		return nil
	}
	return sc
}

// closeOpen finishes a span its lineage abandoned.
func (t *Tracer) closeOpen(span Span, cause error) {
	if cause == nil {
		cause = ErrSpanLeftOpen
	}
	t.logger.Warn("finishing span left open by its lineage", zap.Error(cause))
	span.SetTag(TagError, true)
	span.LogError(cause)
	span.Finish()
}

// release pops scope through its own entry and finishes every span left open
// above it. A nil cause records ErrSpanLeftOpen.
func (t *Tracer) release(scope *Scope, cause error) {
	above, found := scope.release()
	if !found {
		t.logger.Error("active span could not be found in span stack")
	}
	for _, open := range above {
		t.closeOpen(open, cause)
	}
}

// closeLineage finishes every span pushed onto stack beyond its first keep
// entries.
func (t *Tracer) closeLineage(stack *Stack, keep int, cause error) {
	for stack.Len() > keep {
		span, ok := stack.Pop()
		if !ok {
			return
		}
		t.closeOpen(span, cause)
	}
}

// Go runs fn in a new goroutine on a forked lineage. Spans fn leaves open are
// finished as errored when it returns or panics.
func (t *Tracer) Go(ctx context.Context, fn func(ctx context.Context)) {
	child := Fork(ctx)
	stack := StackFromContext(child)
	keep := stack.Len()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.closeLineage(stack, keep, NewPanicError(r))
				panic(r)
			}
			t.closeLineage(stack, keep, nil)
		}()
		fn(child)
	}()
}

// Group runs concurrent children, each on its own forked lineage.
type Group struct {
	group  *errgroup.Group
	ctx    context.Context
	tracer *Tracer
}

// Group returns a Group whose children share cancellation through the
// returned context, as with errgroup.WithContext.
func (t *Tracer) Group(ctx context.Context) (*Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	return &Group{group: g, ctx: gctx, tracer: t}, gctx
}

// SetLimit limits the number of active children.
func (g *Group) SetLimit(n int) {
	g.group.SetLimit(n)
}

// Go starts fn on a lineage forked at call time. Spans fn leaves open are
// finished as errored.
func (g *Group) Go(fn func(ctx context.Context) error) {
	child := Fork(g.ctx)
	stack := StackFromContext(child)
	keep := stack.Len()
	g.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				g.tracer.closeLineage(stack, keep, NewPanicError(r))
				panic(r)
			}
			g.tracer.closeLineage(stack, keep, err)
		}()
		return fn(child)
	})
}

// Wait blocks until every child returns and reports the first error.
func (g *Group) Wait() error {
	return g.group.Wait()
}

// PanicError carries a recovered panic value and the stack where it happened.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError captures r with the current goroutine stack.
func NewPanicError(r any) *PanicError {
	return &PanicError{Value: r, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes a panicked error value.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
