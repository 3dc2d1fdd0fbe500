package stackz

import (
	"context"
	"runtime"
	"strings"
)

// Trace runs fn inside a manual span named name, child of the lineage's active
// span. The span is active for the duration of fn and is finished when fn
// returns. An error returned by fn marks the span errored and is returned
// unchanged. A panic in fn marks the span errored, finishes it and propagates.
// Spans fn left open are finished as errored before the block's own span.
func (t *Tracer) Trace(ctx context.Context, name Key, fn func(ctx context.Context, span Span) error) (err error) {
	if name == "" {
		name = DefaultSpanName
	}
	var parent SpanContext
	if top, ok := t.cfg.Scopes.Active(ctx); ok {
		parent = top.Context()
	}
	span := t.startSpan(ctx, name, parent, nil)
	ctx, scope := t.cfg.Scopes.Activate(ctx, span)

	defer func() {
		if r := recover(); r != nil {
			pe := NewPanicError(r)
			span.SetTag(TagError, true)
			span.LogError(pe)
			t.release(scope, pe)
			span.Finish()
			panic(r)
		}
		if err != nil {
			span.SetTag(TagError, true)
			span.LogError(err)
		}
		t.release(scope, nil)
		span.Finish()
	}()

	return fn(ctx, span)
}

// Do is Trace for blocks that produce a value.
func Do[T any](ctx context.Context, t *Tracer, name Key, fn func(ctx context.Context, span Span) (T, error)) (T, error) {
	var out T
	err := t.Trace(ctx, name, func(ctx context.Context, span Span) error {
		var err error
		out, err = fn(ctx, span)
		return err
	})
	return out, err
}

// MethodName returns "Type.Method()" (or "func()" for plain functions) for the
// caller skip frames above MethodName, for use as a manual span name.
// MethodName(0) names the function calling it.
func MethodName(skip int) Key {
	pc, _, _, ok := runtime.Caller(skip + 1)
	if !ok {
		return DefaultSpanName
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return DefaultSpanName
	}
	return shortFuncName(fn.Name()) + "()"
}

// shortFuncName turns "example.com/pkg.(*Type).Method" into "Type.Method".
func shortFuncName(full string) string {
	name := full
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.NewReplacer("(*", "", "(", "", ")", "").Replace(name)
}
