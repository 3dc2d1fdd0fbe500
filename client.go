package stackz

import (
	"context"
	"sync/atomic"
)

// ClientCall describes an outbound call.
type ClientCall struct {
	// Carrier receives the propagation headers. It may be nil.
	Carrier Carrier
	Method  string
	Host    string
	// Path is the encoded request path.
	Path string
}

// ClientSpan is the span of one outbound call.
type ClientSpan struct {
	tracer   *Tracer
	span     Span
	scope    *Scope
	finished atomic.Bool
}

// StartClient starts a child of the lineage's active span, injects its context
// into call.Carrier and activates it through the configured ScopeManager. A
// lineage without a stack gets a new one and the span starts without a parent.
func (t *Tracer) StartClient(ctx context.Context, call *ClientCall) (context.Context, *ClientSpan) {
	if call == nil {
		call = &ClientCall{}
	}
	if StackFromContext(ctx) == nil {
		t.logger.Warn("span stack is missing, starting client span without parent")
		ctx = WithStack(ctx, NewStack())
	}

	var parent SpanContext
	if top, ok := t.cfg.Scopes.Active(ctx); ok {
		parent = top.Context()
	}

	path, pathTags := t.clientPath(call)
	span := t.startSpan(ctx, "Call to "+call.Method+" "+call.Host+path, parent, map[Tag]any{
		TagSpanKind:   KindClient,
		TagHTTPMethod: call.Method,
		TagHTTPURL:    call.Host + call.Path,
	})
	for k, v := range pathTags {
		span.SetTag(k, v)
	}
	if call.Carrier != nil {
		t.inject(span, WriteOnly(call.Carrier))
	}
	ctx, scope := t.cfg.Scopes.Activate(ctx, span)

	return ctx, &ClientSpan{tracer: t, span: span, scope: scope}
}

func (t *Tracer) clientPath(call *ClientCall) (string, map[Tag]string) {
	if _, res, ok := MatchRoutes(t.cfg.ClientRoutes, call.Method, call.Path); ok {
		return res.Path, res.Tags
	}
	pt := ExtractPathTags(call.Path, t.cfg.Patterns)
	return pt.Path, pt.Tags
}

// Span returns the underlying backend span.
func (s *ClientSpan) Span() Span {
	if s == nil {
		return noopSpan{}
	}
	return s.span
}

// Finish pops the client span and finishes it. The span is errored when err
// is non-nil or the status is 400 or above. A zero status is not tagged.
func (s *ClientSpan) Finish(status int, err error) {
	if s == nil || !s.finished.CompareAndSwap(false, true) {
		return
	}
	s.tracer.release(s.scope, nil)

	if status > 0 {
		s.span.SetTag(TagHTTPStatus, status)
	}
	if err != nil || status >= 400 {
		s.span.SetTag(TagError, true)
	}
	if err != nil {
		s.span.LogError(err)
	}
	s.span.Finish()
}
