package stackz

import (
	"context"
	"sync"
	"sync/atomic"
)

// ServerSpan is the span of one inbound call. A nil *ServerSpan is returned
// for filtered calls; all of its methods are no-ops.
type ServerSpan struct {
	tracer   *Tracer
	span     Span
	stack    *Stack
	entry    *entry
	call     *Call
	mu       sync.Mutex
	failure  error
	finished atomic.Bool
}

// StartServer starts the server span for call and returns a context whose
// lineage has a fresh stack with the server span at its bottom. Filtered calls
// return ctx unchanged and a nil span.
func (t *Tracer) StartServer(ctx context.Context, call *Call) (context.Context, *ServerSpan) {
	if call == nil {
		call = &Call{}
	}
	if t.cfg.filtered(call) {
		return ctx, nil
	}

	parent := t.extract(call)
	name, pathTags := t.serverName(call)
	span := t.startSpan(ctx, name, parent, map[Tag]any{
		TagSpanKind:   KindServer,
		TagHTTPMethod: call.Method,
	})
	for k, v := range pathTags {
		span.SetTag(k, v)
	}

	stack := NewStack()
	e := stack.push(span)
	return WithStack(ctx, stack), &ServerSpan{
		tracer: t,
		span:   span,
		stack:  stack,
		entry:  e,
		call:   call,
	}
}

// serverName resolves the span name from the declared route if it matches,
// and from the pattern table otherwise.
func (t *Tracer) serverName(call *Call) (Key, map[Tag]string) {
	if call.Route != "" {
		if r, err := ParseRoute("", call.Route); err == nil {
			if res := r.MatchPath(call.Path); res.Matched {
				return call.Method + " " + res.Path, res.Tags
			}
		}
	}
	pt := ExtractPathTags(call.Path, t.cfg.Patterns)
	return call.Method + " " + pt.Path, pt.Tags
}

// Span returns the underlying backend span.
func (s *ServerSpan) Span() Span {
	if s == nil {
		return noopSpan{}
	}
	return s.span
}

// SetRoute renames the span once the host has resolved the route template,
// and tags the route parameters. Unmatched templates are ignored.
func (s *ServerSpan) SetRoute(template string) {
	if s == nil || s.finished.Load() {
		return
	}
	r, err := ParseRoute("", template)
	if err != nil {
		return
	}
	res := r.MatchPath(s.call.Path)
	if !res.Matched {
		s.tracer.logger.Debug("route template does not match request path")
		return
	}
	s.span.SetName(s.call.Method + " " + res.Path)
	for k, v := range res.Tags {
		s.span.SetTag(k, v)
	}
}

// Fail records a failure of the call, either an error or a recovered panic
// value. The span is marked errored when it finishes.
func (s *ServerSpan) Fail(v any) {
	if s == nil || v == nil {
		return
	}
	err, ok := v.(error)
	if !ok {
		err = NewPanicError(v)
	}
	s.mu.Lock()
	s.failure = err
	s.mu.Unlock()
}

// Finish pops the server span, tags the response status and finishes it. A
// status of zero means no response was produced. Spans left open above the
// server span are finished as errored. Only the first call has an effect.
func (s *ServerSpan) Finish(status int) {
	if s == nil || !s.finished.CompareAndSwap(false, true) {
		return
	}
	above, found := s.stack.popUntil(s.entry)
	if !found {
		s.tracer.logger.Error("active span could not be found in span stack")
	}
	for _, open := range above {
		s.tracer.closeOpen(open, nil)
	}

	s.mu.Lock()
	failure := s.failure
	s.mu.Unlock()

	if status > 0 {
		s.span.SetTag(TagHTTPStatus, status)
	}
	if status <= 0 || status >= 400 || failure != nil {
		s.span.SetTag(TagError, true)
	}
	if failure != nil {
		s.span.LogError(failure)
	}
	s.span.Finish()
}
