// Package opentracingz drives an opentracing.Tracer as a stackz.Backend.
// Context travels in the HTTPHeaders format of the wrapped tracer.
package opentracingz

import (
	"errors"
	"net/http"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otlog "github.com/opentracing/opentracing-go/log"

	"github.com/zoobzio/stackz"
)

// ErrForeignSpanContext reports a span context produced by another backend.
var ErrForeignSpanContext = errors.New("opentracingz: span context from another backend")

// Backend implements stackz.Backend on top of an opentracing.Tracer.
type Backend struct {
	tracer opentracing.Tracer
}

var _ stackz.Backend = (*Backend)(nil)

// New wraps tracer. A nil tracer uses opentracing.GlobalTracer().
func New(tracer opentracing.Tracer) *Backend {
	if tracer == nil {
		tracer = opentracing.GlobalTracer()
	}
	return &Backend{tracer: tracer}
}

// SpanContext wraps an opentracing.SpanContext.
type SpanContext struct {
	opentracing.SpanContext
}

// IsValid implements stackz.SpanContext.
func (sc SpanContext) IsValid() bool {
	return sc.SpanContext != nil
}

// StartSpan implements stackz.Backend.
func (b *Backend) StartSpan(name stackz.Key, opts stackz.StartOptions) stackz.Span {
	var startOpts []opentracing.StartSpanOption
	if parent, ok := opts.Parent.(SpanContext); ok && parent.IsValid() {
		startOpts = append(startOpts, opentracing.ChildOf(parent.SpanContext))
	}
	if len(opts.Tags) > 0 {
		startOpts = append(startOpts, opentracing.Tags(opts.Tags))
	}
	return &Span{span: b.tracer.StartSpan(name, startOpts...)}
}

// Extract implements stackz.Backend.
func (b *Backend) Extract(h http.Header) (stackz.SpanContext, error) {
	sc, err := b.tracer.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(h))
	switch {
	case errors.Is(err, opentracing.ErrSpanContextNotFound):
		return nil, stackz.ErrNoSpanContext
	case err != nil:
		return nil, err
	case sc == nil:
		return nil, stackz.ErrNoSpanContext
	}
	return SpanContext{SpanContext: sc}, nil
}

// Inject implements stackz.Backend. The carrier is only written to.
func (b *Backend) Inject(sc stackz.SpanContext, c stackz.Carrier) error {
	osc, ok := sc.(SpanContext)
	if !ok || !osc.IsValid() {
		return ErrForeignSpanContext
	}
	return b.tracer.Inject(osc.SpanContext, opentracing.HTTPHeaders, stackz.WriteOnly(c))
}

// Span adapts opentracing.Span to stackz.Span.
type Span struct {
	span opentracing.Span
}

var _ stackz.Span = (*Span)(nil)

// Unwrap returns the underlying opentracing span.
func (s *Span) Unwrap() opentracing.Span {
	return s.span
}

func (s *Span) Context() stackz.SpanContext {
	return SpanContext{SpanContext: s.span.Context()}
}

func (s *Span) SetName(name stackz.Key) {
	s.span.SetOperationName(name)
}

func (s *Span) SetTag(key stackz.Tag, value any) {
	s.span.SetTag(key, value)
}

// LogError logs err with the standard error event fields. Recovered panics
// also log their stack.
func (s *Span) LogError(err error) {
	if err == nil {
		return
	}
	fields := []otlog.Field{
		otlog.String("event", "error"),
		otlog.Error(err),
		otlog.String("message", err.Error()),
	}
	var pe *stackz.PanicError
	if errors.As(err, &pe) {
		fields = append(fields, otlog.String("stack", string(pe.Stack)))
	}
	ext.Error.Set(s.span, true)
	s.span.LogFields(fields...)
}

func (s *Span) Finish() {
	s.span.Finish()
}
