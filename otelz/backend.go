// Package otelz drives an OpenTelemetry TracerProvider as a stackz.Backend.
//
// Span kinds follow the span.kind tag given at start. An error=true tag sets
// the span status to codes.Error, and LogError records an exception event.
package otelz

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoobzio/stackz"
)

// DefaultInstrumentationName names the otel Tracer when none is configured.
const DefaultInstrumentationName = "github.com/zoobzio/stackz"

// ErrForeignSpanContext reports a span context produced by another backend.
var ErrForeignSpanContext = errors.New("otelz: span context from another backend")

type config struct {
	provider   trace.TracerProvider
	propagator propagation.TextMapPropagator
	name       string
}

// Option configures a Backend.
type Option func(*config)

// WithTracerProvider sets the provider. Defaults to otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		if tp != nil {
			c.provider = tp
		}
	}
}

// WithPropagator sets the propagator. Defaults to W3C trace context plus baggage.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *config) {
		if p != nil {
			c.propagator = p
		}
	}
}

// WithInstrumentationName sets the instrumentation scope name.
func WithInstrumentationName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// Backend implements stackz.Backend on top of OpenTelemetry.
type Backend struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

var _ stackz.Backend = (*Backend)(nil)

// New creates a Backend.
func New(opts ...Option) *Backend {
	cfg := &config{
		name: DefaultInstrumentationName,
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.provider == nil {
		cfg.provider = otel.GetTracerProvider()
	}
	return &Backend{
		tracer:     cfg.provider.Tracer(cfg.name),
		propagator: cfg.propagator,
	}
}

// SpanContext wraps an otel trace.SpanContext.
type SpanContext struct {
	trace.SpanContext
}

// IsValid implements stackz.SpanContext.
func (sc SpanContext) IsValid() bool {
	return sc.SpanContext.IsValid()
}

// StartSpan implements stackz.Backend.
func (b *Backend) StartSpan(name stackz.Key, opts stackz.StartOptions) stackz.Span {
	ctx := context.Background()
	if parent, ok := opts.Parent.(SpanContext); ok && parent.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, parent.SpanContext)
	}

	startOpts := []trace.SpanStartOption{trace.WithSpanKind(spanKind(opts.Tags))}
	attrs := make([]attribute.KeyValue, 0, len(opts.Tags))
	for k, v := range opts.Tags {
		if k == stackz.TagSpanKind {
			continue
		}
		attrs = append(attrs, attributeOf(k, v))
	}
	if len(attrs) > 0 {
		startOpts = append(startOpts, trace.WithAttributes(attrs...))
	}

	_, span := b.tracer.Start(ctx, name, startOpts...)
	s := &Span{span: span}
	if v, ok := opts.Tags[stackz.TagError]; ok {
		s.markError(v)
	}
	return s
}

// Extract implements stackz.Backend.
func (b *Backend) Extract(h http.Header) (stackz.SpanContext, error) {
	ctx := b.propagator.Extract(context.Background(), propagation.HeaderCarrier(h))
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil, stackz.ErrNoSpanContext
	}
	return SpanContext{SpanContext: sc}, nil
}

// Inject implements stackz.Backend. The carrier is only written to.
func (b *Backend) Inject(sc stackz.SpanContext, c stackz.Carrier) error {
	osc, ok := sc.(SpanContext)
	if !ok {
		return ErrForeignSpanContext
	}
	ctx := trace.ContextWithSpanContext(context.Background(), osc.SpanContext)
	b.propagator.Inject(ctx, stackz.WriteOnly(c))
	return nil
}

// Span adapts trace.Span to stackz.Span.
type Span struct {
	span trace.Span
}

var _ stackz.Span = (*Span)(nil)

// Unwrap returns the underlying otel span.
func (s *Span) Unwrap() trace.Span {
	return s.span
}

func (s *Span) Context() stackz.SpanContext {
	return SpanContext{SpanContext: s.span.SpanContext()}
}

func (s *Span) SetName(name stackz.Key) {
	s.span.SetName(name)
}

func (s *Span) SetTag(key stackz.Tag, value any) {
	if key == stackz.TagError {
		s.markError(value)
	}
	s.span.SetAttributes(attributeOf(key, value))
}

// LogError records err as an exception event and sets the error status.
// Recovered panics carry their stack trace.
func (s *Span) LogError(err error) {
	if err == nil {
		return
	}
	var opts []trace.EventOption
	var pe *stackz.PanicError
	if errors.As(err, &pe) {
		opts = append(opts, trace.WithAttributes(attribute.String("exception.stacktrace", string(pe.Stack))))
	}
	s.span.RecordError(err, opts...)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *Span) Finish() {
	s.span.End()
}

func (s *Span) markError(v any) {
	if b, ok := v.(bool); ok && b {
		s.span.SetStatus(codes.Error, "")
	}
}

func spanKind(tags map[stackz.Tag]any) trace.SpanKind {
	switch tags[stackz.TagSpanKind] {
	case stackz.KindServer:
		return trace.SpanKindServer
	case stackz.KindClient:
		return trace.SpanKindClient
	default:
		return trace.SpanKindInternal
	}
}

func attributeOf(key stackz.Tag, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case error:
		return attribute.String(key, v.Error())
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
