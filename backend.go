package stackz

import (
	"net/http"
)

// SpanContext is the propagated identity of a span. Its concrete type belongs
// to the Backend that produced it.
type SpanContext interface {
	// IsValid reports whether the context can parent a new span.
	IsValid() bool
}

// Span is an in-flight span owned by a Backend.
// Finish must be called exactly once; later calls are ignored by every
// Backend shipped with stackz.
type Span interface {
	Context() SpanContext
	SetName(name Key)
	SetTag(key Tag, value any)
	// LogError attaches failure details to the span as a log or event.
	LogError(err error)
	Finish()
}

// StartOptions configures a span at start time.
type StartOptions struct {
	// Parent is nil for a root span.
	Parent SpanContext
	// Tags are set before the span is returned. span.kind is honored by
	// backends that fix the kind at creation.
	Tags map[Tag]any
}

// Backend is the tracing capability stackz drives. It owns span identity,
// storage, export and the wire format of propagated context.
// Implementations must allow concurrent use from independent lineages.
type Backend interface {
	StartSpan(name Key, opts StartOptions) Span
	// Extract decodes a parent from inbound headers. It returns
	// ErrNoSpanContext when none is present.
	Extract(h http.Header) (SpanContext, error)
	Inject(sc SpanContext, c Carrier) error
}

// NoopBackend starts spans that record nothing.
type NoopBackend struct{}

var _ Backend = NoopBackend{}

// StartSpan implements Backend.
func (NoopBackend) StartSpan(Key, StartOptions) Span { return noopSpan{} }

// Extract implements Backend.
func (NoopBackend) Extract(http.Header) (SpanContext, error) { return nil, ErrNoSpanContext }

// Inject implements Backend.
func (NoopBackend) Inject(SpanContext, Carrier) error { return nil }

type noopSpan struct{}

type noopContext struct{}

func (noopContext) IsValid() bool { return false }

func (noopSpan) Context() SpanContext { return noopContext{} }
func (noopSpan) SetName(Key)          {}
func (noopSpan) SetTag(Tag, any)      {}
func (noopSpan) LogError(error)       {}
func (noopSpan) Finish()              {}
