// Package stackz instruments inbound and outbound calls with tracing spans and
// keeps track of which span is the current parent for every unit of work.
//
// stackz does not create trace data itself. It drives a Backend (OpenTelemetry,
// OpenTracing or the in-process recorder) and focuses on two things the backend
// cannot do on its own: keeping the active-span stack of each lineage correct
// across goroutines, and turning high-cardinality request paths into stable span
// names plus tags.
//
// Core Components:
//   - Stack: LIFO of active spans owned by exactly one lineage.
//   - Scope: token returned by Activate; Close pops exactly one entry.
//   - Tracer: starts, activates and finishes server, client and manual spans.
//   - Pattern / Route: path normalization by regex table or route template.
//
// Basic Usage:
//
//	tracer := stackz.New(backend, stackz.WithLogger(logger))
//	http.ListenAndServe(":8080", tracer.Middleware(mux))
//
//	// Inside a handler.
//	err := tracer.Trace(r.Context(), "load-user", func(ctx context.Context, span stackz.Span) error {
//		span.SetTag("user.id", id)
//		return load(ctx, id)
//	})
//
// Lineages:
//
// A lineage is one logical thread of control: a request, or a goroutine spawned
// from it. Each lineage owns one Stack carried in its context.Context. Nested
// blocks push and pop the live stack. Spawned goroutines must start from Fork
// (or use Go / Group), which hands the child a new stack seeded with only the
// parent's innermost span. Passing the same context to two goroutines that both
// open spans shares one stack between them and corrupts parent linkage.
//
// Failure Policy:
//
// Tracing is fail-open. A missing stack, an empty stack, a panicking tag
// callback or an absent backend degrade to a missing span or tag and a log
// line, never to a failed request.
package stackz

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string

// Standard tag keys produced by the Tracer.
const (
	TagSpanKind   Tag = "span.kind"
	TagHTTPMethod Tag = "http.method"
	TagHTTPURL    Tag = "http.url"
	TagHTTPStatus Tag = "http.status_code"
	TagError      Tag = "error"
)

// Span kinds.
const (
	KindServer = "server"
	KindClient = "client"
)

// DefaultSpanName names manual spans started without a name.
const DefaultSpanName Key = "defaultSpanName"
