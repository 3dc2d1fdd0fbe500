package otelz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoobzio/stackz"
)

func newTestBackend(t *testing.T) (*Backend, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return New(WithTracerProvider(tp)), exporter
}

func attr(span tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestStartSpanKindsAndAttributes(t *testing.T) {
	b, exporter := newTestBackend(t)

	b.StartSpan("GET /users/{id}", stackz.StartOptions{Tags: map[stackz.Tag]any{
		stackz.TagSpanKind:   stackz.KindServer,
		stackz.TagHTTPMethod: "GET",
	}}).Finish()
	b.StartSpan("Call to GET api/users", stackz.StartOptions{Tags: map[stackz.Tag]any{
		stackz.TagSpanKind: stackz.KindClient,
	}}).Finish()
	b.StartSpan("manual", stackz.StartOptions{}).Finish()

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind)
	assert.Equal(t, trace.SpanKindClient, spans[1].SpanKind)
	assert.Equal(t, trace.SpanKindInternal, spans[2].SpanKind)

	v, ok := attr(spans[0], stackz.TagHTTPMethod)
	require.True(t, ok)
	assert.Equal(t, "GET", v.AsString())
	_, ok = attr(spans[0], stackz.TagSpanKind)
	assert.False(t, ok, "span.kind is carried by the span kind, not an attribute")
}

func TestParentChild(t *testing.T) {
	b, exporter := newTestBackend(t)

	parent := b.StartSpan("parent", stackz.StartOptions{})
	child := b.StartSpan("child", stackz.StartOptions{Parent: parent.Context()})
	child.Finish()
	parent.Finish()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext.TraceID(), spans[0].SpanContext.TraceID())
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
}

func TestSetTagErrorSetsStatus(t *testing.T) {
	b, exporter := newTestBackend(t)

	span := b.StartSpan("op", stackz.StartOptions{})
	span.SetTag(stackz.TagHTTPStatus, 500)
	span.SetTag(stackz.TagError, true)
	span.Finish()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	v, ok := attr(spans[0], stackz.TagHTTPStatus)
	require.True(t, ok)
	assert.Equal(t, int64(500), v.AsInt64())
}

func TestLogErrorRecordsException(t *testing.T) {
	b, exporter := newTestBackend(t)

	span := b.StartSpan("op", stackz.StartOptions{})
	span.LogError(errors.New("boom"))
	span.LogError(stackz.NewPanicError("kaboom"))
	span.Finish()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 2)
	assert.Equal(t, "exception", spans[0].Events[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)

	var stack bool
	for _, kv := range spans[0].Events[1].Attributes {
		if kv.Key == "exception.stacktrace" && kv.Value.AsString() != "" {
			stack = true
		}
	}
	assert.True(t, stack, "panic event should carry a stack trace")
}

func TestInjectExtract(t *testing.T) {
	b, _ := newTestBackend(t)

	span := b.StartSpan("op", stackz.StartOptions{})
	h := http.Header{}
	require.NoError(t, b.Inject(span.Context(), stackz.HeaderCarrier(h)))
	assert.NotEmpty(t, h.Get("traceparent"))

	sc, err := b.Extract(h)
	require.NoError(t, err)
	assert.Equal(t, span.Context().(SpanContext).TraceID(), sc.(SpanContext).TraceID())

	_, err = b.Extract(http.Header{})
	assert.ErrorIs(t, err, stackz.ErrNoSpanContext)
}

type foreign struct{}

func (foreign) IsValid() bool { return true }

func TestInjectForeignContext(t *testing.T) {
	b, _ := newTestBackend(t)
	err := b.Inject(foreign{}, stackz.HeaderCarrier(http.Header{}))
	assert.ErrorIs(t, err, ErrForeignSpanContext)
}

func TestEndToEndThroughTracer(t *testing.T) {
	b, exporter := newTestBackend(t)
	tracer := stackz.New(b)

	var outbound http.Header
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outbound = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer downstream.Close()

	client := &http.Client{Transport: tracer.Transport(nil)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /greeting/{id}", func(w http.ResponseWriter, r *http.Request) {
		req, _ := http.NewRequestWithContext(r.Context(), http.MethodGet, downstream.URL+"/ping", nil)
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(tracer.Middleware(mux))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/greeting/42")
	require.NoError(t, err)
	resp.Body.Close()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	clientSpan, serverSpan := spans[0], spans[1]
	assert.Equal(t, "GET /greeting/{id}", serverSpan.Name)
	assert.Equal(t, serverSpan.SpanContext.SpanID(), clientSpan.Parent.SpanID())
	assert.Equal(t, trace.SpanKindClient, clientSpan.SpanKind)
	assert.Contains(t, outbound.Get("traceparent"), clientSpan.SpanContext.SpanID().String())
}
