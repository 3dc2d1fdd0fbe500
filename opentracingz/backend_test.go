package opentracingz

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/stackz"
)

func TestStartSpanWithParentAndTags(t *testing.T) {
	mt := mocktracer.New()
	b := New(mt)

	parent := b.StartSpan("parent", stackz.StartOptions{})
	child := b.StartSpan("child", stackz.StartOptions{
		Parent: parent.Context(),
		Tags:   map[stackz.Tag]any{stackz.TagSpanKind: stackz.KindClient},
	})
	child.Finish()
	parent.Finish()

	spans := mt.FinishedSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "child", spans[0].OperationName)
	assert.Equal(t, spans[1].SpanContext.SpanID, spans[0].ParentID)
	assert.Equal(t, stackz.KindClient, spans[0].Tag(stackz.TagSpanKind))
}

func TestSetNameAndTag(t *testing.T) {
	mt := mocktracer.New()
	b := New(mt)

	span := b.StartSpan("GET /users/42", stackz.StartOptions{})
	span.SetName("GET /users/{id}")
	span.SetTag("id", "42")
	span.Finish()

	spans := mt.FinishedSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /users/{id}", spans[0].OperationName)
	assert.Equal(t, "42", spans[0].Tag("id"))
}

func TestLogError(t *testing.T) {
	mt := mocktracer.New()
	b := New(mt)

	span := b.StartSpan("op", stackz.StartOptions{})
	span.LogError(errors.New("boom"))
	span.LogError(stackz.NewPanicError("kaboom"))
	span.Finish()

	spans := mt.FinishedSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, true, spans[0].Tag("error"))

	logs := spans[0].Logs()
	require.Len(t, logs, 2)
	fields := map[string]string{}
	for _, f := range logs[1].Fields {
		fields[f.Key] = f.ValueString
	}
	assert.Equal(t, "error", fields["event"])
	assert.NotEmpty(t, fields["stack"])
}

func TestInjectExtract(t *testing.T) {
	mt := mocktracer.New()
	b := New(mt)

	span := b.StartSpan("op", stackz.StartOptions{})
	h := http.Header{}
	require.NoError(t, b.Inject(span.Context(), stackz.HeaderCarrier(h)))
	assert.NotEmpty(t, h)

	sc, err := b.Extract(h)
	require.NoError(t, err)
	assert.Equal(t,
		span.Context().(SpanContext).SpanContext.(mocktracer.MockSpanContext).SpanID,
		sc.(SpanContext).SpanContext.(mocktracer.MockSpanContext).SpanID)

	_, err = b.Extract(http.Header{})
	assert.ErrorIs(t, err, stackz.ErrNoSpanContext)
}

func TestInjectRejectsForeignContext(t *testing.T) {
	b := New(mocktracer.New())
	err := b.Inject(SpanContext{}, stackz.HeaderCarrier(http.Header{}))
	assert.ErrorIs(t, err, ErrForeignSpanContext)
}

func TestTraceBlockThroughTracer(t *testing.T) {
	mt := mocktracer.New()
	tracer := stackz.New(New(mt), stackz.WithStaticTag("service", "checkout"))

	ctx, server := tracer.StartServer(context.Background(), &stackz.Call{
		Method: http.MethodGet,
		Path:   "/orders/7",
		Route:  "/orders/{id}",
	})
	wantErr := errors.New("not found")
	err := tracer.Trace(ctx, "load", func(context.Context, stackz.Span) error {
		return wantErr
	})
	server.Finish(http.StatusNotFound)

	assert.Same(t, wantErr, err)
	spans := mt.FinishedSpans()
	require.Len(t, spans, 2)
	block, srv := spans[0], spans[1]
	assert.Equal(t, "load", block.OperationName)
	assert.Equal(t, srv.SpanContext.SpanID, block.ParentID)
	assert.Equal(t, true, block.Tag("error"))
	assert.Equal(t, "checkout", block.Tag("service"))
	assert.Equal(t, "GET /orders/{id}", srv.OperationName)
	assert.Equal(t, "7", srv.Tag("id"))
	assert.Equal(t, 404, srv.Tag(stackz.TagHTTPStatus))
	assert.Equal(t, true, srv.Tag(stackz.TagError))
}
