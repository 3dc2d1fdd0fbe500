package promz

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/stackz"
	"github.com/zoobzio/stackz/recorder"
)

func TestObserveCountsSpans(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.Observe(recorder.Span{Name: "GET /users/{id}", Tags: map[string]string{stackz.TagSpanKind: stackz.KindServer}})
	m.Observe(recorder.Span{Name: "GET /users/{id}", Tags: map[string]string{
		stackz.TagSpanKind: stackz.KindServer,
		stackz.TagError:    "true",
	}})
	m.Observe(recorder.Span{Name: "load"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpansTotal.WithLabelValues("GET /users/{id}", "server", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpansTotal.WithLabelValues("GET /users/{id}", "server", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpansTotal.WithLabelValues("load", "internal", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpanErrors.WithLabelValues("GET /users/{id}", "server")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.SpanDuration))
}

func TestAttachObservesTracer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "")

	rec := recorder.New()
	defer rec.Close()
	m.Attach(reg, "", rec)
	tracer := stackz.New(rec)

	err := tracer.Trace(context.Background(), "charge", func(context.Context, stackz.Span) error {
		return errors.New("declined")
	})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpansTotal.WithLabelValues("charge", "internal", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SpanErrors.WithLabelValues("charge", "internal")))

	count, err := testutil.GatherAndCount(reg, "stackz_dropped_spans_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
