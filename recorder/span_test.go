package recorder

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/zoobzio/stackz"
)

func newActive(t *testing.T) (*Tracer, *ActiveSpan) {
	t.Helper()
	tracer := New()
	t.Cleanup(tracer.Close)
	return tracer, tracer.StartSpan("test", stackz.StartOptions{}).(*ActiveSpan)
}

func TestActiveSpanSetTag(t *testing.T) {
	_, span := newActive(t)

	tests := []struct {
		value any
		want  string
	}{
		{"value", "value"},
		{true, "true"},
		{404, "404"},
		{int64(7), "7"},
		{1.5, "1.5"},
		{fmt.Errorf("bad"), "bad"},
		{time.Second, "1s"},
		{nil, ""},
	}
	for i, tt := range tests {
		key := fmt.Sprintf("k%d", i)
		span.SetTag(key, tt.value)
		got, ok := span.GetTag(key)
		if !ok {
			t.Errorf("Expected tag %s to be set", key)
		}
		if got != tt.want {
			t.Errorf("SetTag(%v): expected %q, got %q", tt.value, tt.want, got)
		}
	}
}

func TestActiveSpanGetTagMissing(t *testing.T) {
	_, span := newActive(t)

	if _, ok := span.GetTag("missing"); ok {
		t.Error("Expected missing tag to report false")
	}
}

func TestActiveSpanSetName(t *testing.T) {
	tracer := New()
	defer tracer.Close()
	collector := newSyncCollector(t, tracer)

	span := tracer.StartSpan("GET /users/42", stackz.StartOptions{})
	span.SetName("GET /users/{id}")
	span.Finish()
	span.SetName("ignored")

	spans := collector.Export()
	if len(spans) != 1 || spans[0].Name != "GET /users/{id}" {
		t.Errorf("Expected renamed span, got %+v", spans)
	}
}

func TestConcurrentTagSetting(t *testing.T) {
	_, span := newActive(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			span.SetTag(fmt.Sprintf("key-%d", i), i)
			span.GetTag(fmt.Sprintf("key-%d", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		if _, ok := span.GetTag(fmt.Sprintf("key-%d", i)); !ok {
			t.Errorf("Expected key-%d to be set", i)
		}
	}
}

func TestActiveSpanFinish(t *testing.T) {
	fakeClock := clockz.NewFakeClock()
	tracer := New(WithClock(fakeClock))
	defer tracer.Close()
	collector := newSyncCollector(t, tracer)

	span := tracer.StartSpan("test", stackz.StartOptions{}).(*ActiveSpan)
	fakeClock.Advance(5 * time.Millisecond)
	span.Finish()

	fakeClock.Advance(5 * time.Millisecond)
	span.Finish()
	span.SetTag("late", "value")

	spans := collector.Export()
	if len(spans) != 1 {
		t.Fatalf("Expected second Finish to be a no-op, got %d spans", len(spans))
	}
	if spans[0].Duration != 5*time.Millisecond {
		t.Errorf("Expected duration 5ms, got %v", spans[0].Duration)
	}
	if _, ok := span.GetTag("late"); ok {
		t.Error("Expected tags set after Finish to be ignored")
	}
}

func TestActiveSpanFinishedCopyIsolated(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	var received Span
	tracer.OnSpanComplete(func(s Span) { received = s })

	span := tracer.StartSpan("op", stackz.StartOptions{Tags: map[stackz.Tag]any{"a": "1"}})
	span.Finish()

	received.Tags["a"] = "changed"
	if v, _ := span.(*ActiveSpan).GetTag("a"); v != "1" {
		t.Errorf("Expected handler copy to be isolated, got %q", v)
	}
}

func TestActiveSpanContext(t *testing.T) {
	_, span := newActive(t)

	sc, ok := span.Context().(SpanContext)
	if !ok {
		t.Fatalf("Expected recorder SpanContext, got %T", span.Context())
	}
	if sc.TraceID != span.TraceID() || sc.SpanID != span.SpanID() {
		t.Errorf("Expected context %s/%s, got %s/%s", span.TraceID(), span.SpanID(), sc.TraceID, sc.SpanID)
	}
	if !sc.IsValid() {
		t.Error("Expected valid span context")
	}
}
