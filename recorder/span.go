package recorder

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/zoobzio/stackz"
)

// Span represents a single unit of work in a recorded trace.
// Spans handed to handlers and collectors are copies and safe to keep.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	Tags      map[string]string `json:"tags,omitempty"`
	Logs      []Log             `json:"logs,omitempty"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration"`
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Name      string            `json:"name"`
}

// Log is a timestamped set of fields attached to a span.
type Log struct {
	Time   time.Time         `json:"time"`
	Fields map[string]string `json:"fields"`
}

// Tag returns a tag value.
func (s Span) Tag(key string) (string, bool) {
	v, ok := s.Tags[key]
	return v, ok
}

// Errored reports whether the span carries error=true.
func (s Span) Errored() bool {
	return s.Tags[stackz.TagError] == "true"
}

// Kind returns the span.kind tag, empty for manual spans.
func (s Span) Kind() string {
	return s.Tags[stackz.TagSpanKind]
}

// clone returns a deep copy.
func (s Span) clone() Span {
	out := s
	if s.Tags != nil {
		out.Tags = make(map[string]string, len(s.Tags))
		for k, v := range s.Tags {
			out.Tags[k] = v
		}
	}
	if s.Logs != nil {
		out.Logs = make([]Log, len(s.Logs))
		for i, l := range s.Logs {
			fields := make(map[string]string, len(l.Fields))
			for k, v := range l.Fields {
				fields[k] = v
			}
			out.Logs[i] = Log{Time: l.Time, Fields: fields}
		}
	}
	return out
}

// ActiveSpan is an in-flight span. It implements stackz.Span.
// Safe for concurrent use by multiple goroutines.
type ActiveSpan struct {
	span     *Span
	tracer   *Tracer
	mu       sync.Mutex
	finished bool
}

var _ stackz.Span = (*ActiveSpan)(nil)

// Context returns the propagated identity of the span.
func (a *ActiveSpan) Context() stackz.SpanContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return SpanContext{TraceID: a.span.TraceID, SpanID: a.span.SpanID, Sampled: true}
}

// SetName renames the span. No-op once finished.
func (a *ActiveSpan) SetName(name stackz.Key) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finished {
		return
	}
	a.span.Name = name
}

// SetTag adds a key-value pair to the span. Values are stored as text.
// No-op if span is already finished.
func (a *ActiveSpan) SetTag(key stackz.Tag, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finished {
		return
	}
	if a.span.Tags == nil {
		a.span.Tags = make(map[string]string)
	}
	a.span.Tags[key] = formatTag(value)
}

// GetTag retrieves a tag value by key.
func (a *ActiveSpan) GetTag(key stackz.Tag) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.span.Tags == nil {
		return "", false
	}
	value, ok := a.span.Tags[key]
	return value, ok
}

// LogError appends an error log. Recovered panics also carry their stack.
func (a *ActiveSpan) LogError(err error) {
	if err == nil {
		return
	}
	fields := map[string]string{
		"event":      "error",
		"error.kind": fmt.Sprintf("%T", err),
		"message":    err.Error(),
	}
	var pe *stackz.PanicError
	if errors.As(err, &pe) {
		fields["error.kind"] = "panic"
		fields["stack"] = string(pe.Stack)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finished {
		return
	}
	a.span.Logs = append(a.span.Logs, Log{Time: a.tracer.clock.Now(), Fields: fields})
}

// Finish completes the span and hands a copy to the tracer's collectors and
// handlers. Safe to call multiple times - subsequent calls are no-ops.
func (a *ActiveSpan) Finish() {
	a.mu.Lock()
	if a.finished {
		a.mu.Unlock()
		return
	}
	a.finished = true
	a.span.EndTime = a.tracer.clock.Now()
	a.span.Duration = a.span.EndTime.Sub(a.span.StartTime)
	done := a.span.clone()
	a.mu.Unlock()

	a.tracer.collectSpan(done)
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.TraceID
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.SpanID
}

// ParentID returns the span ID of the parent, empty for root spans.
func (a *ActiveSpan) ParentID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span.ParentID
}

func formatTag(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
