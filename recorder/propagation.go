package recorder

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/zoobzio/stackz"
)

// Propagation headers. The W3C traceparent header is authoritative; the
// X-Trace-ID / X-Span-ID pair is accepted on extraction from older callers.
const (
	HeaderTraceparent = "traceparent"
	HeaderTraceID     = "X-Trace-ID"
	HeaderSpanID      = "X-Span-ID"
)

const (
	zeroTraceID = "00000000000000000000000000000000"
	zeroSpanID  = "0000000000000000"
)

var (
	// ErrMalformedTraceparent reports a traceparent header that fails validation.
	ErrMalformedTraceparent = errors.New("recorder: malformed traceparent")

	// ErrForeignSpanContext reports a span context produced by another backend.
	ErrForeignSpanContext = errors.New("recorder: span context from another backend")
)

// SpanContext identifies a recorded span across process boundaries.
type SpanContext struct {
	TraceID string
	SpanID  string
	Sampled bool
}

var _ stackz.SpanContext = SpanContext{}

// IsValid reports whether both IDs are well formed and non-zero.
func (sc SpanContext) IsValid() bool {
	return isValidTraceID(sc.TraceID) && isValidSpanID(sc.SpanID)
}

// Traceparent renders sc as a W3C traceparent value, or "" if sc is invalid.
func (sc SpanContext) Traceparent() string {
	if !sc.IsValid() {
		return ""
	}
	flags := "00"
	if sc.Sampled {
		flags = "01"
	}
	return "00-" + strings.ToLower(sc.TraceID) + "-" + strings.ToLower(sc.SpanID) + "-" + flags
}

// ParseTraceparent decodes a W3C traceparent value. Future versions may carry
// extra fields; version 00 must be exactly 55 characters.
func ParseTraceparent(v string) (SpanContext, error) {
	if len(v) < 55 {
		return SpanContext{}, fmt.Errorf("%w: too short", ErrMalformedTraceparent)
	}
	parts := strings.SplitN(v, "-", 5)
	if len(parts) < 4 {
		return SpanContext{}, fmt.Errorf("%w: missing fields", ErrMalformedTraceparent)
	}
	version, traceID, spanID, flags := parts[0], parts[1], parts[2], parts[3]
	if len(version) != 2 || !isHex(version) || version == "ff" {
		return SpanContext{}, fmt.Errorf("%w: version %q", ErrMalformedTraceparent, version)
	}
	if version == "00" && len(v) != 55 {
		return SpanContext{}, fmt.Errorf("%w: trailing data", ErrMalformedTraceparent)
	}
	if !isValidTraceID(traceID) {
		return SpanContext{}, fmt.Errorf("%w: trace id", ErrMalformedTraceparent)
	}
	if !isValidSpanID(spanID) {
		return SpanContext{}, fmt.Errorf("%w: span id", ErrMalformedTraceparent)
	}
	if len(flags) != 2 || !isHex(flags) {
		return SpanContext{}, fmt.Errorf("%w: flags", ErrMalformedTraceparent)
	}
	bits, _ := strconv.ParseUint(flags, 16, 8)
	return SpanContext{
		TraceID: strings.ToLower(traceID),
		SpanID:  strings.ToLower(spanID),
		Sampled: bits&1 == 1,
	}, nil
}

// Extract implements stackz.Backend.
func (t *Tracer) Extract(h http.Header) (stackz.SpanContext, error) {
	if v := h.Get(HeaderTraceparent); v != "" {
		sc, err := ParseTraceparent(v)
		if err != nil {
			return nil, err
		}
		return sc, nil
	}
	traceID, spanID := h.Get(HeaderTraceID), h.Get(HeaderSpanID)
	if traceID == "" && spanID == "" {
		return nil, stackz.ErrNoSpanContext
	}
	sc := SpanContext{TraceID: strings.ToLower(traceID), SpanID: strings.ToLower(spanID), Sampled: true}
	if !sc.IsValid() {
		return nil, fmt.Errorf("%w: invalid %s/%s pair", ErrMalformedTraceparent, HeaderTraceID, HeaderSpanID)
	}
	return sc, nil
}

// Inject implements stackz.Backend. Only traceparent is written.
func (t *Tracer) Inject(sc stackz.SpanContext, c stackz.Carrier) error {
	rsc, ok := sc.(SpanContext)
	if !ok {
		return ErrForeignSpanContext
	}
	v := rsc.Traceparent()
	if v == "" {
		return nil
	}
	c.Set(HeaderTraceparent, v)
	return nil
}

func isValidTraceID(s string) bool {
	return len(s) == 32 && isHex(s) && s != zeroTraceID
}

func isValidSpanID(s string) bool {
	return len(s) == 16 && isHex(s) && s != zeroSpanID
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
