// Package promz exports span metrics recorded by a recorder.Tracer to
// Prometheus.
package promz

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zoobzio/stackz/recorder"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "stackz"

// Metrics holds the span metrics.
type Metrics struct {
	SpansTotal   *prometheus.CounterVec
	SpanDuration *prometheus.HistogramVec
	SpanErrors   *prometheus.CounterVec
}

// NewMetrics registers the span metrics with reg. A nil reg uses
// prometheus.DefaultRegisterer; an empty namespace uses DefaultNamespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		SpansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spans_total",
				Help:      "Total number of finished spans",
			},
			[]string{"name", "kind", "error"},
		),
		SpanDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "span_duration_seconds",
				Help:      "Span duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"name", "kind"},
		),
		SpanErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "span_errors_total",
				Help:      "Total number of errored spans",
			},
			[]string{"name", "kind"},
		),
	}
}

// Observe records one finished span.
func (m *Metrics) Observe(span recorder.Span) {
	kind := span.Kind()
	if kind == "" {
		kind = "internal"
	}
	errored := span.Errored()

	m.SpansTotal.WithLabelValues(span.Name, kind, strconv.FormatBool(errored)).Inc()
	m.SpanDuration.WithLabelValues(span.Name, kind).Observe(span.Duration.Seconds())
	if errored {
		m.SpanErrors.WithLabelValues(span.Name, kind).Inc()
	}
}

// Attach observes every span t completes and exposes its dropped span count.
// It returns the handler ID for recorder.Tracer.RemoveHandler.
func (m *Metrics) Attach(reg prometheus.Registerer, namespace string, t *recorder.Tracer) uint64 {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	promauto.With(reg).NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_spans_total",
			Help:      "Spans dropped because the handler queue was full",
		},
		func() float64 { return float64(t.DroppedSpans()) },
	)
	return t.OnSpanComplete(m.Observe)
}
