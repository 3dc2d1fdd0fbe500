// Package recorder is an in-process stackz.Backend that keeps finished spans
// in memory for inspection and batch export.
//
// Core Components:
//   - Tracer: starts spans, assigns IDs and fans finished spans out.
//   - ActiveSpan: thread-safe wrapper for an in-flight span.
//   - Span: the immutable record handed to collectors and handlers.
//   - Collector: buffers completed spans for export.
//   - IDPool: pre-generated random IDs.
//
// Basic Usage:
//
//	rec := recorder.New()
//	defer rec.Close()
//
//	collector := recorder.NewCollector("export", 1000)
//	defer collector.Close()
//	rec.AddCollector(collector)
//
//	tracer := stackz.New(rec)
//
// Propagation:
//
// Context is injected as a W3C traceparent header. Extraction also accepts an
// X-Trace-ID / X-Span-ID pair.
//
// Memory Management:
//
// Collectors shrink their buffers after export. Under high load, spans may be
// dropped to prevent memory exhaustion - use Collector.DroppedCount() to monitor.
//
// Resource Cleanup:
//
// Call Tracer.Close() to stop the ID pools and worker goroutines, and
// Collector.Close() for every collector you created.
package recorder
