package stackz

import "errors"

var (
	// ErrNoSpanContext is returned by Backend.Extract when the carrier holds no trace context.
	ErrNoSpanContext = errors.New("stackz: no span context in carrier")

	// ErrWriteOnlyCarrier is the panic value raised when an outbound carrier is read.
	ErrWriteOnlyCarrier = errors.New("stackz: carrier is write-only")

	// ErrEmptyStack reports a pop against a missing or empty span stack.
	ErrEmptyStack = errors.New("stackz: span stack is empty")

	// ErrInvalidPattern reports a tag pattern that failed to compile.
	ErrInvalidPattern = errors.New("stackz: invalid tag pattern")

	// ErrInvalidRoute reports a route declaration without a template.
	ErrInvalidRoute = errors.New("stackz: invalid route")
)

// ErrSpanLeftOpen is logged on spans a lineage left open when it ended.
var ErrSpanLeftOpen = errors.New("stackz: span left open when its lineage ended")
