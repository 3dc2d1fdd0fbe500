// Package restyz traces requests sent by a resty client.
package restyz

import (
	"github.com/go-resty/resty/v2"

	"github.com/zoobzio/stackz"
)

// Instrument wraps the transport of c so every attempt it sends, retries
// included, is traced as a client span of the request's lineage. Requests
// join a lineage through Request.SetContext.
func Instrument(c *resty.Client, tracer *stackz.Tracer) *resty.Client {
	return c.SetTransport(tracer.Transport(c.GetClient().Transport))
}

// New returns a resty client instrumented with tracer.
func New(tracer *stackz.Tracer) *resty.Client {
	return Instrument(resty.New(), tracer)
}
