package stackz

import (
	"net/http"
)

// HeaderAuthorization is never handed to a Backend for context extraction.
const HeaderAuthorization = "Authorization"

// Carrier is the outbound side of context propagation. It only appends.
type Carrier interface {
	Set(key, value string)
}

// HeaderCarrier appends injected context to an http.Header.
type HeaderCarrier http.Header

// Set implements Carrier. Values are appended, never replaced.
func (c HeaderCarrier) Set(key, value string) {
	if key == "" || value == "" {
		return
	}
	http.Header(c).Add(key, value)
}

// CarrierFunc adapts a function to Carrier.
type CarrierFunc func(key, value string)

// Set implements Carrier.
func (f CarrierFunc) Set(key, value string) { f(key, value) }

// WriteOnlyCarrier exposes a Carrier through the read/write shape several
// propagation APIs require. Any read panics with ErrWriteOnlyCarrier.
type WriteOnlyCarrier struct {
	Carrier
}

// WriteOnly wraps c.
func WriteOnly(c Carrier) WriteOnlyCarrier {
	return WriteOnlyCarrier{Carrier: c}
}

// Get panics; outbound carriers cannot be read.
func (WriteOnlyCarrier) Get(string) string { panic(ErrWriteOnlyCarrier) }

// Keys panics; outbound carriers cannot be read.
func (WriteOnlyCarrier) Keys() []string { panic(ErrWriteOnlyCarrier) }

// ForeachKey panics; outbound carriers cannot be read.
func (WriteOnlyCarrier) ForeachKey(func(key, val string) error) error {
	panic(ErrWriteOnlyCarrier)
}

// StripAuthorization returns a copy of h without the Authorization header.
func StripAuthorization(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	out := h.Clone()
	out.Del(HeaderAuthorization)
	return out
}
