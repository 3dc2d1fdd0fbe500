package stackz

import (
	"net/http"
)

// Middleware traces every request served by next. The span is renamed after
// the mux has resolved its pattern, so requests routed by http.ServeMux are
// named by route template.
func (t *Tracer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := t.StartServer(r.Context(), &Call{
			Header: r.Header,
			Method: r.Method,
			Path:   r.URL.Path,
		})
		if span == nil {
			next.ServeHTTP(w, r)
			return
		}

		rw := &statusWriter{ResponseWriter: w}
		req := r.WithContext(ctx)
		defer func() {
			if p := recover(); p != nil {
				span.Fail(p)
				span.Finish(rw.status)
				panic(p)
			}
			if route, ok := routeFromPattern(req.Pattern); ok {
				span.SetRoute(route.Template)
			}
			span.Finish(rw.statusOrOK())
		}()
		next.ServeHTTP(rw, req)
	})
}

// statusWriter remembers the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.status = http.StatusOK
		w.wrote = true
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// statusOrOK mirrors net/http, which sends 200 for a handler that wrote nothing.
func (w *statusWriter) statusOrOK() int {
	if !w.wrote {
		return http.StatusOK
	}
	return w.status
}

// Transport wraps base so every request it sends is traced as a client span
// and carries the propagated context. A nil base uses http.DefaultTransport.
func (t *Tracer) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{tracer: t, base: base}
}

type transport struct {
	tracer *Tracer
	base   http.RoundTripper
}

// RoundTrip implements http.RoundTripper. The caller's request is not modified.
func (tr *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	ctx, span := tr.tracer.StartClient(req.Context(), &ClientCall{
		Carrier: HeaderCarrier(out.Header),
		Method:  req.Method,
		Host:    req.URL.Host,
		Path:    req.URL.EscapedPath(),
	})
	out = out.WithContext(ctx)

	resp, err := tr.base.RoundTrip(out)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	span.Finish(status, err)
	return resp, err
}

// CloseIdleConnections forwards to base when it supports it.
func (tr *transport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if c, ok := tr.base.(closeIdler); ok {
		c.CloseIdleConnections()
	}
}
