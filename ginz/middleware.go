// Package ginz traces gin requests with a stackz.Tracer.
package ginz

import (
	"github.com/gin-gonic/gin"

	"github.com/zoobzio/stackz"
)

// Middleware creates gin middleware that opens a server span per request.
// Spans are named by the matched route, e.g. "GET /users/:id", and the
// request context carries the lineage for handlers and outbound calls.
func Middleware(tracer *stackz.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.StartServer(c.Request.Context(), &stackz.Call{
			Header: c.Request.Header,
			Method: c.Request.Method,
			Path:   c.Request.URL.Path,
			Route:  c.FullPath(),
		})
		if span == nil {
			c.Next()
			return
		}

		c.Request = c.Request.WithContext(ctx)

		defer func() {
			if p := recover(); p != nil {
				span.Fail(p)
				span.Finish(0)
				panic(p)
			}
			if len(c.Errors) > 0 {
				span.Fail(c.Errors.Last())
			}
			span.Finish(c.Writer.Status())
		}()

		c.Next()
	}
}
