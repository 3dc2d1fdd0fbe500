// Package fiberz traces fiber v3 requests with a stackz.Tracer.
package fiberz

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/zoobzio/stackz"
)

// Middleware creates fiber middleware that opens a server span per request.
// The span is renamed to the matched route once the handler chain returns.
// Handlers read the lineage from c.Context().
func Middleware(tracer *stackz.Tracer) fiber.Handler {
	return func(c fiber.Ctx) error {
		// fiber reuses request buffers; values kept past the handler are copied.
		path := strings.Clone(c.Path())
		ctx, span := tracer.StartServer(c.Context(), &stackz.Call{
			Header: requestHeader(c),
			Method: strings.Clone(c.Method()),
			Path:   path,
		})
		if span == nil {
			return c.Next()
		}
		c.SetContext(ctx)

		defer func() {
			if p := recover(); p != nil {
				span.Fail(p)
				span.Finish(0)
				panic(p)
			}
		}()

		err := c.Next()

		if route := c.Route(); route != nil && route.Path != "" {
			span.SetRoute(strings.Clone(route.Path))
		}
		status := c.Response().StatusCode()
		if err != nil {
			span.Fail(err)
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		span.Finish(status)
		return err
	}
}

func requestHeader(c fiber.Ctx) http.Header {
	h := http.Header{}
	for k, vs := range c.GetReqHeaders() {
		for _, v := range vs {
			h.Add(k, strings.Clone(v))
		}
	}
	return h
}
