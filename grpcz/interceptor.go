// Package grpcz traces gRPC calls with a stackz.Tracer.
//
// Server spans are named "GRPC /package.Service/Method". gRPC status codes are
// mapped onto HTTP status codes so the usual error rule applies.
package grpcz

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/zoobzio/stackz"
)

// Method is the call method recorded for gRPC spans.
const Method = "GRPC"

// TagStatusCode carries the gRPC status code name.
const TagStatusCode = "rpc.grpc.status_code"

// UnaryServerInterceptor opens a server span around every unary call.
func UnaryServerInterceptor(tracer *stackz.Tracer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		ctx, span := tracer.StartServer(ctx, incomingCall(ctx, info.FullMethod))
		if span == nil {
			return handler(ctx, req)
		}
		defer func() {
			if p := recover(); p != nil {
				span.Fail(p)
				span.Finish(0)
				panic(p)
			}
			finishServer(span, err)
		}()
		return handler(ctx, req)
	}
}

// StreamServerInterceptor opens a server span around every streaming call.
func StreamServerInterceptor(tracer *stackz.Tracer) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		ctx, span := tracer.StartServer(ss.Context(), incomingCall(ss.Context(), info.FullMethod))
		if span == nil {
			return handler(srv, ss)
		}
		defer func() {
			if p := recover(); p != nil {
				span.Fail(p)
				span.Finish(0)
				panic(p)
			}
			finishServer(span, err)
		}()
		return handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// UnaryClientInterceptor opens a client span around every outbound unary call
// and propagates its context in the outgoing metadata.
func UnaryClientInterceptor(tracer *stackz.Tracer) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		var kv []string
		ctx, span := tracer.StartClient(ctx, &stackz.ClientCall{
			Carrier: stackz.CarrierFunc(func(k, v string) {
				kv = append(kv, strings.ToLower(k), v)
			}),
			Method: Method,
			Host:   cc.Target(),
			Path:   method,
		})
		if len(kv) > 0 {
			ctx = metadata.AppendToOutgoingContext(ctx, kv...)
		}

		err := invoker(ctx, method, req, reply, cc, opts...)
		span.Span().SetTag(TagStatusCode, status.Code(err).String())
		span.Finish(HTTPStatus(err), err)
		return err
	}
}

// tracedServerStream wraps grpc.ServerStream with the traced context.
type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}

func incomingCall(ctx context.Context, fullMethod string) *stackz.Call {
	h := http.Header{}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for k, vs := range md {
			if strings.HasPrefix(k, ":") {
				continue
			}
			for _, v := range vs {
				h.Add(k, v)
			}
		}
	}
	return &stackz.Call{Header: h, Method: Method, Path: fullMethod}
}

func finishServer(span *stackz.ServerSpan, err error) {
	span.Span().SetTag(TagStatusCode, status.Code(err).String())
	if err != nil {
		span.Fail(err)
	}
	span.Finish(HTTPStatus(err))
}

// HTTPStatus maps the gRPC status of err onto an HTTP status code.
func HTTPStatus(err error) int {
	switch status.Code(err) {
	case codes.OK:
		return http.StatusOK
	case codes.Canceled:
		return 499
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
