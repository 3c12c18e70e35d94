// Package middleware wraps the lane request handler. Every middleware runs
// on the worker lane that owns the target service, so it must not block.
package middleware

import (
	"context"

	"lane-rpc/protocol"
)

// HandlerFunc answers one request. It always returns a Response; failures
// are reported through Response.Failure.
type HandlerFunc func(ctx context.Context, req *protocol.Request) *protocol.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one is the outermost:
// Chain(A, B)(h) runs A.before, B.before, h, B.after, A.after.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Fail builds a failure response for req.
func Fail(req *protocol.Request, msg string) *protocol.Response {
	return &protocol.Response{CallID: req.CallID, Failure: msg}
}
