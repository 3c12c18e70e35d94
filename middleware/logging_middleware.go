package middleware

import (
	"context"
	"log"
	"time"

	"lane-rpc/protocol"
)

func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Response {
			start := time.Now()
			resp := next(ctx, req)
			log.Printf("[Middleware] service=%v method=%s from=%d call=%s duration=%s",
				req.ServiceID, req.Method, req.ServerID, req.CallID, time.Since(start))
			if resp != nil && resp.Failure != "" {
				log.Printf("[Middleware] call %s failed: %s", req.CallID, resp.Failure)
			}
			return resp
		}
	}
}
