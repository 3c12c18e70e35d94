package middleware

import (
	"context"
	"fmt"
	"log"

	"lane-rpc/protocol"
)

// RecoveryMiddleware turns a panic inside a service method into a failure
// response, so the caller is answered instead of waiting for its timeout.
func RecoveryMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (resp *protocol.Response) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[Middleware] panic in %v.%s: %v", req.ServiceID, req.Method, r)
					resp = Fail(req, fmt.Sprintf("panic: %v", r))
				}
			}()
			return next(ctx, req)
		}
	}
}
