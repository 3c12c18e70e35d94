package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"lane-rpc/protocol"
)

const RateLimitExceeded = "rate limit exceeded"

// RateLimitMiddleware rejects requests beyond a token bucket of r per second
// with the given burst. The limiter never waits, since waiting would stall the lane.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Response {
			if !limiter.Allow() {
				return Fail(req, RateLimitExceeded)
			}
			return next(ctx, req)
		}
	}
}
