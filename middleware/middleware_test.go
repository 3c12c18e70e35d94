package middleware

import (
	"context"
	"testing"

	"lane-rpc/protocol"
)

// echoHandler answers with the method name.
func echoHandler(ctx context.Context, req *protocol.Request) *protocol.Response {
	return &protocol.Response{CallID: req.CallID, Result: req.Method}
}

func panicHandler(ctx context.Context, req *protocol.Request) *protocol.Response {
	panic("boom")
}

func newRequest() *protocol.Request {
	return &protocol.Request{ServiceID: int64(1), CallID: protocol.NewCallID(0, 7), Method: "Add"}
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware()(echoHandler)

	resp := handler(context.Background(), newRequest())
	if resp == nil {
		t.Fatal("expect non-nil response")
	}
	if resp.Result != "Add" {
		t.Fatalf("expect result 'Add', got '%v'", resp.Result)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass, the third is rejected
	handler := RateLimitMiddleware(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), newRequest())
		if resp.Failure != "" {
			t.Fatalf("request %d should pass, got failure: %s", i, resp.Failure)
		}
	}

	resp := handler(context.Background(), newRequest())
	if resp.Failure != RateLimitExceeded {
		t.Fatalf("request 3 should be rate limited, got: '%s'", resp.Failure)
	}
	if resp.CallID != protocol.NewCallID(0, 7) {
		t.Fatalf("rejection must carry the request call id, got %s", resp.CallID)
	}
}

func TestRecovery(t *testing.T) {
	handler := RecoveryMiddleware()(panicHandler)

	resp := handler(context.Background(), newRequest())
	if resp == nil || resp.Failure != "panic: boom" {
		t.Fatalf("expect recovered failure, got %+v", resp)
	}
}

func TestChain(t *testing.T) {
	var order []string
	trace := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *protocol.Request) *protocol.Response {
				order = append(order, name+".before")
				resp := next(ctx, req)
				order = append(order, name+".after")
				return resp
			}
		}
	}

	handler := Chain(trace("A"), trace("B"), LoggingMiddleware())(echoHandler)
	resp := handler(context.Background(), newRequest())
	if resp.Failure != "" {
		t.Fatalf("expect no failure, got '%s'", resp.Failure)
	}

	want := []string{"A.before", "B.before", "B.after", "A.after"}
	if len(order) != len(want) {
		t.Fatalf("expect %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expect %v, got %v", want, order)
		}
	}
}
