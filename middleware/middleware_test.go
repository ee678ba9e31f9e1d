package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"dmonitor/protocol"
)

var testReq = &protocol.Request{
	Header:  protocol.Header{ServiceName: "Echo", MethodName: "Ping", ArgsSize: 2},
	Payload: []byte("hi"),
}

// echoHandler returns the payload unchanged.
func echoHandler(ctx context.Context, req *protocol.Request) ([]byte, error) {
	return req.Payload, nil
}

// slowHandler waits for its context like a dispatcher waiting on a slow completion.
func slowHandler(ctx context.Context, req *protocol.Request) ([]byte, error) {
	select {
	case <-time.After(200 * time.Millisecond):
		return req.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware(zaptest.NewLogger(t))(echoHandler)

	resp, err := handler(context.Background(), testReq)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "hi" {
		t.Fatalf("expect payload 'hi', got '%s'", resp)
	}
}

func TestLoggingPassesErrors(t *testing.T) {
	boom := errors.New("boom")
	handler := LoggingMiddleware(zaptest.NewLogger(t))(func(context.Context, *protocol.Request) ([]byte, error) {
		return nil, boom
	})
	if _, err := handler(context.Background(), testReq); !errors.Is(err, boom) {
		t.Fatalf("expect boom, got %v", err)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeoutMiddleware(500 * time.Millisecond)(echoHandler)

	if _, err := handler(context.Background(), testReq); err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeoutMiddleware(50 * time.Millisecond)(slowHandler)

	_, err := handler(context.Background(), testReq)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expect ErrTimeout, got %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass immediately, the third is rejected
	handler := RateLimitMiddleware(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		if _, err := handler(context.Background(), testReq); err != nil {
			t.Fatalf("request %d should pass, got error: %v", i, err)
		}
	}
	if _, err := handler(context.Background(), testReq); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("request 3 should be rate limited, got: %v", err)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *protocol.Request) ([]byte, error) {
				order = append(order, name+".before")
				resp, err := next(ctx, req)
				order = append(order, name+".after")
				return resp, err
			}
		}
	}

	handler := Chain(mark("A"), mark("B"))(echoHandler)
	if _, err := handler(context.Background(), testReq); err != nil {
		t.Fatal(err)
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
