package middleware

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/udduke/ribbon/wire"
)

func okHandler(_ context.Context, req *wire.Message) *wire.Message {
	return &wire.Message{ServiceMethod: req.ServiceMethod, Payload: []byte("ok")}
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, req *wire.Message) *wire.Message {
				order = append(order, name+":before")
				resp := next(ctx, req)
				order = append(order, name+":after")
				return resp
			}
		}
	}

	handler := Chain(tag("outer"), tag("inner"))(okHandler)
	handler(context.Background(), &wire.Message{ServiceMethod: "Svc.M"})

	want := []string{"outer:before", "inner:before", "inner:after", "outer:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestChainEmpty(t *testing.T) {
	handler := Chain()(okHandler)
	resp := handler(context.Background(), &wire.Message{ServiceMethod: "Svc.M"})
	if string(resp.Payload) != "ok" {
		t.Fatalf("payload = %s", resp.Payload)
	}
}

func TestLoggingPassesThrough(t *testing.T) {
	handler := Logging(zap.NewNop())(okHandler)
	resp := handler(context.Background(), &wire.Message{ServiceMethod: "Svc.M"})
	if string(resp.Payload) != "ok" {
		t.Fatalf("payload = %s", resp.Payload)
	}

	// Error responses pass through unchanged too.
	failing := Logging(nil)(func(_ context.Context, req *wire.Message) *wire.Message {
		return &wire.Message{ServiceMethod: req.ServiceMethod, Error: "boom"}
	})
	resp = failing(context.Background(), &wire.Message{ServiceMethod: "Svc.M"})
	if resp.Error != "boom" {
		t.Fatalf("error = %s", resp.Error)
	}
}

func TestTimeoutWithinBudget(t *testing.T) {
	handler := Timeout(time.Second)(okHandler)
	resp := handler(context.Background(), &wire.Message{ServiceMethod: "Svc.M"})
	if resp.Error != "" {
		t.Fatalf("error = %s", resp.Error)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	slow := func(ctx context.Context, req *wire.Message) *wire.Message {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
		return &wire.Message{ServiceMethod: req.ServiceMethod}
	}
	handler := Timeout(20 * time.Millisecond)(slow)

	start := time.Now()
	resp := handler(context.Background(), &wire.Message{ServiceMethod: "Svc.M"})
	if resp.Error != "request timed out" {
		t.Fatalf("error = %q", resp.Error)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("timeout took %v", elapsed)
	}
}

func TestRateLimitBurstThenReject(t *testing.T) {
	handler := RateLimit(1, 2)(okHandler)

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), &wire.Message{ServiceMethod: "Svc.M"})
		if resp.Error != "" {
			t.Fatalf("call %d rejected within burst: %s", i, resp.Error)
		}
	}
	resp := handler(context.Background(), &wire.Message{ServiceMethod: "Svc.M"})
	if resp.Error != "rate limit exceeded" {
		t.Fatalf("error = %q, want rate limit rejection", resp.Error)
	}
}

func TestRetryTransientError(t *testing.T) {
	attempts := 0
	flaky := func(_ context.Context, req *wire.Message) *wire.Message {
		attempts++
		if attempts < 3 {
			return &wire.Message{ServiceMethod: req.ServiceMethod, Error: "connection refused"}
		}
		return &wire.Message{ServiceMethod: req.ServiceMethod, Payload: []byte("ok")}
	}
	handler := Retry(3, time.Millisecond, nil)(flaky)

	resp := handler(context.Background(), &wire.Message{ServiceMethod: "Svc.M"})
	if resp.Error != "" {
		t.Fatalf("error = %s", resp.Error)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetrySkipsApplicationErrors(t *testing.T) {
	attempts := 0
	failing := func(_ context.Context, req *wire.Message) *wire.Message {
		attempts++
		return &wire.Message{ServiceMethod: req.ServiceMethod, Error: "no such record"}
	}
	handler := Retry(3, time.Millisecond, nil)(failing)

	resp := handler(context.Background(), &wire.Message{ServiceMethod: "Svc.M"})
	if resp.Error != "no such record" {
		t.Fatalf("error = %s", resp.Error)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, application errors must not be retried", attempts)
	}
}

func TestRetryExhausted(t *testing.T) {
	attempts := 0
	broken := func(_ context.Context, req *wire.Message) *wire.Message {
		attempts++
		return &wire.Message{ServiceMethod: req.ServiceMethod, Error: "i/o timeout"}
	}
	handler := Retry(2, time.Millisecond, zap.NewNop())(broken)

	resp := handler(context.Background(), &wire.Message{ServiceMethod: "Svc.M"})
	if resp.Error != "i/o timeout" {
		t.Fatalf("error = %s", resp.Error)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want initial call plus 2 retries", attempts)
	}
}

func TestRetryHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	broken := func(_ context.Context, req *wire.Message) *wire.Message {
		attempts++
		return &wire.Message{ServiceMethod: req.ServiceMethod, Error: "i/o timeout"}
	}
	handler := Retry(5, time.Hour, nil)(broken)

	resp := handler(ctx, &wire.Message{ServiceMethod: "Svc.M"})
	if resp.Error == "" {
		t.Fatal("expected the last error back")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, cancelled context must stop retries", attempts)
	}
}
