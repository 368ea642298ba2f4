package kit

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithSessionID(ctx, "sess_abc")
	ctx = WithRemoteAddr(ctx, "10.0.0.1:1234")

	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("request id = %q", got)
	}
	if got := GetSessionID(ctx); got != "sess_abc" {
		t.Errorf("session id = %q", got)
	}
	if got := GetRemoteAddr(ctx); got != "10.0.0.1:1234" {
		t.Errorf("remote addr = %q", got)
	}
}

func TestTransportDefault(t *testing.T) {
	if got := GetTransport(context.Background()); got != "http" {
		t.Errorf("default transport = %q, want http", got)
	}
	ctx := WithTransport(context.Background(), "ws")
	if got := GetTransport(ctx); got != "ws" {
		t.Errorf("transport = %q, want ws", got)
	}
}
