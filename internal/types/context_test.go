package types

import (
	"context"
	"testing"
)

func TestWithRequestID_GetRequestID(t *testing.T) {
	t.Run("round-trip stores and retrieves request ID", func(t *testing.T) {
		id := "req-abc-123-def-456"
		ctx := WithRequestID(context.Background(), id)
		got := GetRequestID(ctx)
		if got != id {
			t.Errorf("got %q, want %q", got, id)
		}
	})

	t.Run("returns empty string when no request ID in context", func(t *testing.T) {
		got := GetRequestID(context.Background())
		if got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})
}

func TestWithRunID_GetRunID(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	if got := GetRunID(ctx); got != "run-1" {
		t.Errorf("got %q, want %q", got, "run-1")
	}
	if got := GetRunID(context.Background()); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestTraceID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"empty", context.Background(), ""},
		{"run only", WithRunID(context.Background(), "run-1"), "run-1"},
		{"request wins", WithRequestID(WithRunID(context.Background(), "run-1"), "req-1"), "req-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TraceID(tt.ctx); got != tt.want {
				t.Errorf("TraceID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContextValues_DoNotInterfere(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req")
	ctx = WithRunID(ctx, "run")

	if GetRequestID(ctx) != "req" {
		t.Errorf("request ID overwritten")
	}
	if GetRunID(ctx) != "run" {
		t.Errorf("run ID overwritten")
	}
}
