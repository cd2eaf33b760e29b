package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		want error
	}{
		{"ok", http.StatusOK, "", nil},
		{"not found", http.StatusNotFound, "", ErrNotFound},
		{"open webui missing chat", http.StatusUnauthorized, `{"detail":"We could not find what you're looking for :/"}`, ErrNotFound},
		{"bad token", http.StatusUnauthorized, `{"detail":"Not authenticated"}`, ErrPermissionDenied},
		{"forbidden", http.StatusForbidden, "", ErrPermissionDenied},
		{"conflict", http.StatusConflict, "", ErrConflict},
		{"rate limited", http.StatusTooManyRequests, "", ErrTransient},
		{"server error", http.StatusBadGateway, "upstream down", ErrTransient},
		{"bad request", http.StatusBadRequest, "", ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromStatus(tt.code, tt.body)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("FromStatus(%d) = %v, want nil", tt.code, err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("FromStatus(%d) = %v, want %v", tt.code, err, tt.want)
			}
		})
	}
}

func TestFromTransport(t *testing.T) {
	if err := FromTransport(context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled should pass through, got %v", err)
	}
	if err := FromTransport(fmt.Errorf("dial: %w", context.DeadlineExceeded)); !IsRetryable(err) {
		t.Fatalf("deadline should be retryable, got %v", err)
	}
	if err := FromTransport(errors.New("connection refused")); !errors.Is(err, ErrTransient) {
		t.Fatalf("connection refused should be transient, got %v", err)
	}
	if got := Category(FromTransport(errors.New("boom"))); got != "internal" {
		t.Fatalf("Category = %q, want internal", got)
	}
}
