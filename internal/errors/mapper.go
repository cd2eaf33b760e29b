package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// FromStatus maps a knowledge API response to the error taxonomy.
// Open WebUI answers a missing chat with 401 and a "could not find" detail,
// so the body is consulted before treating 401 as an auth failure.
func FromStatus(code int, body string) error {
	if code >= 200 && code < 300 {
		return nil
	}

	msg := fmt.Sprintf("status %d", code)
	if trimmed := strings.TrimSpace(body); trimmed != "" {
		msg = fmt.Sprintf("status %d: %s", code, truncate(trimmed, 200))
	}

	switch {
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		if looksNotFound(body) {
			return fmt.Errorf("%s: %w", msg, ErrNotFound)
		}
		return fmt.Errorf("%s: %w", msg, ErrPermissionDenied)
	case code == http.StatusConflict:
		return fmt.Errorf("%s: %w", msg, ErrConflict)
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%s: %w", msg, ErrTransient)
	case code >= 400:
		return fmt.Errorf("%s: %w", msg, ErrInvalidInput)
	default:
		return fmt.Errorf("unexpected %s: %w", msg, ErrInternal)
	}
}

// FromTransport classifies an error returned by http.Client.Do.
func FromTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timeout: %v: %w", err, ErrTransient)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("network error: %v: %w", err, ErrTransient)
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "connection"), strings.Contains(errStr, "unreachable"), strings.Contains(errStr, "eof"):
		return fmt.Errorf("network error: %v: %w", err, ErrTransient)
	default:
		return fmt.Errorf("request failed: %v: %w", err, ErrInternal)
	}
}

func looksNotFound(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "not found") ||
		strings.Contains(lower, "could not find") ||
		strings.Contains(lower, "not_found")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Category returns a short label for logging.
func Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrInternal):
		return "internal"
	default:
		return "unknown"
	}
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", message, err)
}

// IsCategory checks if error belongs to specific category
func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

// NotFound wraps error as not found
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// InvalidInput wraps error as invalid input
func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

// Transient wraps error as transient
func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

// Internal wraps error as internal
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}

// IsRetryable checks if an error is transient or conflict related, indicating it can be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrConflict)
}
