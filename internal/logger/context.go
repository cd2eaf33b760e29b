package logger

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
)

type contextKey string

const CycleIDKey contextKey = "cycle_id"

// NewCycleID returns a sortable id used to correlate the log lines of one loop cycle.
func NewCycleID() string {
	return ulid.Make().String()
}

func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CycleIDKey, id)
}

func GetCycleID(ctx context.Context) string {
	if id, ok := ctx.Value(CycleIDKey).(string); ok {
		return id
	}
	return ""
}

// From returns the default logger annotated with the cycle id carried by ctx.
func From(ctx context.Context) *slog.Logger {
	if id := GetCycleID(ctx); id != "" {
		return slog.Default().With("cycle", id)
	}
	return slog.Default()
}
