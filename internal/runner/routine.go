package runner

import (
	"log/slog"
	"runtime/debug"
)

// safeGo runs fn in a goroutine with panic recovery.
func safeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic recovered", "routine", name, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
