// Package runner drives a polling task on a schedule. Both the archive and
// the reap loop run through it: one cycle at a time, an immediate first
// cycle, early cycles on Trigger, and a bounded wait for the running cycle
// on Stop.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	archerrors "github.com/harunnryd/archivist/internal/errors"
	"github.com/harunnryd/archivist/internal/logger"

	"github.com/robfig/cron/v3"
)

const DefaultShutdownTimeout = 30 * time.Second

// Task is one reconciliation cycle.
type Task interface {
	Name() string
	RunCycle(ctx context.Context) error
}

type Options struct {
	Interval time.Duration
	// Schedule is a cron spec ("*/5 * * * *", "@every 30s"). It wins over Interval.
	Schedule        string
	ShutdownTimeout time.Duration
}

// Status is a snapshot for health reporting.
type Status struct {
	Task         string        `json:"task"`
	Running      bool          `json:"running"`
	Cycles       uint64        `json:"cycles"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration_ns,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitempty"`
}

type Runner struct {
	task            Task
	schedule        cron.Schedule
	shutdownTimeout time.Duration
	trigger         chan struct{}

	cycleMu sync.Mutex

	mu      sync.RWMutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	status  Status
}

// ParseSchedule builds the cycle schedule from a cron spec or, when spec is
// empty, a fixed interval. Intervals below one second round up to one second.
func ParseSchedule(interval time.Duration, spec string) (cron.Schedule, error) {
	if spec != "" {
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, archerrors.InvalidInput(fmt.Sprintf("schedule %q: %v", spec, err))
		}
		return sched, nil
	}
	if interval <= 0 {
		return nil, archerrors.InvalidInput("interval must be positive")
	}
	return cron.Every(interval), nil
}

func New(task Task, opts Options) (*Runner, error) {
	if task == nil {
		return nil, archerrors.InvalidInput("runner task is nil")
	}
	sched, err := ParseSchedule(opts.Interval, opts.Schedule)
	if err != nil {
		return nil, err
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Runner{
		task:            task,
		schedule:        sched,
		shutdownTimeout: shutdownTimeout,
		trigger:         make(chan struct{}, 1),
		status:          Status{Task: task.Name()},
	}, nil
}

func (r *Runner) Name() string {
	return r.task.Name()
}

// Start runs one cycle right away and then follows the schedule until Stop
// or until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true
	r.status.Running = true
	done := r.done
	r.mu.Unlock()

	safeGo(r.task.Name(), func() {
		defer close(done)
		r.loop(loopCtx)
	})

	slog.Info("Runner started", "task", r.task.Name())
	return nil
}

func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.status.Running = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()

	select {
	case <-done:
		slog.Info("Runner stopped gracefully", "task", r.task.Name())
		return nil
	case <-time.After(r.shutdownTimeout):
		slog.Warn("Runner shutdown timeout, abandoning cycle", "task", r.task.Name())
		return archerrors.Internal("shutdown timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger asks for an early cycle. It never blocks; a pending request
// absorbs further ones.
func (r *Runner) Trigger() bool {
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// RunOnce runs a single cycle in the caller's goroutine, serialized with
// the loop.
func (r *Runner) RunOnce(ctx context.Context) error {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	cycleID := logger.NewCycleID()
	ctx = logger.WithCycleID(ctx, cycleID)
	log := logger.From(ctx).With("task", r.task.Name())

	start := time.Now()
	err := r.task.RunCycle(ctx)
	elapsed := time.Since(start)

	r.mu.Lock()
	r.status.Cycles++
	r.status.LastRun = start
	r.status.LastDuration = elapsed
	r.status.LastError = ""
	if err != nil {
		r.status.LastError = err.Error()
	}
	r.mu.Unlock()

	if err != nil {
		log.Warn("Cycle failed", "duration", elapsed, "error", err)
		return err
	}
	log.Debug("Cycle finished", "duration", elapsed)
	return nil
}

func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Runner) Health(ctx context.Context) error {
	if !r.IsRunning() {
		return archerrors.Internal(r.task.Name() + " runner not running")
	}
	return nil
}

func (r *Runner) loop(ctx context.Context) {
	r.runGuarded(ctx)

	for {
		next := r.schedule.Next(time.Now())
		r.mu.Lock()
		r.status.NextRun = next
		r.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
		case <-r.trigger:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Runner loop stopped", "task", r.task.Name())
			return
		}
		if ctx.Err() != nil {
			return
		}
		r.runGuarded(ctx)
	}
}

// runGuarded keeps a panicking cycle from killing the loop.
func (r *Runner) runGuarded(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Panic recovered in cycle", "task", r.task.Name(), "panic", rec, "stack", string(debug.Stack()))
			r.mu.Lock()
			r.status.LastError = fmt.Sprintf("panic: %v", rec)
			r.mu.Unlock()
		}
	}()
	_ = r.RunOnce(ctx)
}
