package components

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/archivist/internal/archiver"
	"github.com/harunnryd/archivist/internal/config"
	"github.com/harunnryd/archivist/internal/daemon"
	"github.com/harunnryd/archivist/internal/runner"
	"github.com/harunnryd/archivist/internal/watch"
)

func runnerHealth(ctx context.Context, name string, r *runner.Runner) *daemon.ComponentHealth {
	if r == nil {
		return &daemon.ComponentHealth{Name: name, Healthy: false, Error: fmt.Errorf("not initialized")}
	}
	st := r.Status()
	details := map[string]interface{}{"cycles": st.Cycles}
	if !st.LastRun.IsZero() {
		details["last_run"] = st.LastRun.UTC().Format(time.RFC3339)
		details["last_duration"] = st.LastDuration.String()
	}
	if !st.NextRun.IsZero() {
		details["next_run"] = st.NextRun.UTC().Format(time.RFC3339)
	}
	if st.LastError != "" {
		details["last_error"] = st.LastError
	}
	if err := r.Health(ctx); err != nil {
		return &daemon.ComponentHealth{Name: name, Healthy: false, Error: err, Details: details}
	}
	return &daemon.ComponentHealth{Name: name, Healthy: true, Details: details}
}

// ArchiverComponent drives the archive loop and, when enabled, the
// memory-directory watcher that triggers early cycles.
type ArchiverComponent struct {
	cfg      *config.Config
	storeC   *StoreComponent
	remoteC  *RemoteComponent
	archiver *archiver.Archiver
	runner   *runner.Runner
	watcher  *watch.Watcher
}

func NewArchiverComponent(cfg *config.Config, storeC *StoreComponent, remoteC *RemoteComponent) *ArchiverComponent {
	return &ArchiverComponent{cfg: cfg, storeC: storeC, remoteC: remoteC}
}

func (a *ArchiverComponent) Name() string {
	return "Archiver"
}

func (a *ArchiverComponent) Dependencies() []string {
	return []string{"Store", "Remote"}
}

func (a *ArchiverComponent) Init(ctx context.Context) error {
	if a.storeC == nil || a.remoteC == nil {
		return fmt.Errorf("store and remote components are required")
	}
	client := a.remoteC.Client()
	if client == nil {
		return fmt.Errorf("remote not initialized")
	}

	arch, err := BuildArchiver(a.cfg, client, StateDeps{
		Layout:   a.storeC.Layout(),
		Index:    a.storeC.Index(),
		Attempts: a.storeC.Attempts(),
		History:  a.storeC.History(),
	})
	if err != nil {
		return fmt.Errorf("create archiver: %w", err)
	}

	interval, _, err := Intervals(a.cfg)
	if err != nil {
		return err
	}
	shutdownTimeout, err := config.DurationOrDefault(a.cfg.Daemon.ShutdownTimeout, config.DefaultDaemonShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse daemon shutdown timeout: %w", err)
	}
	r, err := runner.New(arch, runner.Options{
		Interval:        interval,
		Schedule:        a.cfg.Archive.Schedule,
		ShutdownTimeout: shutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create archive runner: %w", err)
	}

	if a.cfg.Archive.Watch {
		layout := a.storeC.Layout()
		w, err := watch.New(watch.Config{Dirs: []string{layout.Memory, layout.Ongoing}}, func() { r.Trigger() })
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		a.watcher = w
	}

	a.archiver = arch
	a.runner = r
	slog.Info("Archiver initialized", "component", a.Name(), "interval", interval, "schedule", a.cfg.Archive.Schedule,
		"per_knowledge", a.cfg.Archive.PerKnowledge, "max_retries", a.cfg.Archive.MaxRetries, "watch", a.cfg.Archive.Watch)
	return nil
}

func (a *ArchiverComponent) Start(ctx context.Context) error {
	if a.runner == nil {
		return fmt.Errorf("archiver not initialized")
	}
	if err := a.runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start archive loop: %w", err)
	}
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			// polling still covers every file
			slog.Warn("Watcher not started, relying on polling", "error", err)
			a.watcher = nil
		}
	}
	return nil
}

func (a *ArchiverComponent) Stop(ctx context.Context) error {
	if a.runner == nil {
		slog.Info("Archiver not initialized, skipping stop", "component", a.Name())
		return nil
	}
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			slog.Warn("Watcher stop failed", "error", err)
		}
	}
	if err := a.runner.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop archive loop: %w", err)
	}
	return nil
}

func (a *ArchiverComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	return runnerHealth(ctx, a.Name(), a.runner), nil
}

func (a *ArchiverComponent) Archiver() *archiver.Archiver {
	return a.archiver
}

func (a *ArchiverComponent) Status() runner.Status {
	if a.runner == nil {
		return runner.Status{Task: "archive"}
	}
	return a.runner.Status()
}

// ReaperComponent drives the reap loop.
type ReaperComponent struct {
	cfg     *config.Config
	storeC  *StoreComponent
	remoteC *RemoteComponent
	runner  *runner.Runner
}

func NewReaperComponent(cfg *config.Config, storeC *StoreComponent, remoteC *RemoteComponent) *ReaperComponent {
	return &ReaperComponent{cfg: cfg, storeC: storeC, remoteC: remoteC}
}

func (r *ReaperComponent) Name() string {
	return "Reaper"
}

func (r *ReaperComponent) Dependencies() []string {
	return []string{"Store", "Remote"}
}

func (r *ReaperComponent) Init(ctx context.Context) error {
	if r.storeC == nil || r.remoteC == nil {
		return fmt.Errorf("store and remote components are required")
	}
	client := r.remoteC.Client()
	if client == nil {
		return fmt.Errorf("remote not initialized")
	}

	rp, err := BuildReaper(r.cfg, client, StateDeps{
		Layout:  r.storeC.Layout(),
		Index:   r.storeC.Index(),
		History: r.storeC.History(),
	}, false)
	if err != nil {
		return fmt.Errorf("create reaper: %w", err)
	}

	_, interval, err := Intervals(r.cfg)
	if err != nil {
		return err
	}
	shutdownTimeout, err := config.DurationOrDefault(r.cfg.Daemon.ShutdownTimeout, config.DefaultDaemonShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse daemon shutdown timeout: %w", err)
	}
	run, err := runner.New(rp, runner.Options{Interval: interval, ShutdownTimeout: shutdownTimeout})
	if err != nil {
		return fmt.Errorf("create reap runner: %w", err)
	}
	r.runner = run

	slog.Info("Reaper initialized", "component", r.Name(), "interval", interval, "archive_dir", r.storeC.Layout().Archive)
	return nil
}

func (r *ReaperComponent) Start(ctx context.Context) error {
	if r.runner == nil {
		return fmt.Errorf("reaper not initialized")
	}
	return r.runner.Start(ctx)
}

func (r *ReaperComponent) Stop(ctx context.Context) error {
	if r.runner == nil {
		return nil
	}
	if err := r.runner.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop reap loop: %w", err)
	}
	return nil
}

func (r *ReaperComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	return runnerHealth(ctx, r.Name(), r.runner), nil
}

func (r *ReaperComponent) Status() runner.Status {
	if r.runner == nil {
		return runner.Status{Task: "reap"}
	}
	return r.runner.Status()
}
