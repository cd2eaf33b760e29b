package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/harunnryd/archivist/internal/config"
	"github.com/harunnryd/archivist/internal/store"
)

// Daemon runs the archivist components: Store first, then Remote, the two
// loops and the HTTP server, each after the components it depends on.
// Shutdown walks the same order backwards.
type Daemon struct {
	cfg    *config.Config
	layout store.Layout

	mu           sync.RWMutex
	components   []Component
	byName       map[string]Component
	order        []Component // dependency order, fixed by Start
	initialized  []Component
	health       HealthStatus
	forceCleanup bool
}

// timeouts are the daemon.* durations, parsed once per Start.
type timeouts struct {
	shutdown        time.Duration
	startupShutdown time.Duration
	healthEvery     time.Duration
	staleLock       time.Duration
}

func NewDaemon(cfg *config.Config, layout store.Layout) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if layout.Memory == "" {
		return nil, fmt.Errorf("memory directory cannot be empty")
	}
	return &Daemon{
		cfg:    cfg,
		layout: layout,
		byName: make(map[string]Component),
		health: StatusStarting,
	}, nil
}

// AddComponent registers comp. A second component with the same name is ignored.
func (d *Daemon) AddComponent(comp Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.byName[comp.Name()]; dup {
		slog.Warn("Component already registered, ignoring", "component", comp.Name())
		return
	}
	d.components = append(d.components, comp)
	d.byName[comp.Name()] = comp
	slog.Info("Component registered", "component", comp.Name(), "total_components", len(d.components))
}

func (d *Daemon) SetForceCleanup(force bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forceCleanup = force
}

func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.health
}

// Start blocks until ctx is cancelled or the process receives SIGINT or
// SIGTERM, then stops every component. A cancelled context is a clean exit.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("Archivist daemon starting...", "memory_dir", d.layout.Memory)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.validateConfig(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	t, err := d.timeouts()
	if err != nil {
		return err
	}
	d.mu.RLock()
	force := d.forceCleanup
	d.mu.RUnlock()
	if err := d.preInitChecks(ctx, t.staleLock, force); err != nil {
		return fmt.Errorf("pre-init checks failed: %w", err)
	}

	if err := d.initializeComponents(ctx); err != nil {
		d.stopInitialized(context.Background(), t.startupShutdown)
		return fmt.Errorf("component initialization failed: %w", err)
	}
	if err := d.startComponents(ctx); err != nil {
		d.stopInitialized(context.Background(), t.startupShutdown)
		return fmt.Errorf("component startup failed: %w", err)
	}

	d.setHealth(StatusRunning)
	slog.Info("Archivist daemon is running", "components", len(d.order))

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		d.monitorHealth(ctx, t.healthEvery)
	}()

	<-ctx.Done()
	<-monitorDone

	slog.Info("Context cancelled, initiating graceful shutdown", "reason", ctx.Err())
	d.setHealth(StatusStopping)
	if err := d.stopInitialized(context.Background(), t.shutdown); err != nil {
		return err
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// ComponentHealth asks every registered component for its health. A
// component that returns no report is recorded as unhealthy.
func (d *Daemon) ComponentHealth() map[string]*ComponentHealth {
	d.mu.RLock()
	components := append([]Component(nil), d.components...)
	d.mu.RUnlock()

	result := make(map[string]*ComponentHealth, len(components))
	for _, comp := range components {
		health, err := comp.Health(context.Background())
		if health == nil {
			health = &ComponentHealth{Name: comp.Name(), Error: errors.New("no health report")}
		}
		if err != nil {
			health.Healthy = false
			health.Error = err
		}
		result[comp.Name()] = health
	}
	return result
}

func (d *Daemon) setHealth(status HealthStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health = status
}

func (d *Daemon) timeouts() (timeouts, error) {
	var (
		t   timeouts
		err error
	)
	dc := d.cfg.Daemon
	if t.shutdown, err = config.PositiveDuration("daemon.shutdown_timeout", dc.ShutdownTimeout, config.DefaultDaemonShutdownTimeout); err != nil {
		return t, err
	}
	if t.startupShutdown, err = config.PositiveDuration("daemon.startup_shutdown_timeout", dc.StartupShutdownTimeout, config.DefaultDaemonStartupShutdownTimeout); err != nil {
		return t, err
	}
	if t.healthEvery, err = config.PositiveDuration("daemon.health_check_interval", dc.HealthCheckInterval, config.DefaultDaemonHealthCheckInterval); err != nil {
		return t, err
	}
	if t.staleLock, err = config.PositiveDuration("daemon.stale_lock_ttl", dc.StaleLockTTL, config.DefaultDaemonStaleLockTTL); err != nil {
		return t, err
	}
	return t, nil
}

// validateConfig checks the configuration and creates the memory layout
// (archived/, quarantine/, ongoing_conversations/, .archivist/, logs).
func (d *Daemon) validateConfig() error {
	if err := d.cfg.Validate(); err != nil {
		return err
	}
	if err := d.layout.Ensure(); err != nil {
		return fmt.Errorf("prepare memory directory: %w", err)
	}
	slog.Info("Configuration validated", "memory_dir", d.layout.Memory, "archive_dir", d.layout.Archive, "port", d.cfg.Server.Port)
	return nil
}

// preInitChecks clears a lock file left behind by a crashed archivist so the
// Store component can take the single-instance lock.
func (d *Daemon) preInitChecks(ctx context.Context, ttl time.Duration, force bool) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pre-init checks cancelled: %w", err)
	}
	if err := store.CleanupStaleLocks(d.layout.LockPath(), ttl, force); err != nil {
		slog.Warn("Failed to cleanup stale locks", "lock", d.layout.LockPath(), "error", err)
	}
	return nil
}

func (d *Daemon) initializeComponents(ctx context.Context) error {
	order, err := d.resolveOrder()
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.order = order
	d.initialized = d.initialized[:0]
	d.mu.Unlock()

	for _, comp := range order {
		slog.Info("Initializing component...", "component", comp.Name())
		if err := comp.Init(ctx); err != nil {
			return fmt.Errorf("component %s init failed: %w", comp.Name(), err)
		}
		d.mu.Lock()
		d.initialized = append(d.initialized, comp)
		d.mu.Unlock()
	}
	return nil
}

func (d *Daemon) startComponents(ctx context.Context) error {
	for _, comp := range d.order {
		if err := comp.Start(ctx); err != nil {
			return fmt.Errorf("component %s startup failed: %w", comp.Name(), err)
		}
		slog.Info("Component started", "component", comp.Name())
	}
	return nil
}

// stopInitialized stops every component that got past Init, dependents
// first, within timeout. Individual failures do not stop the walk.
func (d *Daemon) stopInitialized(ctx context.Context, timeout time.Duration) error {
	d.mu.RLock()
	comps := append([]Component(nil), d.initialized...)
	d.mu.RUnlock()

	slog.Info("Stopping components", "count", len(comps), "timeout", timeout)
	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var errs []error
		for i := len(comps) - 1; i >= 0; i-- {
			name := comps[i].Name()
			if err := comps[i].Stop(stopCtx); err != nil {
				slog.Error("Component stop failed", "component", name, "error", err)
				errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
				continue
			}
			slog.Info("Component stopped", "component", name)
		}
		done <- errors.Join(errs...)
	}()

	var err error
	select {
	case err = <-done:
	case <-stopCtx.Done():
		err = fmt.Errorf("shutdown timeout after %v", timeout)
	}
	d.setHealth(StatusStopped)
	return err
}

func (d *Daemon) monitorHealth(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.logUnhealthy()
		}
	}
}

func (d *Daemon) logUnhealthy() int {
	healths := d.ComponentHealth()
	names := make([]string, 0, len(healths))
	for name := range healths {
		names = append(names, name)
	}
	sort.Strings(names)

	unhealthy := 0
	for _, name := range names {
		if h := healths[name]; !h.Healthy {
			unhealthy++
			slog.Warn("Component unhealthy", "component", name, "error", h.Error, "details", h.Details)
		}
	}
	if unhealthy > 0 {
		slog.Warn("Daemon has unhealthy components", "count", unhealthy, "total", len(healths))
	}
	return unhealthy
}

// resolveOrder sorts components so each follows its dependencies. Among
// components that are ready at the same time, registration order wins.
func (d *Daemon) resolveOrder() ([]Component, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	pending := make(map[string]int, len(d.components))
	dependents := make(map[string][]string)
	for _, comp := range d.components {
		deps := comp.Dependencies()
		for _, dep := range deps {
			if _, ok := d.byName[dep]; !ok {
				return nil, fmt.Errorf("component %s depends on %s which is not registered", comp.Name(), dep)
			}
			dependents[dep] = append(dependents[dep], comp.Name())
		}
		pending[comp.Name()] = len(deps)
	}

	order := make([]Component, 0, len(d.components))
	placed := make(map[string]bool, len(d.components))
	for len(order) < len(d.components) {
		progressed := false
		for _, comp := range d.components {
			name := comp.Name()
			if placed[name] || pending[name] > 0 {
				continue
			}
			placed[name] = true
			order = append(order, comp)
			for _, dependent := range dependents[name] {
				pending[dependent]--
			}
			progressed = true
		}
		if !progressed {
			var stuck []string
			for _, comp := range d.components {
				if !placed[comp.Name()] {
					stuck = append(stuck, comp.Name())
				}
			}
			return nil, fmt.Errorf("circular dependency among %v", stuck)
		}
	}
	return order, nil
}
