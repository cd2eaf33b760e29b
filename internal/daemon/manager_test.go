package daemon

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/archivist/internal/config"
	"github.com/harunnryd/archivist/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journal records lifecycle calls across components as "Name.phase".
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(name, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, name+"."+phase)
}

func (j *journal) phase(phase string) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []string
	for _, e := range j.events {
		if strings.HasSuffix(e, "."+phase) {
			out = append(out, strings.TrimSuffix(e, "."+phase))
		}
	}
	return out
}

// part stands in for one archivist component with the real name and
// dependency edges.
type part struct {
	name     string
	deps     []string
	log      *journal
	initErr  error
	startErr error
	stopErr  error
	report   *ComponentHealth
}

func (p *part) Name() string           { return p.name }
func (p *part) Dependencies() []string { return p.deps }

func (p *part) Init(ctx context.Context) error {
	p.log.add(p.name, "init")
	return p.initErr
}

func (p *part) Start(ctx context.Context) error {
	p.log.add(p.name, "start")
	return p.startErr
}

func (p *part) Stop(ctx context.Context) error {
	p.log.add(p.name, "stop")
	return p.stopErr
}

func (p *part) Health(ctx context.Context) (*ComponentHealth, error) {
	if p.report != nil {
		return p.report, nil
	}
	return &ComponentHealth{Name: p.name, Healthy: true}, nil
}

// archivistParts mirrors the dependency edges cmd/archivist wires: the loops
// need Store and Remote, HTTPServer needs Archiver.
func archivistParts(log *journal) map[string]*part {
	return map[string]*part{
		"Store":      {name: "Store", log: log},
		"Remote":     {name: "Remote", log: log},
		"Archiver":   {name: "Archiver", deps: []string{"Store", "Remote"}, log: log},
		"Reaper":     {name: "Reaper", deps: []string{"Store", "Remote"}, log: log},
		"HTTPServer": {name: "HTTPServer", deps: []string{"Archiver"}, log: log},
	}
}

func register(d *Daemon, parts map[string]*part, names ...string) {
	for _, name := range names {
		d.AddComponent(parts[name])
	}
}

func newTestDaemon(t *testing.T) (*Daemon, store.Layout) {
	t.Helper()
	memory := t.TempDir()
	cfg := &config.Config{
		WebUI:   config.WebUIConfig{BaseURL: "http://webui.test", Token: "sk-test"},
		Archive: config.ArchiveConfig{MemoryDir: memory, Interval: "10s"},
		Server:  config.ServerConfig{Enabled: true, Port: 9000},
		Daemon:  config.DaemonConfig{ShutdownTimeout: "2s", HealthCheckInterval: "1h"},
	}
	layout := store.NewLayout(memory, "", "")
	d, err := NewDaemon(cfg, layout)
	require.NoError(t, err)
	return d, layout
}

func runUntilRunning(t *testing.T, d *Daemon) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	require.Eventually(t, func() bool { return d.Health() == StatusRunning }, 2*time.Second, 5*time.Millisecond)
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(3 * time.Second):
			t.Fatal("daemon did not stop")
			return nil
		}
	}
}

func TestNewDaemon_RequiresConfigAndMemoryDir(t *testing.T) {
	_, err := NewDaemon(nil, store.NewLayout(t.TempDir(), "", ""))
	assert.Error(t, err)

	_, err = NewDaemon(&config.Config{}, store.Layout{})
	assert.Error(t, err)
}

func TestAddComponent_IgnoresDuplicateName(t *testing.T) {
	d, _ := newTestDaemon(t)
	log := &journal{}
	d.AddComponent(&part{name: "Store", log: log})
	d.AddComponent(&part{name: "Store", log: log})
	assert.Len(t, d.components, 1)
}

func TestStart_InitsLoopsAfterStoreAndRemote(t *testing.T) {
	d, _ := newTestDaemon(t)
	log := &journal{}
	// registered out of order on purpose
	register(d, archivistParts(log), "HTTPServer", "Reaper", "Archiver", "Remote", "Store")

	cancel := runUntilRunning(t, d)
	require.NoError(t, cancel())

	assert.Equal(t, []string{"Remote", "Store", "Reaper", "Archiver", "HTTPServer"}, log.phase("init"))
	assert.Equal(t, log.phase("init"), log.phase("start"))
	assert.Equal(t, []string{"HTTPServer", "Archiver", "Reaper", "Store", "Remote"}, log.phase("stop"))
	assert.Equal(t, StatusStopped, d.Health())
}

func TestStart_CreatesMemoryLayout(t *testing.T) {
	d, layout := newTestDaemon(t)
	register(d, archivistParts(&journal{}), "Store")

	cancel := runUntilRunning(t, d)
	require.NoError(t, cancel())

	for _, dir := range []string{layout.Archive, layout.Ongoing, layout.Logs, layout.State, layout.Quarantine} {
		assert.DirExists(t, dir)
	}
}

func TestStart_RejectsMissingToken(t *testing.T) {
	d, _ := newTestDaemon(t)
	d.cfg.WebUI.Token = ""
	log := &journal{}
	register(d, archivistParts(log), "Store")

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
	assert.Empty(t, log.events, "no component is touched before validation passes")
}

func TestStart_ReaperWithoutRemoteFails(t *testing.T) {
	d, _ := newTestDaemon(t)
	log := &journal{}
	register(d, archivistParts(log), "Store", "Reaper")

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depends on Remote which is not registered")
	assert.Empty(t, log.phase("init"))
}

func TestStart_CircularDependency(t *testing.T) {
	d, _ := newTestDaemon(t)
	log := &journal{}
	d.AddComponent(&part{name: "Archiver", deps: []string{"HTTPServer"}, log: log})
	d.AddComponent(&part{name: "HTTPServer", deps: []string{"Archiver"}, log: log})

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular dependency")
}

func TestStart_InitFailureStopsOnlyInitialized(t *testing.T) {
	d, _ := newTestDaemon(t)
	log := &journal{}
	parts := archivistParts(log)
	parts["Archiver"].initErr = errors.New("mapping unreadable")
	register(d, parts, "Store", "Remote", "Archiver", "Reaper")

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "Archiver init failed")

	assert.Equal(t, []string{"Store", "Remote", "Archiver"}, log.phase("init"))
	assert.Equal(t, []string{"Remote", "Store"}, log.phase("stop"), "Archiver never finished Init and Reaper never ran")
	assert.Empty(t, log.phase("start"))
	assert.Equal(t, StatusStopped, d.Health())
}

func TestStart_StartFailureStopsEverything(t *testing.T) {
	d, _ := newTestDaemon(t)
	log := &journal{}
	parts := archivistParts(log)
	parts["HTTPServer"].startErr = errors.New("address already in use")
	register(d, parts, "Store", "Remote", "Archiver", "HTTPServer")

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "address already in use")
	assert.Equal(t, []string{"HTTPServer", "Archiver", "Remote", "Store"}, log.phase("stop"))
}

func TestStart_StopErrorsAreJoined(t *testing.T) {
	d, _ := newTestDaemon(t)
	log := &journal{}
	parts := archivistParts(log)
	parts["Store"].stopErr = errors.New("unlock failed")
	parts["Reaper"].stopErr = errors.New("reaper stuck")
	register(d, parts, "Store", "Remote", "Reaper")

	cancel := runUntilRunning(t, d)
	err := cancel()
	require.Error(t, err)
	assert.ErrorContains(t, err, "stop Store: unlock failed")
	assert.ErrorContains(t, err, "stop Reaper: reaper stuck")
	assert.Len(t, log.phase("stop"), 3)
}

func TestStart_RejectsBadShutdownTimeout(t *testing.T) {
	d, _ := newTestDaemon(t)
	d.cfg.Daemon.ShutdownTimeout = "soon"
	register(d, archivistParts(&journal{}), "Store")

	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon.shutdown_timeout")
}

func TestPreInitChecks_StaleLockUnderLayout(t *testing.T) {
	d, layout := newTestDaemon(t)
	require.NoError(t, layout.Ensure())
	require.NoError(t, os.WriteFile(layout.LockPath(), []byte("4242"), 0644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(layout.LockPath(), old, old))

	require.NoError(t, d.preInitChecks(context.Background(), time.Minute, false))
	assert.FileExists(t, layout.LockPath(), "without force the lock is only reported")

	require.NoError(t, d.preInitChecks(context.Background(), 2*time.Hour, true))
	assert.FileExists(t, layout.LockPath(), "a young lock is kept")

	require.NoError(t, d.preInitChecks(context.Background(), time.Minute, true))
	assert.NoFileExists(t, layout.LockPath())
}

func TestPreInitChecks_Cancelled(t *testing.T) {
	d, _ := newTestDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, d.preInitChecks(ctx, time.Minute, true))
}

func TestComponentHealth_ReportsLoopDetails(t *testing.T) {
	d, _ := newTestDaemon(t)
	log := &journal{}
	parts := archivistParts(log)
	parts["Remote"].report = &ComponentHealth{Name: "Remote", Healthy: false, Error: errors.New("webui unreachable")}
	parts["Archiver"].report = &ComponentHealth{Name: "Archiver", Healthy: true, Details: map[string]interface{}{"cycles": 3}}
	register(d, parts, "Store", "Remote", "Archiver")

	health := d.ComponentHealth()
	require.Len(t, health, 3)
	assert.True(t, health["Store"].Healthy)
	assert.False(t, health["Remote"].Healthy)
	assert.Equal(t, 3, health["Archiver"].Details["cycles"])
	assert.Equal(t, 1, d.logUnhealthy())
}

type silentPart struct{ part }

func (s *silentPart) Health(ctx context.Context) (*ComponentHealth, error) {
	return nil, errors.New("health check timed out")
}

func TestComponentHealth_MissingReportIsUnhealthy(t *testing.T) {
	d, _ := newTestDaemon(t)
	d.AddComponent(&silentPart{part{name: "Reaper", log: &journal{}}})

	h := d.ComponentHealth()["Reaper"]
	require.NotNil(t, h)
	assert.False(t, h.Healthy)
	assert.EqualError(t, h.Error, "health check timed out")
}
