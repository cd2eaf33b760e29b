package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/archivist/internal/daemon"
	"github.com/harunnryd/archivist/internal/history"
	"github.com/harunnryd/archivist/internal/state"
	"github.com/harunnryd/archivist/internal/store"
)

// StoreComponent holds the single-instance lock on the memory directory and
// the persistent state both loops share.
type StoreComponent struct {
	layout store.Layout

	mu        sync.RWMutex
	lock      *store.FileLock
	index     *state.ArchivedIndex
	attempts  *state.Attempts
	history   *history.Log
	startTime time.Time
}

func NewStoreComponent(layout store.Layout) *StoreComponent {
	return &StoreComponent{layout: layout}
}

func (s *StoreComponent) Name() string {
	return "Store"
}

func (s *StoreComponent) Dependencies() []string {
	return []string{}
}

func (s *StoreComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("Store init cancelled: %w", ctx.Err())
	default:
	}

	if err := s.layout.Ensure(); err != nil {
		return err
	}

	lockCfg := store.DefaultFileLockConfig()
	lock, err := store.NewFileLock(s.layout.LockPath(), lockCfg)
	if err != nil {
		return fmt.Errorf("another archivist holds %s: %w", s.layout.LockPath(), err)
	}

	index, err := state.OpenArchivedIndex(s.layout.IndexPath())
	if err != nil {
		lock.Unlock()
		return fmt.Errorf("open archived index: %w", err)
	}
	attempts, err := state.OpenAttempts(s.layout.AttemptsPath())
	if err != nil {
		lock.Unlock()
		return fmt.Errorf("open attempts ledger: %w", err)
	}
	hist, err := history.NewLog(s.layout.HistoryPath())
	if err != nil {
		lock.Unlock()
		return fmt.Errorf("open history log: %w", err)
	}

	s.lock = lock
	s.index = index
	s.attempts = attempts
	s.history = hist

	slog.Info("Store initialized", "component", s.Name(), "state_dir", s.layout.State, "archived", index.Len())
	return nil
}

func (s *StoreComponent) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock == nil {
		return fmt.Errorf("Store not initialized")
	}
	s.startTime = time.Now()
	return nil
}

func (s *StoreComponent) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock == nil {
		slog.Info("Store not initialized, skipping stop", "component", s.Name())
		return nil
	}
	s.lock.Unlock()
	s.lock = nil
	slog.Info("Store stopped", "component", s.Name(), "uptime", time.Since(s.startTime))
	return nil
}

func (s *StoreComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lock == nil || !s.lock.IsLocked() {
		return &daemon.ComponentHealth{Name: s.Name(), Healthy: false, Error: fmt.Errorf("lock not held")}, nil
	}
	return &daemon.ComponentHealth{Name: s.Name(), Healthy: true}, nil
}

func (s *StoreComponent) Layout() store.Layout { return s.layout }

func (s *StoreComponent) Index() *state.ArchivedIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

func (s *StoreComponent) Attempts() *state.Attempts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

func (s *StoreComponent) History() *history.Log {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history
}
