package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harunnryd/archivist/internal/daemon/components"
	"github.com/harunnryd/archivist/internal/logger"
	"github.com/harunnryd/archivist/internal/store"
	"github.com/harunnryd/archivist/internal/webui"

	"github.com/spf13/cobra"
)

// session is what a one-shot command works with: the locked state of the
// memory directory and a client for the knowledge API.
type session struct {
	ctx    context.Context
	layout store.Layout
	store  *components.StoreComponent
	client *webui.Client
}

func (s *session) stateDeps() components.StateDeps {
	return components.StateDeps{
		Layout:   s.layout,
		Index:    s.store.Index(),
		Attempts: s.store.Attempts(),
		History:  s.store.History(),
	}
}

// currentLayout validates the loaded config and derives the directory layout.
func currentLayout() (store.Layout, error) {
	if cfg == nil {
		return store.Layout{}, fmt.Errorf("config not loaded")
	}
	if err := cfg.Validate(); err != nil {
		return store.Layout{}, fmt.Errorf("invalid config: %w", err)
	}
	return store.NewLayout(cfg.Archive.MemoryDir, cfg.ArchiveDir(), cfg.LogDir()), nil
}

// openLogs sends the log to the plain log file next to the history log.
func openLogs(layout store.Layout) (func(), error) {
	closer, err := logger.Setup(cfg.Server.LogLevel, layout.LogPath())
	if err != nil {
		return nil, err
	}
	return func() { closer.Close() }, nil
}

// withSession runs fn while holding the memory-directory lock. A running
// daemon holds the same lock, so one-shot commands wait for it and fail
// after the lock timeout.
func withSession(cmd *cobra.Command, fn func(s *session) error) error {
	layout, err := currentLayout()
	if err != nil {
		return err
	}
	closeLogs, err := openLogs(layout)
	if err != nil {
		return err
	}
	defer closeLogs()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeC := components.NewStoreComponent(layout)
	if err := storeC.Init(ctx); err != nil {
		return err
	}
	defer storeC.Stop(context.Background())

	client, err := components.BuildClient(cfg)
	if err != nil {
		return err
	}

	ctx = logger.WithCycleID(ctx, logger.NewCycleID())
	return fn(&session{ctx: ctx, layout: layout, store: storeC, client: client})
}
