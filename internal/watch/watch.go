// Package watch nudges the archive loop when the memory directory changes,
// so a finished conversation does not wait for the next poll.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

const DefaultDebounce = 500 * time.Millisecond

// DefaultIgnore matches files whose changes never make a transcript ready.
var DefaultIgnore = []string{".*", "*.partial", "*.tmp", "*.swp", "*~"}

var ErrNoDirs = errors.New("no directories to watch")

type Config struct {
	Dirs     []string
	Ignore   []string
	Debounce time.Duration
}

// Watcher calls Trigger at most once per debounce window after a relevant
// change in any watched directory.
type Watcher struct {
	dirs     []string
	ignore   []glob.Glob
	debounce time.Duration
	trigger  func()

	fs *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	done    chan struct{}
}

func New(cfg Config, trigger func()) (*Watcher, error) {
	if len(cfg.Dirs) == 0 {
		return nil, ErrNoDirs
	}
	if trigger == nil {
		return nil, errors.New("watch: trigger func is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Ignore == nil {
		cfg.Ignore = DefaultIgnore
	}

	ignore := make([]glob.Glob, 0, len(cfg.Ignore))
	for _, pattern := range cfg.Ignore {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.Join(errors.New("watch: invalid ignore pattern "+pattern), err)
		}
		ignore = append(ignore, g)
	}

	return &Watcher{
		dirs:     cfg.Dirs,
		ignore:   ignore,
		debounce: cfg.Debounce,
		trigger:  trigger,
	}, nil
}

// Start adds the directories that exist and begins processing events. A
// directory created later is not picked up; the poll still covers it.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	added := 0
	for _, dir := range w.dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			slog.Debug("Watch dir skipped", "dir", dir, "error", err)
			continue
		}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return err
		}
		added++
	}
	if added == 0 {
		fw.Close()
		return ErrNoDirs
	}

	w.fs = fw
	w.done = make(chan struct{})
	go w.loop(ctx)
	slog.Info("Watching memory directory", "dirs", w.dirs, "debounce", w.debounce)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				w.schedule()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Base(event.Name)
	for _, g := range w.ignore {
		if g.Match(name) {
			return false
		}
	}
	return true
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	stopped := w.stopped
	w.timer = nil
	w.mu.Unlock()
	if !stopped {
		w.trigger()
	}
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if w.fs == nil {
		return nil
	}
	err := w.fs.Close()
	<-w.done
	return err
}
