// Package collection maps chat models to the knowledge collection their
// conversations are archived into.
package collection

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tidwall/jsonc"
)

const (
	// ExcludedID marks a model whose conversations are never archived.
	ExcludedID = "0"
	DefaultKey = "default"
)

type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c Collection) Excluded() bool {
	return c.ID == ExcludedID
}

// UnmarshalJSON also accepts the older mapping form where a model maps to a bare id.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*c = Collection{ID: id}
		return nil
	}

	type plain Collection
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Collection(p)
	return nil
}

type Status int

const (
	StatusNotFound Status = iota
	StatusResolved
	StatusExcluded
)

func (s Status) String() string {
	switch s {
	case StatusResolved:
		return "resolved"
	case StatusExcluded:
		return "excluded"
	default:
		return "not_found"
	}
}

type Resolution struct {
	Collection Collection
	Status     Status
	// Source is "model", "default" or "fallback".
	Source string
}

// Resolver serves the model mapping from a JSON file, re-reading it only when
// its modification time or size changes. A mapping that fails to parse is
// logged and the previous one keeps being served.
type Resolver struct {
	path       string
	fallbackID string

	mu      sync.RWMutex
	entries map[string]Collection
	modTime time.Time
	size    int64
	loaded  bool
}

func NewResolver(path, fallbackID string) *Resolver {
	return &Resolver{
		path:       path,
		fallbackID: fallbackID,
		entries:    make(map[string]Collection),
	}
}

// Reload re-parses the mapping file if it changed since the last load.
func (r *Resolver) Reload() error {
	info, err := os.Stat(r.path)
	if err != nil {
		return fmt.Errorf("stat model collections %s: %w", r.path, err)
	}

	r.mu.RLock()
	unchanged := r.loaded && info.ModTime().Equal(r.modTime) && info.Size() == r.size
	r.mu.RUnlock()
	if unchanged {
		return nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read model collections %s: %w", r.path, err)
	}

	entries, err := Parse(data)
	if err != nil {
		return fmt.Errorf("parse model collections %s: %w", r.path, err)
	}

	r.mu.Lock()
	r.entries = entries
	r.modTime = info.ModTime()
	r.size = info.Size()
	r.loaded = true
	r.mu.Unlock()

	slog.Info("Model collections loaded", "path", r.path, "models", len(entries))
	return nil
}

// Parse decodes a mapping document. Comments and trailing commas are allowed.
// Entries without a name keep it empty; the knowledge API supplies it.
func Parse(data []byte) (map[string]Collection, error) {
	entries := make(map[string]Collection)
	if err := json.Unmarshal(jsonc.ToJSON(data), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Resolve looks model up: exact match, then the "default" entry, then the
// configured fallback id. A stale or unreadable mapping file never blocks
// resolution; the last good mapping is used.
func (r *Resolver) Resolve(model string) Resolution {
	if err := r.Reload(); err != nil {
		slog.Warn("Keeping previous model collections", "error", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.entries[model]; ok && c.ID != "" {
		return resolution(c, "model")
	}
	if c, ok := r.entries[DefaultKey]; ok && c.ID != "" {
		return resolution(c, "default")
	}
	if r.fallbackID != "" {
		return resolution(Collection{ID: r.fallbackID}, "fallback")
	}
	return Resolution{Status: StatusNotFound}
}

// Snapshot returns a copy of the currently served mapping.
func (r *Resolver) Snapshot() map[string]Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Collection, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

func resolution(c Collection, source string) Resolution {
	status := StatusResolved
	if c.Excluded() {
		status = StatusExcluded
	}
	return Resolution{Collection: c, Status: status, Source: source}
}
