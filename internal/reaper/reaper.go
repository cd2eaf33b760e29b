// Package reaper removes archived conversations whose chat was deleted
// upstream, both from their knowledge collection and from local disk.
//
// Only a definitive not-found from every credential counts as deleted. When
// the lookup is inconclusive the archived file is kept.
package reaper

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/archivist/internal/collection"
	archerrors "github.com/harunnryd/archivist/internal/errors"
	"github.com/harunnryd/archivist/internal/history"
	"github.com/harunnryd/archivist/internal/logger"
	"github.com/harunnryd/archivist/internal/naming"
	"github.com/harunnryd/archivist/internal/state"
	"github.com/harunnryd/archivist/internal/transcript"
	"github.com/harunnryd/archivist/internal/webui"
)

type Remote interface {
	IsReachable(ctx context.Context) bool
	GetChatInfo(ctx context.Context, chatID string) (*webui.ChatInfo, webui.LookupStatus)
	FindKnowledgeFile(ctx context.Context, collectionID string, shortID string) (*webui.FileResponse, error)
	DeleteFile(ctx context.Context, fileID string) error
	RemoveFromKnowledge(ctx context.Context, fileID string, collectionID string) error
}

type Deps struct {
	Remote     Remote
	Resolver   *collection.Resolver
	Renderer   *naming.Renderer
	Index      *state.ArchivedIndex
	History    history.Recorder
	ArchiveDir string
	// DefaultCollectionID stands in for models the mapping does not know.
	DefaultCollectionID string
	DryRun              bool
}

type Reaper struct {
	remote     Remote
	resolver   *collection.Resolver
	renderer   *naming.Renderer
	index      *state.ArchivedIndex
	history    history.Recorder
	archiveDir string
	defaultID  string
	dryRun     bool
}

type Summary struct {
	Checked int
	Kept    int
	Unknown int
	Reaped  int
}

func New(d Deps) (*Reaper, error) {
	if d.Remote == nil || d.Resolver == nil || d.Renderer == nil {
		return nil, archerrors.InvalidInput("reaper needs a remote, a resolver and a renderer")
	}
	if d.History == nil {
		d.History = history.Discard{}
	}
	return &Reaper{
		remote:     d.Remote,
		resolver:   d.Resolver,
		renderer:   d.Renderer,
		index:      d.Index,
		history:    d.History,
		archiveDir: d.ArchiveDir,
		defaultID:  d.DefaultCollectionID,
		dryRun:     d.DryRun,
	}, nil
}

func (r *Reaper) Name() string { return "reap" }

func (r *Reaper) RunCycle(ctx context.Context) error {
	_, err := r.Cycle(ctx)
	return err
}

func (r *Reaper) Cycle(ctx context.Context) (Summary, error) {
	log := logger.From(ctx)
	var summary Summary

	if !r.remote.IsReachable(ctx) {
		return summary, archerrors.Transient("webui unreachable, reap cycle skipped")
	}

	files, err := r.listArchived()
	if err != nil {
		return summary, err
	}

	for _, path := range files {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.Checked++

		id := naming.ConversationID(filepath.Base(path))
		_, status := r.remote.GetChatInfo(ctx, id)
		switch status {
		case webui.Found:
			summary.Kept++
		case webui.Unavailable:
			log.Debug("Chat lookup inconclusive, keeping archive", "conversation_id", id)
			summary.Unknown++
		case webui.NotFound:
			r.reap(ctx, path, id)
			summary.Reaped++
		}
	}

	if summary.Reaped > 0 {
		log.Info("Reap cycle finished", "checked", summary.Checked, "reaped", summary.Reaped, "unknown", summary.Unknown, "dry_run", r.dryRun)
	} else {
		log.Debug("Reap cycle finished", "checked", summary.Checked, "unknown", summary.Unknown)
	}
	return summary, nil
}

func (r *Reaper) listArchived() ([]string, error) {
	var out []string
	err := filepath.WalkDir(r.archiveDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == r.archiveDir {
				return filepath.SkipDir
			}
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != r.archiveDir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".partial") {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, archerrors.Wrap(err, "walk archive dir")
	}
	return out, nil
}

// reap removes the remote copy best-effort and then always removes the
// local one.
func (r *Reaper) reap(ctx context.Context, path, id string) {
	log := logger.From(ctx).With("conversation_id", id, "path", path, "dry_run", r.dryRun)

	rec, err := transcript.Read(path)
	if err != nil {
		log.Warn("Could not read archived transcript, using defaults", "error", err)
		rec = &transcript.Record{ConversationID: id, Model: naming.DefaultModel, User: naming.DefaultUser}
	}

	coll, ok := r.collectionFor(id, rec.Model)
	switch {
	case !ok:
		log.Warn("No knowledge collection known, removing local copy only")
	case coll.Excluded():
		log.Debug("Model excluded, nothing to remove remotely")
	default:
		r.removeRemote(ctx, log, coll.ID, rec, id)
	}

	if r.dryRun {
		log.Info("Would remove archived transcript")
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Error("Failed to remove archived transcript", "error", err)
	} else {
		log.Info("Archived transcript removed, chat deleted upstream")
	}
	if r.index != nil {
		if err := r.index.Delete(id); err != nil {
			log.Warn("Archived index not updated", "error", err)
		}
	}
}

// collectionFor prefers the collection the file was archived into, then
// the current mapping, then the configured default.
func (r *Reaper) collectionFor(id, model string) (collection.Collection, bool) {
	if r.index != nil {
		if entry, ok := r.index.Get(id); ok && entry.CollectionID != "" {
			return collection.Collection{ID: entry.CollectionID}, true
		}
	}
	if res := r.resolver.Resolve(model); res.Status != collection.StatusNotFound {
		return res.Collection, true
	}
	if r.defaultID != "" {
		return collection.Collection{ID: r.defaultID, Name: collection.DefaultKey}, true
	}
	return collection.Collection{}, false
}

func (r *Reaper) removeRemote(ctx context.Context, log *slog.Logger, collectionID string, rec *transcript.Record, id string) {
	remoteName := r.renderer.Render(rec.Model, rec.User, id)
	shortID, ok := naming.ParseShortID(remoteName)
	if !ok {
		log.Warn("Conversation id has no usable short id, skipping remote cleanup", "filename", remoteName)
		return
	}

	file, err := r.remote.FindKnowledgeFile(ctx, collectionID, shortID)
	if err != nil {
		log.Warn("Could not list knowledge files", "knowledge_id", collectionID, "error", err)
		return
	}
	if file == nil {
		log.Info("No remote file for conversation", "knowledge_id", collectionID, "short_id", shortID)
		return
	}
	if r.dryRun {
		log.Info("Would remove remote file", "knowledge_id", collectionID, "file_id", file.ID, "filename", file.DisplayName())
		return
	}

	removed := false
	if err := r.remote.DeleteFile(ctx, file.ID); err != nil {
		log.Warn("Remote file delete failed", "file_id", file.ID, "error", err)
	} else {
		removed = true
	}
	if err := r.remote.RemoveFromKnowledge(ctx, file.ID, collectionID); err != nil {
		log.Warn("Removing file from knowledge failed", "file_id", file.ID, "error", err)
	} else {
		removed = true
	}
	if removed {
		if err := r.history.Record(history.ActionRemoved, file.DisplayName(), collectionID); err != nil {
			log.Warn("History not written", "error", err)
		}
	}
}
