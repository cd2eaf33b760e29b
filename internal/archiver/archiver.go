// Package archiver pushes finished conversation transcripts from the memory
// directory into their knowledge collection and moves them out of the way.
//
// A file is only moved after the remote side accepted it. Every failure
// leaves the transcript in place for the next cycle; after MaxRetries
// consecutive failures it is moved to the quarantine directory instead.
package archiver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/archivist/internal/collection"
	archerrors "github.com/harunnryd/archivist/internal/errors"
	"github.com/harunnryd/archivist/internal/history"
	"github.com/harunnryd/archivist/internal/logger"
	"github.com/harunnryd/archivist/internal/naming"
	"github.com/harunnryd/archivist/internal/state"
	"github.com/harunnryd/archivist/internal/store"
	"github.com/harunnryd/archivist/internal/transcript"
	"github.com/harunnryd/archivist/internal/webui"
)

// Remote is the part of the knowledge API the archiver needs.
type Remote interface {
	IsReachable(ctx context.Context) bool
	GetChatInfo(ctx context.Context, chatID string) (*webui.ChatInfo, webui.LookupStatus)
	UploadFile(ctx context.Context, path string, filename string) (string, error)
	AddToKnowledge(ctx context.Context, fileID, collectionID, filename, sourcePath string) (webui.LinkAction, error)
	GetKnowledge(ctx context.Context, collectionID string) (*webui.Knowledge, error)
}

type Deps struct {
	Remote   Remote
	Resolver *collection.Resolver
	Renderer *naming.Renderer
	Index    *state.ArchivedIndex
	Attempts *state.Attempts
	History  history.Recorder
	Layout   store.Layout

	PerKnowledge bool
	// MaxRetries bounds consecutive failures per conversation; 0 retries forever.
	MaxRetries int
}

type Archiver struct {
	remote       Remote
	resolver     *collection.Resolver
	renderer     *naming.Renderer
	index        *state.ArchivedIndex
	attempts     *state.Attempts
	history      history.Recorder
	layout       store.Layout
	perKnowledge bool
	maxRetries   int

	// mu serializes loop cycles with single notify archives.
	mu    sync.Mutex
	names map[string]string
}

func New(d Deps) (*Archiver, error) {
	if d.Remote == nil || d.Resolver == nil || d.Renderer == nil {
		return nil, archerrors.InvalidInput("archiver needs a remote, a resolver and a renderer")
	}
	if d.Index == nil || d.Attempts == nil {
		return nil, archerrors.InvalidInput("archiver needs an archived index and an attempts ledger")
	}
	if d.History == nil {
		d.History = history.Discard{}
	}
	return &Archiver{
		remote:       d.Remote,
		resolver:     d.Resolver,
		renderer:     d.Renderer,
		index:        d.Index,
		attempts:     d.Attempts,
		history:      d.History,
		layout:       d.Layout,
		perKnowledge: d.PerKnowledge,
		maxRetries:   d.MaxRetries,
		names:        make(map[string]string),
	}, nil
}

func (a *Archiver) Name() string { return "archive" }

// RunCycle lets the archiver be driven by a runner.
func (a *Archiver) RunCycle(ctx context.Context) error {
	_, err := a.Cycle(ctx)
	return err
}

// Cycle runs one pass over the memory directory.
func (a *Archiver) Cycle(ctx context.Context) (Summary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	log := logger.From(ctx)
	var summary Summary

	if !a.remote.IsReachable(ctx) {
		return summary, archerrors.Transient("webui unreachable, archive cycle skipped")
	}

	if err := a.resolver.Reload(); err != nil {
		log.Warn("Model collections not reloaded", "error", err)
	}

	ongoing, err := state.LoadOngoing(a.layout.Memory, a.layout.Ongoing)
	if err != nil {
		return summary, archerrors.Wrap(err, "load ongoing conversations")
	}

	files, err := a.listTranscripts()
	if err != nil {
		return summary, err
	}

	for _, name := range files {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		summary.add(a.processFile(ctx, name, ongoing))
	}

	if summary.Archived+summary.Failed+summary.Quarantined > 0 {
		log.Info("Archive cycle finished", summary.attrs()...)
	} else {
		log.Debug("Archive cycle finished", summary.attrs()...)
	}
	return summary, nil
}

func (a *Archiver) listTranscripts() ([]string, error) {
	entries, err := os.ReadDir(a.layout.Memory)
	if err != nil {
		return nil, fmt.Errorf("list memory dir %s: %w", a.layout.Memory, err)
	}
	var out []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || state.IsMarker(entry.Name()) {
			continue
		}
		out = append(out, entry.Name())
	}
	sort.Strings(out)
	return out, nil
}

func (a *Archiver) processFile(ctx context.Context, name string, ongoing state.OngoingSet) Status {
	path := filepath.Join(a.layout.Memory, name)
	id := naming.ConversationID(name)
	log := logger.From(ctx).With("conversation_id", id, "file", name)

	if ongoing.Contains(id) {
		log.Debug("Conversation still ongoing, skipping")
		return StatusOngoing
	}

	rec, err := transcript.Read(path)
	if err != nil {
		log.Warn("Could not read transcript", "error", err)
		return a.fail(ctx, path, id, "", err)
	}

	res := a.resolver.Resolve(rec.Model)
	switch res.Status {
	case collection.StatusExcluded:
		log.Debug("Model excluded from archiving", "model", rec.Model)
		return StatusExcluded
	case collection.StatusNotFound:
		log.Warn("No knowledge collection for model", "model", rec.Model)
		return StatusUnmapped
	}

	if a.maxRetries > 0 && a.attempts.Failures(id) >= a.maxRetries {
		return a.quarantine(ctx, path, id, res.Collection.ID)
	}

	info, status := a.remote.GetChatInfo(ctx, id)
	if status != webui.Found {
		log.Debug("Chat not confirmed upstream, skipping this cycle", "lookup", status.String())
		return StatusNoChat
	}

	return a.archive(ctx, path, rec, res.Collection, indexMeta{UserID: info.UserID, Title: info.Title, Username: rec.User})
}

type indexMeta struct {
	UserID   string
	Username string
	Title    string
}

// archive uploads, links and moves one transcript.
func (a *Archiver) archive(ctx context.Context, path string, rec *transcript.Record, coll collection.Collection, meta indexMeta) Status {
	id := naming.ConversationID(filepath.Base(path))
	log := logger.From(ctx).With("conversation_id", id, "knowledge_id", coll.ID)

	remoteName := a.renderer.Render(rec.Model, rec.User, id)

	fileID, err := a.remote.UploadFile(ctx, path, remoteName)
	if err != nil {
		log.Error("Upload failed", "filename", remoteName, "error", err, "category", archerrors.Category(err))
		if a.fail(ctx, path, id, coll.ID, err) == StatusQuarantined {
			return StatusQuarantined
		}
		return StatusUploadFailed
	}

	action, err := a.remote.AddToKnowledge(ctx, fileID, coll.ID, remoteName, path)
	if err != nil {
		log.Error("Adding file to knowledge failed", "file_id", fileID, "error", err, "category", archerrors.Category(err))
		if a.fail(ctx, path, id, coll.ID, err) == StatusQuarantined {
			return StatusQuarantined
		}
		return StatusLinkFailed
	}

	destDir := a.layout.Archive
	if a.perKnowledge {
		destDir = a.layout.ArchiveSubdir(a.collectionName(ctx, coll))
	}
	dest := filepath.Join(destDir, filepath.Base(path))
	if err := moveFile(path, dest); err != nil {
		log.Error("Moving transcript to archive failed", "dest", dest, "error", err)
		if a.fail(ctx, path, id, coll.ID, err) == StatusQuarantined {
			return StatusQuarantined
		}
		return StatusError
	}

	if err := a.index.Put(id, state.Entry{
		CollectionID: coll.ID,
		UserID:       meta.UserID,
		Username:     meta.Username,
		Model:        rec.Model,
		Title:        meta.Title,
		RemoteName:   remoteName,
		Path:         dest,
		ArchivedAt:   time.Now().UTC(),
	}); err != nil {
		log.Warn("Archived index not updated", "error", err)
	}
	if err := a.attempts.Clear(id); err != nil {
		log.Warn("Attempts ledger not cleared", "error", err)
	}

	historyAction := history.ActionAdded
	if action == webui.LinkUpdated {
		historyAction = history.ActionUpdated
	}
	if err := a.history.Record(historyAction, remoteName, coll.ID); err != nil {
		log.Warn("History not written", "error", err)
	}

	log.Info("Conversation archived", "filename", remoteName, "action", string(action), "dest", dest)
	return StatusArchived
}

// fail counts a failed attempt and quarantines the transcript once the
// configured limit is reached.
func (a *Archiver) fail(ctx context.Context, path, id, collectionID string, cause error) Status {
	n, err := a.attempts.Fail(id, cause.Error())
	if err != nil {
		logger.From(ctx).Warn("Attempts ledger not written", "conversation_id", id, "error", err)
	}
	if a.maxRetries > 0 && n >= a.maxRetries {
		return a.quarantine(ctx, path, id, collectionID)
	}
	return StatusFailed
}

func (a *Archiver) quarantine(ctx context.Context, path, id, collectionID string) Status {
	log := logger.From(ctx).With("conversation_id", id)
	dest := filepath.Join(a.layout.Quarantine, filepath.Base(path))

	if err := os.MkdirAll(a.layout.Quarantine, 0755); err != nil {
		log.Error("Quarantine dir not created", "error", err)
		return StatusFailed
	}
	if err := moveFile(path, dest); err != nil {
		log.Error("Quarantine move failed", "error", err)
		return StatusFailed
	}
	if err := a.attempts.Clear(id); err != nil {
		log.Warn("Attempts ledger not cleared", "error", err)
	}
	if collectionID == "" {
		collectionID = "-"
	}
	if err := a.history.Record(history.ActionQuarantined, filepath.Base(path), collectionID); err != nil {
		log.Warn("History not written", "error", err)
	}
	log.Warn("Transcript quarantined after repeated failures", "max_retries", a.maxRetries, "dest", dest)
	return StatusQuarantined
}

// collectionName picks the per-knowledge subdirectory name: the mapping's
// name, else the remote collection's name, else its id.
func (a *Archiver) collectionName(ctx context.Context, coll collection.Collection) string {
	if coll.Name != "" {
		return coll.Name
	}
	if name, ok := a.names[coll.ID]; ok {
		return name
	}
	name := coll.ID
	if kb, err := a.remote.GetKnowledge(ctx, coll.ID); err == nil && kb.Name != "" {
		name = kb.Name
	} else if err != nil {
		slog.Debug("Knowledge name lookup failed, using id", "knowledge_id", coll.ID, "error", err)
	}
	a.names[coll.ID] = name
	return name
}
