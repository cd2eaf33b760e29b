package archiver

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/archivist/internal/collection"
	"github.com/harunnryd/archivist/internal/logger"
	"github.com/harunnryd/archivist/internal/naming"
	"github.com/harunnryd/archivist/internal/state"
	"github.com/harunnryd/archivist/internal/transcript"
	"github.com/harunnryd/archivist/internal/webui"
)

// NotifyRequest announces that a conversation was superseded and can be
// archived right away.
type NotifyRequest struct {
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Model    string `json:"model"`
}

type Result struct {
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ArchiveOne runs a single archive attempt for one conversation outside the
// loop. The ongoing set is not consulted: the caller says the conversation
// is finished.
func (a *Archiver) ArchiveOne(ctx context.Context, req NotifyRequest) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	chatID := strings.TrimSpace(req.ChatID)
	log := logger.From(ctx).With("conversation_id", chatID)
	if chatID == "" || strings.ContainsAny(chatID, `/\`) || strings.Contains(chatID, "..") {
		return Result{Status: StatusError, Detail: "invalid chat_id"}
	}

	path, ok := a.findTranscript(chatID)
	if !ok {
		log.Info("Notify for a conversation without a transcript")
		return Result{Status: StatusNoFile, Detail: "no transcript for " + chatID}
	}

	info, status := a.remote.GetChatInfo(ctx, chatID)
	if status != webui.Found || strings.TrimSpace(info.Title) == "" {
		return Result{Status: StatusNoTitle, Detail: "chat lookup: " + status.String()}
	}

	rec, err := transcript.Read(path)
	if err != nil {
		return Result{Status: StatusError, Detail: err.Error()}
	}
	if m := strings.TrimSpace(req.Model); m != "" {
		rec.Model = m
	}
	if u := strings.TrimSpace(req.Username); u != "" {
		rec.User = u
	}

	res := a.resolver.Resolve(rec.Model)
	switch res.Status {
	case collection.StatusExcluded:
		return Result{Status: StatusExcluded, Detail: "model " + rec.Model + " is excluded"}
	case collection.StatusNotFound:
		return Result{Status: StatusError, Detail: "no knowledge collection for model " + rec.Model}
	}

	userID := req.UserID
	if userID == "" {
		userID = info.UserID
	}
	out := a.archive(ctx, path, rec, res.Collection, indexMeta{UserID: userID, Username: rec.User, Title: info.Title})
	if out == StatusFailed || out == StatusQuarantined {
		// fail() reports the retry bookkeeping; the caller wants the step that broke.
		return Result{Status: StatusError, Detail: string(out)}
	}
	detail := ""
	if out == StatusArchived {
		detail = "knowledge " + res.Collection.ID
	}
	return Result{Status: out, Detail: detail}
}

// findTranscript looks for <chatID>.<ext> in the memory directory.
func (a *Archiver) findTranscript(chatID string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(a.layout.Memory, chatID+".*"))
	if err != nil {
		return "", false
	}
	for _, m := range matches {
		name := filepath.Base(m)
		if state.IsMarker(name) || naming.ConversationID(name) != chatID {
			continue
		}
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			return m, true
		}
	}
	return "", false
}
