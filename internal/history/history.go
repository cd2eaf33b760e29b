// Package history keeps the append-only record of what was pushed to or
// pulled from knowledge collections. It is the operator-facing audit trail,
// separate from the diagnostic log.
package history

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Action string

const (
	ActionAdded       Action = "added"
	ActionUpdated     Action = "updated"
	ActionRemoved     Action = "removed"
	ActionQuarantined Action = "quarantined"
)

const timestampLayout = "2006-01-02 15:04:05"

// Recorder is what the loops write history lines through.
type Recorder interface {
	Record(action Action, filename string, knowledgeID string) error
}

// Log appends one line per action to a file:
//
//	[2025-01-02 15:04:05] ADDED → [89ecea6c] conversation.txt in knowledge col-1
type Log struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func NewLog(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &Log{path: path, now: time.Now}, nil
}

func (l *Log) Path() string {
	return l.path
}

func (l *Log) Record(action Action, filename string, knowledgeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open history log: %w", err)
	}
	defer f.Close()

	return writeLine(f, l.now(), action, filename, knowledgeID)
}

func writeLine(w io.Writer, at time.Time, action Action, filename string, knowledgeID string) error {
	_, err := fmt.Fprintf(w, "[%s] %s → %s in knowledge %s\n",
		at.Format(timestampLayout), strings.ToUpper(string(action)), filename, knowledgeID)
	return err
}

// Discard drops every record; used by one-shot commands run with --dry-run.
type Discard struct{}

func (Discard) Record(Action, string, string) error { return nil }
