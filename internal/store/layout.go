package store

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	OngoingDirName    = "ongoing_conversations"
	StateDirName      = ".archivist"
	QuarantineDirName = "quarantine"

	LockFileName     = "archivist.lock"
	IndexFileName    = "archived_index.json"
	AttemptsFileName = "attempts.json"
	LogFileName      = "archivist.log"
	HistoryFileName  = "archivist_history.log"
)

// Layout names every path the archivist reads or writes under the memory
// directory.
type Layout struct {
	Memory     string
	Archive    string
	Ongoing    string
	Logs       string
	State      string
	Quarantine string
}

// NewLayout derives the layout from the memory directory. Empty archiveDir
// and logDir fall back to subdirectories of memoryDir.
func NewLayout(memoryDir, archiveDir, logDir string) Layout {
	if archiveDir == "" {
		archiveDir = filepath.Join(memoryDir, "archived")
	}
	if logDir == "" {
		logDir = filepath.Join(memoryDir, "logs")
	}
	return Layout{
		Memory:     memoryDir,
		Archive:    archiveDir,
		Ongoing:    filepath.Join(memoryDir, OngoingDirName),
		Logs:       logDir,
		State:      filepath.Join(memoryDir, StateDirName),
		Quarantine: filepath.Join(memoryDir, QuarantineDirName),
	}
}

// Ensure creates every directory of the layout.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Memory, l.Archive, l.Ongoing, l.Logs, l.State, l.Quarantine} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
	}
	return nil
}

func (l Layout) LockPath() string     { return filepath.Join(l.State, LockFileName) }
func (l Layout) IndexPath() string    { return filepath.Join(l.State, IndexFileName) }
func (l Layout) AttemptsPath() string { return filepath.Join(l.State, AttemptsFileName) }
func (l Layout) LogPath() string      { return filepath.Join(l.Logs, LogFileName) }
func (l Layout) HistoryPath() string  { return filepath.Join(l.Logs, HistoryFileName) }

// ArchiveSubdir returns the directory an archived transcript lands in.
// An empty collection name means the flat archive directory.
func (l Layout) ArchiveSubdir(collectionName string) string {
	if collectionName == "" {
		return l.Archive
	}
	return filepath.Join(l.Archive, SafeDirName(collectionName))
}

// SafeDirName turns a collection name into a single path element.
func SafeDirName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	s := string(out)
	if s == "." || s == ".." || s == "" {
		return "_"
	}
	return s
}
