package state

import (
	"sync"
	"time"
)

// Entry is what is known about a conversation after it was archived.
type Entry struct {
	CollectionID string    `json:"collection_id"`
	UserID       string    `json:"user_id,omitempty"`
	Username     string    `json:"username,omitempty"`
	Model        string    `json:"model"`
	Title        string    `json:"title,omitempty"`
	RemoteName   string    `json:"remote_name,omitempty"`
	Path         string    `json:"path,omitempty"`
	ArchivedAt   time.Time `json:"archived_at"`
}

type indexFile struct {
	Conversations map[string]Entry `json:"conversations"`
}

// ArchivedIndex maps conversation ids to their last archival. Every change
// is written through to disk.
type ArchivedIndex struct {
	path  string
	state indexFile
	mu    sync.RWMutex
}

func OpenArchivedIndex(path string) (*ArchivedIndex, error) {
	idx := &ArchivedIndex{
		path:  path,
		state: indexFile{Conversations: make(map[string]Entry)},
	}
	if err := loadJSON(path, &idx.state); err != nil {
		return nil, err
	}
	if idx.state.Conversations == nil {
		idx.state.Conversations = make(map[string]Entry)
	}
	return idx, nil
}

func (i *ArchivedIndex) Put(conversationID string, entry Entry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if entry.ArchivedAt.IsZero() {
		entry.ArchivedAt = time.Now().UTC()
	}
	i.state.Conversations[conversationID] = entry
	return saveJSON(i.path, i.state)
}

func (i *ArchivedIndex) Get(conversationID string) (Entry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.state.Conversations[conversationID]
	return e, ok
}

// Delete drops an entry. Deleting an unknown id does not touch the file.
func (i *ArchivedIndex) Delete(conversationID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.state.Conversations[conversationID]; !ok {
		return nil
	}
	delete(i.state.Conversations, conversationID)
	return saveJSON(i.path, i.state)
}

func (i *ArchivedIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.state.Conversations)
}
