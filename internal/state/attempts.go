package state

import (
	"sync"
	"time"
)

type Attempt struct {
	Failures  int       `json:"failures"`
	LastError string    `json:"last_error,omitempty"`
	LastAt    time.Time `json:"last_at"`
}

type attemptsFile struct {
	Conversations map[string]Attempt `json:"conversations"`
}

// Attempts counts consecutive archive failures per conversation.
type Attempts struct {
	path  string
	state attemptsFile
	now   func() time.Time
	mu    sync.Mutex
}

func OpenAttempts(path string) (*Attempts, error) {
	a := &Attempts{
		path:  path,
		state: attemptsFile{Conversations: make(map[string]Attempt)},
		now:   time.Now,
	}
	if err := loadJSON(path, &a.state); err != nil {
		return nil, err
	}
	if a.state.Conversations == nil {
		a.state.Conversations = make(map[string]Attempt)
	}
	return a, nil
}

// Fail records one more failure and returns the new consecutive count.
func (a *Attempts) Fail(conversationID string, reason string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	at := a.state.Conversations[conversationID]
	at.Failures++
	at.LastError = reason
	at.LastAt = a.now().UTC()
	a.state.Conversations[conversationID] = at
	return at.Failures, saveJSON(a.path, a.state)
}

func (a *Attempts) Failures(conversationID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Conversations[conversationID].Failures
}

func (a *Attempts) Clear(conversationID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.state.Conversations[conversationID]; !ok {
		return nil
	}
	delete(a.state.Conversations, conversationID)
	return saveJSON(a.path, a.state)
}
