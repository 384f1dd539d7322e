package feedback

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Thumbs scores
const (
	ThumbsUp   = 1
	ThumbsDown = -1
)

// Entry is one piece of human feedback and the response refined from it
type Entry struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	UseCase          string    `json:"use_case,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	Prompt           string    `json:"prompt"`
	OriginalResponse string    `json:"original_response"`
	RefinedResponse  string    `json:"refined_response"`
	Feedback         string    `json:"feedback"`
	Score            int       `json:"score"`
}

// Store persists feedback entries
type Store interface {
	Save(ctx context.Context, entry *Entry) error

	// History returns the newest entries of a session first. A limit of zero returns all of them.
	History(ctx context.Context, sessionID string, limit int) ([]*Entry, error)
}

// MemoryStore keeps entries in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]*Entry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]*Entry)}
}

// Save implements Store.Save
func (s *MemoryStore) Save(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	s.entries[entry.SessionID] = append(s.entries[entry.SessionID], &copied)
	return nil
}

// History implements Store.History
func (s *MemoryStore) History(ctx context.Context, sessionID string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.entries[sessionID]
	history := make([]*Entry, len(stored))
	for i, e := range stored {
		copied := *e
		history[i] = &copied
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.After(history[j].Timestamp)
	})

	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}
