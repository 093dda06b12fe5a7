package journal

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMemoryEntriesPerSession = 500
	DefaultMemorySessions          = 1000
)

// InMemoryStore keeps session journals in process for local/dev use. Each
// session keeps its newest maxEntries entries, and once maxSessions journals
// exist the one written least recently is evicted.
type InMemoryStore struct {
	maxEntries  int
	maxSessions int

	mu       sync.RWMutex
	sessions map[string]*list.Element
	recent   *list.List // of *sessionLog, most recently written first
}

type sessionLog struct {
	id      string
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return NewBoundedInMemoryStore(DefaultMemoryEntriesPerSession, DefaultMemorySessions)
}

// NewBoundedInMemoryStore caps entries per session and the number of
// sessions kept. Non-positive values use the defaults.
func NewBoundedInMemoryStore(maxEntries, maxSessions int) *InMemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntriesPerSession
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMemorySessions
	}
	return &InMemoryStore{
		maxEntries:  maxEntries,
		maxSessions: maxSessions,
		sessions:    make(map[string]*list.Element),
		recent:      list.New(),
	}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.sessions[entry.SessionID]
	if ok {
		s.recent.MoveToFront(el)
	} else {
		el = s.recent.PushFront(&sessionLog{id: entry.SessionID})
		s.sessions[entry.SessionID] = el
		for s.recent.Len() > s.maxSessions {
			oldest := s.recent.Back()
			s.recent.Remove(oldest)
			delete(s.sessions, oldest.Value.(*sessionLog).id)
		}
	}

	log := el.Value.(*sessionLog)
	log.entries = append(log.entries, entry)
	if over := len(log.entries) - s.maxEntries; over > 0 {
		n := copy(log.entries, log.entries[over:])
		clear(log.entries[n:])
		log.entries = log.entries[:n]
	}
	return nil
}

// List returns the newest limit entries in chronological order.
func (s *InMemoryStore) List(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	el, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	arr := el.Value.(*sessionLog).entries
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Entry, 0, limit)
	out = append(out, arr[len(arr)-limit:]...)
	return out, nil
}

// Sessions reports how many session journals are held.
func (s *InMemoryStore) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recent.Len()
}

func (s *InMemoryStore) Close() error { return nil }
