package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrEnded         = errors.New("session ended")
	ErrAlreadyServed = errors.New("session already has a live connection")
)

// Session is a visitor tab known to the server. The call itself lives in a
// Coordinator owned by the tab's shell.
type Session struct {
	ID             string    `json:"session_id"`
	VisitorID      string    `json:"visitor_id"`
	Status         Status    `json:"status"`
	CallState      State     `json:"call_state"`
	RoomName       string    `json:"room_name,omitempty"`
	FormsShown     int       `json:"forms_shown"`
	LeadsSent      int       `json:"leads_sent"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type entry struct {
	session  Session
	teardown func()
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*entry
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 10 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*entry),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) InactivityTimeout() time.Duration { return m.inactivityTimeout }

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(visitorID string) *Session {
	now := time.Now().UTC()
	e := &entry{session: Session{
		ID:             uuid.NewString(),
		VisitorID:      visitorID,
		Status:         StatusActive,
		CallState:      StateIdle,
		StartedAt:      now,
		LastActivityAt: now,
	}}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[e.session.ID] = e
	return clone(&e.session)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(&e.session), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	e.session.LastActivityAt = time.Now().UTC()
	return nil
}

// Attach binds a live connection to the session. teardown runs once when the
// session ends or expires; the returned detach func unbinds it without
// running it.
func (m *Manager) Attach(sessionID string, teardown func()) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if e.session.Status != StatusActive {
		return nil, ErrEnded
	}
	if e.teardown != nil {
		return nil, ErrAlreadyServed
	}
	e.teardown = teardown
	e.session.LastActivityAt = time.Now().UTC()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if cur, ok := m.sessions[sessionID]; ok && cur == e {
				e.teardown = nil
			}
		})
	}, nil
}

// RecordState stores the call state reported by the session's coordinator.
func (m *Manager) RecordState(sessionID string, state State, roomName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	e.session.CallState = state
	if roomName != "" {
		e.session.RoomName = roomName
	}
	e.session.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) RecordFormShown(sessionID string) error {
	return m.bump(sessionID, func(s *Session) { s.FormsShown++ })
}

func (m *Manager) RecordLeadSent(sessionID string) error {
	return m.bump(sessionID, func(s *Session) { s.LeadsSent++ })
}

func (m *Manager) bump(sessionID string, fn func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	fn(&e.session)
	e.session.LastActivityAt = time.Now().UTC()
	return nil
}

// End marks the session ended and runs its teardown, if any.
func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	teardown := m.endLocked(e, time.Now().UTC())
	out := clone(&e.session)
	m.mu.Unlock()

	if teardown != nil {
		teardown()
	}
	return out, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.sessions {
		if e.session.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var (
		expired   []*Session
		teardowns []func()
	)

	m.mu.Lock()
	for id, e := range m.sessions {
		if e.session.Status != StatusActive {
			// Ended sessions linger one timeout for journal lookups.
			if now.Sub(e.session.LastActivityAt) >= m.inactivityTimeout {
				delete(m.sessions, id)
			}
			continue
		}
		if now.Sub(e.session.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		if td := m.endLocked(e, now); td != nil {
			teardowns = append(teardowns, td)
		}
		expired = append(expired, clone(&e.session))
	}
	hook := m.onExpire
	m.mu.Unlock()

	for _, td := range teardowns {
		td()
	}
	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func (m *Manager) endLocked(e *entry, now time.Time) func() {
	if e.session.Status == StatusEnded {
		return nil
	}
	e.session.Status = StatusEnded
	e.session.LastActivityAt = now
	td := e.teardown
	e.teardown = nil
	return td
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
