package session

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidKey is returned when the supplied app key does not match
	ErrInvalidKey = errors.New("invalid app key")

	// ErrExpired is returned when a session is unknown or has expired
	ErrExpired = errors.New("session expired")
)

const (
	// DefaultTTL is the idle time after which a session expires
	DefaultTTL = 180 * time.Second

	// CookieName carries the session ID between requests
	CookieName = "llmatscale_session"
)

// Session represents an authenticated dashboard session
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Manager issues and validates sessions guarded by a shared app key
type Manager struct {
	appKey   string
	ttl      time.Duration
	sessions map[string]*Session
	now      func() time.Time
	mu       sync.RWMutex
}

// Option represents an option for configuring the session manager
type Option func(*Manager)

// WithTTL sets the sliding expiry of sessions
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new session manager. An empty app key disables authentication.
func NewManager(appKey string, options ...Option) *Manager {
	m := &Manager{
		appKey:   appKey,
		ttl:      DefaultTTL,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// Enabled reports whether an app key is required
func (m *Manager) Enabled() bool {
	return m.appKey != ""
}

// TTL returns the configured session expiry
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Login validates the app key and issues a new session
func (m *Manager) Login(appKey string) (*Session, error) {
	if m.Enabled() && subtle.ConstantTimeCompare([]byte(appKey), []byte(m.appKey)) != 1 {
		return nil, ErrInvalidKey
	}

	now := m.now()
	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(now)
	m.sessions[s.ID] = s

	return s, nil
}

// Touch validates a session and extends its expiry
func (m *Manager) Touch(id string) (*Session, error) {
	if !m.Enabled() {
		return &Session{ID: DefaultID}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	now := m.now()
	if !ok || !now.Before(s.ExpiresAt) {
		delete(m.sessions, id)
		return nil, ErrExpired
	}

	s.ExpiresAt = now.Add(m.ttl)
	copied := *s
	return &copied, nil
}

// Logout removes a session
func (m *Manager) Logout(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Active returns the number of live sessions
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(m.now())
	return len(m.sessions)
}

func (m *Manager) purgeLocked(now time.Time) {
	for id, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
		}
	}
}
