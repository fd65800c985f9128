package occupancy

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-occupancy/pkg/tracking"
)

// ErrSessionNotFound is returned when a session ID is unknown
var ErrSessionNotFound = errors.New("session not found")

// Session is one counting run, from startup or a manual reset
type Session struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	MaxCapacity int       `json:"max_capacity"`
}

// Record is one persisted crossing
type Record struct {
	SessionID string         `json:"session_id"`
	Kind      tracking.Event `json:"kind"`
	Offset    time.Duration  `json:"offset"`    // since session start
	Occupancy int            `json:"occupancy"` // after the crossing
	At        time.Time      `json:"at"`
}

// Store defines the interface for ledger persistence.
type Store interface {
	// CreateSession persists a new session
	CreateSession(ctx context.Context, s Session) error

	// UpdateMaxCapacity changes a session's capacity limit
	UpdateMaxCapacity(ctx context.Context, sessionID string, maxCapacity int) error

	// RecordEvent appends a crossing to its session
	RecordEvent(ctx context.Context, r Record) error

	// Session retrieves a session by ID
	Session(ctx context.Context, id string) (Session, error)

	// LatestSession returns the most recently started session
	LatestSession(ctx context.Context) (Session, error)

	// Events returns a session's crossings in order
	Events(ctx context.Context, sessionID string) ([]Record, error)

	ContactStore

	Close() error
}

// MemoryStore keeps sessions in memory. Used when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	events   map[string][]Record
	contacts map[int64]Contact
	nextID   int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		events:   make(map[string][]Record),
		contacts: make(map[int64]Contact),
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) UpdateMaxCapacity(ctx context.Context, sessionID string, maxCapacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.MaxCapacity = maxCapacity
	m.sessions[sessionID] = s
	return nil
}

func (m *MemoryStore) RecordEvent(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[r.SessionID]; !ok {
		return ErrSessionNotFound
	}
	m.events[r.SessionID] = append(m.events[r.SessionID], r)
	return nil
}

func (m *MemoryStore) Session(ctx context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (m *MemoryStore) LatestSession(ctx context.Context) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	if len(all) == 0 {
		return Session{}, ErrSessionNotFound
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].StartedAt.After(all[j].StartedAt)
	})
	return all[0], nil
}

func (m *MemoryStore) Events(ctx context.Context, sessionID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}
	out := make([]Record, len(m.events[sessionID]))
	copy(out, m.events[sessionID])
	return out, nil
}

func (m *MemoryStore) AddContact(ctx context.Context, c Contact) (Contact, error) {
	if err := c.Validate(); err != nil {
		return Contact{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	m.contacts[c.ID] = c
	return c, nil
}

func (m *MemoryStore) RemoveContact(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contacts[id]; !ok {
		return ErrContactNotFound
	}
	delete(m.contacts, id)
	return nil
}

func (m *MemoryStore) Contacts(ctx context.Context) ([]Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Contact, 0, len(m.contacts))
	for _, c := range m.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
