package chat

import (
	"context"
	"sync"

	"github.com/atelierdesign/site-chat/internal/model/chat"
)

// MemoryStore keeps sessions in process memory, suitable for local
// development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	entries  map[string][]chat.Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]chat.Session),
		entries:  make(map[string][]chat.Entry),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, session chat.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; ok {
		return nil
	}
	m.sessions[session.ID] = session
	m.entries[session.ID] = make([]chat.Entry, 0, 16)
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (m *MemoryStore) AppendEntry(_ context.Context, entry chat.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[entry.SessionID]; !ok {
		return ErrSessionNotFound
	}
	m.entries[entry.SessionID] = append(m.entries[entry.SessionID], entry)
	return nil
}

func (m *MemoryStore) ListEntries(_ context.Context, sessionID string) ([]chat.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries, ok := m.entries[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := make([]chat.Entry, len(entries))
	copy(copied, entries)
	return copied, nil
}

func (m *MemoryStore) Close() error { return nil }
